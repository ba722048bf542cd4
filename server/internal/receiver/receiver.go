package receiver

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/qtcstream/qtcstream/pkg/resultrpc"
	"github.com/qtcstream/qtcstream/pkg/types"
	"github.com/qtcstream/qtcstream/server/internal/store"
)

// Receiver implements resultrpc.ResultServiceServer.
// It validates each incoming Batch and records its results in the store.
type Receiver struct {
	resultrpc.UnimplementedResultServiceServer
	store   *store.Store
	onBatch func()

	batches  prometheus.Counter
	results  prometheus.Counter
	rejected prometheus.Counter
}

// New creates a Receiver that writes accepted batches to st. Counters are
// registered on reg, or on a private registry when reg is nil. onBatch, if
// set, is called after every stored batch.
func New(st *store.Store, reg prometheus.Registerer, onBatch func()) *Receiver {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Receiver{
		store:   st,
		onBatch: onBatch,
		batches: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_collector_batches_total",
			Help: "Result batches accepted from creators.",
		}),
		results: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_collector_results_total",
			Help: "Per-entity results accepted from creators.",
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_collector_rejected_total",
			Help: "Batches rejected as malformed.",
		}),
	}
}

// Publish is the unary RPC called by a creator's shipper. Authentication is
// enforced by the server interceptor before this runs.
func (r *Receiver) Publish(ctx context.Context, b *types.Batch) (*types.Ack, error) {
	if err := check(b); err != nil {
		r.rejected.Inc()
		return nil, err
	}

	id := uuid.NewString()
	n := r.store.PutBatch(id, b)
	r.batches.Inc()
	r.results.Add(float64(n))

	slog.Debug("receiver: batch stored",
		"batch_id", id,
		"frame_id", b.FrameID,
		"seq", b.Seq,
		"results", n,
	)

	if r.onBatch != nil {
		r.onBatch()
	}
	return &types.Ack{OK: true, Message: id}, nil
}

func check(b *types.Batch) error {
	if b.FrameID == "" {
		return status.Error(codes.InvalidArgument, "frame_id is required")
	}
	if len(b.Results) == 0 {
		return status.Error(codes.InvalidArgument, "batch has no results")
	}
	for i, res := range b.Results {
		if res.UUID == "" {
			return status.Errorf(codes.InvalidArgument, "results[%d]: uuid is required", i)
		}
	}
	return nil
}
