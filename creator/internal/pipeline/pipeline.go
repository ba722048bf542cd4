package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qtcstream/qtcstream/creator/internal/config"
	"github.com/qtcstream/qtcstream/creator/internal/history"
	"github.com/qtcstream/qtcstream/creator/internal/observation"
	"github.com/qtcstream/qtcstream/creator/internal/output"
	"github.com/qtcstream/qtcstream/creator/internal/qtc"
	"github.com/qtcstream/qtcstream/creator/internal/smoothing"
	"github.com/qtcstream/qtcstream/creator/internal/transform"
	"github.com/qtcstream/qtcstream/pkg/types"
)

// Source yields queued entity batches. *ingest.Inbox implements it.
type Source interface {
	Next() (observation.Item, bool)
	Depth() int
	Dropped() uint64
}

// Sink receives every published batch. Publish must return within a bounded
// time; the tick loop waits for it.
type Sink interface {
	Name() string
	Publish(ctx context.Context, b *types.Batch) error
}

// Settings are the fixed, start-time parameters of the loop.
type Settings struct {
	TargetFrame      string
	DecayTime        time.Duration
	ProcessingRate   float64 // Hz
	TransformTimeout time.Duration
	ObserverLabel    string
	EntityLabel      string
}

// SettingsFromConfig extracts the loop settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		TargetFrame:      cfg.TargetFrame,
		DecayTime:        cfg.DecayTime,
		ProcessingRate:   cfg.ProcessingRate,
		TransformTimeout: cfg.TransformTimeout,
		ObserverLabel:    cfg.Labels.Observer,
		EntityLabel:      cfg.Labels.Entity,
	}
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Source    Source
	Params    *config.ParamStore
	Transform transform.Transformer
	Classify  qtc.Func // defaults to qtc.Classify
	Sinks     []Sink
	Metrics   *Metrics // defaults to collectors on a private registry
}

// Pipeline is the tick loop: it pops one queued batch per tick and runs it
// through smoothing, history, classification and the output gate.
//
// Tick and Run must be called from a single goroutine. Status is safe for
// concurrent use.
type Pipeline struct {
	settings Settings
	deps     Deps
	metrics  *Metrics

	smoothing *smoothing.Stage
	history   *history.Stage
	gate      output.Gate

	ticks       uint64
	seq         uint64
	lastDropped uint64
	lastBatch   time.Time

	status atomic.Pointer[Status]
}

// New returns a Pipeline with empty state.
func New(s Settings, d Deps) *Pipeline {
	if d.Classify == nil {
		d.Classify = qtc.Classify
	}
	m := d.Metrics
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}
	s.TargetFrame = transform.Canonical(s.TargetFrame)
	p := &Pipeline{
		settings:  s,
		deps:      d,
		metrics:   m,
		smoothing: smoothing.NewStage(),
		history:   history.NewStage(),
	}
	p.publishStatus(d.Params.Snapshot())
	return p
}

// Run ticks at the configured processing rate until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / p.settings.ProcessingRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("pipeline: running",
		"rate_hz", p.settings.ProcessingRate,
		"target_frame", p.settings.TargetFrame,
		"decay_time", p.settings.DecayTime)

	for {
		select {
		case <-ctx.Done():
			slog.Info("pipeline: stopped", "ticks", p.ticks)
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick processes at most one queued batch and returns the batch it published,
// or nil.
func (p *Pipeline) Tick(ctx context.Context) *types.Batch {
	timer := prometheus.NewTimer(p.metrics.TickDuration)
	defer timer.ObserveDuration()

	params := p.deps.Params.Snapshot()
	p.ticks++
	p.metrics.Ticks.Inc()
	defer p.publishStatus(params)

	item, ok := p.deps.Source.Next()
	p.observeQueue()
	if !ok {
		p.metrics.IdleTicks.Inc()
		return nil
	}
	if item.Observer == nil {
		slog.Warn("pipeline: no observer pose yet, skipping batch",
			"frame", item.Batch.FrameID, "detections", len(item.Batch.Detections))
		p.metrics.MissingObserver.Inc()
		return nil
	}

	stamp := item.Batch.Stamp
	p.lastBatch = stamp
	entries := p.samples(ctx, item)
	flushed := p.smoothing.Step(stamp, params.SmoothingRate, entries)
	results := p.classify(flushed, stamp, params)

	var published *types.Batch
	if p.gate.Offer(results) {
		p.seq++
		published = &types.Batch{
			FrameID: p.settings.TargetFrame,
			Stamp:   stamp,
			Seq:     p.seq,
			Results: results,
		}
		p.publish(ctx, published)
	} else if len(results) > 0 {
		p.metrics.Suppressed.Inc()
	}

	if n := p.history.Decay(stamp, p.settings.DecayTime); n > 0 {
		p.metrics.Decayed.Add(float64(n))
	}
	p.metrics.Windows.Set(float64(p.smoothing.Len()))
	p.metrics.Entities.Set(float64(p.history.Len()))
	return published
}

// samples pairs every detection of item with the observer pose, moving the
// detection into the working frame first. Detections that cannot be
// transformed are skipped on their own. The whole batch shares one
// TransformTimeout: once it expires the remaining detections fail without
// another lookup.
func (p *Pipeline) samples(ctx context.Context, item observation.Item) []smoothing.Entry {
	b := item.Batch
	local := transform.Canonical(b.FrameID) == p.settings.TargetFrame
	if !local {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.TransformTimeout)
		defer cancel()
	}

	entries := make([]smoothing.Entry, 0, len(b.Detections))
	for i, d := range b.Detections {
		pos := d.Position
		if !local {
			var err error
			pos, err = p.deps.Transform.Transform(ctx, d.Position, b.FrameID, p.settings.TargetFrame, b.Stamp)
			if err != nil {
				slog.Warn("pipeline: transform failed, skipping detection",
					"uuid", d.UUID, "frame", b.FrameID, "err", err)
				p.metrics.TransformFailures.Inc()
				if ctx.Err() != nil {
					if rest := len(b.Detections) - i - 1; rest > 0 {
						slog.Warn("pipeline: transform deadline passed, skipping rest of batch",
							"frame", b.FrameID, "skipped", rest)
						p.metrics.TransformFailures.Add(float64(rest))
					}
					break
				}
				continue
			}
		}
		entries = append(entries, smoothing.Entry{
			UUID:   d.UUID,
			Sample: observation.Sample{Observer: *item.Observer, Entity: pos},
		})
	}
	return entries
}

// classify appends the flushed samples to their histories and classifies each
// touched entity once. flushed is ordered by UUID.
func (p *Pipeline) classify(flushed []smoothing.Flushed, stamp time.Time, params config.Params) []types.Result {
	var touched []string
	for _, f := range flushed {
		p.history.Append(f.UUID, f.Sample, stamp)
		if n := len(touched); n == 0 || touched[n-1] != f.UUID {
			touched = append(touched, f.UUID)
		}
	}

	opts := params.Options()
	var results []types.Result
	for _, uuid := range touched {
		buf, _ := p.history.Get(uuid)
		if len(buf.Samples) < 2 {
			continue
		}
		states, err := p.deps.Classify(buf.Samples, opts)
		if err == nil {
			var seq string
			if seq, err = qtc.Serialise(states); err == nil {
				results = append(results, p.result(uuid, seq, params))
				continue
			}
		}
		slog.Warn("pipeline: classification failed, omitting entity",
			"uuid", uuid, "samples", len(buf.Samples), "err", err)
		p.metrics.ClassifierFailures.Inc()
	}
	return results
}

func (p *Pipeline) result(uuid, seq string, params config.Params) types.Result {
	return types.Result{
		UUID:               uuid,
		K:                  p.settings.ObserverLabel,
		L:                  p.settings.EntityLabel,
		QTCType:            string(params.QTCType),
		QuantisationFactor: params.QuantisationFactor,
		DistanceThreshold:  params.DistanceThreshold,
		SmoothingRate:      params.SmoothingRate.Seconds(),
		Validated:          params.Validate,
		Collapsed:          params.Collapse,
		QTCSerialised:      seq,
	}
}

func (p *Pipeline) publish(ctx context.Context, b *types.Batch) {
	p.metrics.Published.Inc()
	for _, s := range p.deps.Sinks {
		if err := s.Publish(ctx, b); err != nil {
			slog.Warn("pipeline: publish failed",
				"sink", s.Name(), "seq", b.Seq, "err", err)
			p.metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
		}
	}
	slog.Debug("pipeline: batch published", "seq", b.Seq, "results", len(b.Results))
}

func (p *Pipeline) observeQueue() {
	p.metrics.QueueDepth.Set(float64(p.deps.Source.Depth()))
	if d := p.deps.Source.Dropped(); d > p.lastDropped {
		p.metrics.Dropped.Add(float64(d - p.lastDropped))
		p.lastDropped = d
	}
}
