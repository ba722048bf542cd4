package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtcstream/qtcstream/creator/internal/config"
	"github.com/qtcstream/qtcstream/creator/internal/ingest"
	"github.com/qtcstream/qtcstream/creator/internal/observation"
	"github.com/qtcstream/qtcstream/creator/internal/qtc"
	"github.com/qtcstream/qtcstream/creator/internal/transform"
	"github.com/qtcstream/qtcstream/pkg/types"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

type recordSink struct {
	name    string
	err     error
	batches []*types.Batch
}

func (s *recordSink) Name() string { return s.name }

func (s *recordSink) Publish(_ context.Context, b *types.Batch) error {
	s.batches = append(s.batches, b)
	return s.err
}

// shiftTransform moves points from any frame by +10 in x and fails for points
// with negative x.
type shiftTransform struct{}

func (shiftTransform) Transform(_ context.Context, p observation.Point, _, _ string, _ time.Time) (observation.Point, error) {
	if p.X < 0 {
		return observation.Point{}, transform.ErrTimeout
	}
	return observation.Point{X: p.X + 10, Y: p.Y}, nil
}

type harness struct {
	inbox   *ingest.Inbox
	params  *config.ParamStore
	metrics *Metrics
	sink    *recordSink
	calls   int
	p       *Pipeline
}

func newHarness(t *testing.T, params config.Params, tf transform.Transformer, queueLimit int) *harness {
	t.Helper()
	h := &harness{
		inbox:   ingest.NewInbox(queueLimit),
		params:  config.NewParamStore(params),
		metrics: NewMetrics(prometheus.NewRegistry()),
		sink:    &recordSink{name: "record"},
	}
	if tf == nil {
		tf = transform.NewTree()
	}
	classify := func(history []observation.Sample, opts qtc.Options) ([]qtc.State, error) {
		h.calls++
		return qtc.Classify(history, opts)
	}
	h.p = New(Settings{
		TargetFrame:      "/map",
		DecayTime:        10 * time.Second,
		ProcessingRate:   100,
		TransformTimeout: 20 * time.Millisecond,
		ObserverLabel:    "Robot",
		EntityLabel:      "Human",
	}, Deps{
		Source:    h.inbox,
		Params:    h.params,
		Transform: tf,
		Classify:  classify,
		Sinks:     []Sink{h.sink},
		Metrics:   h.metrics,
	})
	return h
}

// immediate returns qtcb params with no smoothing, so every batch flushes.
func immediate() config.Params {
	p := config.DefaultParams()
	p.QTCType = qtc.QTCB
	p.SmoothingRate = 0
	return p
}

func det(uuid string, x, y float64) observation.Detection {
	return observation.Detection{UUID: uuid, Position: observation.Point{X: x, Y: y}}
}

func (h *harness) push(stamp time.Time, frame string, dets ...observation.Detection) {
	h.inbox.OnEntities(observation.Batch{FrameID: frame, Stamp: stamp, Detections: dets})
}

func (h *harness) tick() *types.Batch {
	return h.p.Tick(context.Background())
}

func TestTick_ClassifiesOncePerEntityWithTwoSamples(t *testing.T) {
	h := newHarness(t, immediate(), nil, 0)
	h.inbox.OnObserver(observation.Point{})

	h.push(at(0), "map", det("a", 1, 0))
	require.Nil(t, h.tick(), "one sample must not produce a result")
	assert.Zero(t, h.calls)

	h.push(at(1), "map", det("a", 1, 1))
	b := h.tick()
	require.NotNil(t, b)
	assert.Equal(t, 1, h.calls)

	assert.Equal(t, "map", b.FrameID)
	assert.Equal(t, at(1), b.Stamp)
	assert.Equal(t, uint64(1), b.Seq)
	require.Len(t, b.Results, 1)
	r := b.Results[0]
	assert.Equal(t, "a", r.UUID)
	assert.Equal(t, "Robot", r.K)
	assert.Equal(t, "Human", r.L)
	assert.Equal(t, "qtcb", r.QTCType)
	assert.Equal(t, "[[0,0]]", r.QTCSerialised)
	assert.True(t, r.Validated)
	assert.True(t, r.Collapsed)
	assert.Len(t, h.sink.batches, 1)
}

func TestTick_SuppressesRepeatedResults(t *testing.T) {
	h := newHarness(t, immediate(), nil, 0)
	h.inbox.OnObserver(observation.Point{})

	h.push(at(0), "map", det("a", 1, 0))
	h.push(at(1), "map", det("a", 1, 1))
	h.push(at(2), "map", det("a", 1, 1)) // no movement: collapses to the same sequence
	h.push(at(3), "map", det("a", 3, 1)) // moves away

	h.tick()
	first := h.tick()
	require.NotNil(t, first)
	assert.Nil(t, h.tick(), "identical result set must be suppressed")

	next := h.tick()
	require.NotNil(t, next)
	assert.Equal(t, uint64(2), next.Seq)
	assert.Equal(t, "[[0,0],[0,1]]", next.Results[0].QTCSerialised)

	assert.Len(t, h.sink.batches, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Suppressed))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Published))
}

func TestTick_ResultsOrderedByUUID(t *testing.T) {
	h := newHarness(t, immediate(), nil, 0)
	h.inbox.OnObserver(observation.Point{})

	h.push(at(0), "map", det("c", 5, 0), det("a", 1, 0), det("b", 3, 0))
	h.push(at(1), "map", det("b", 3, 1), det("c", 5, 1), det("a", 1, 1))
	h.tick()
	b := h.tick()
	require.NotNil(t, b)
	var uuids []string
	for _, r := range b.Results {
		uuids = append(uuids, r.UUID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, uuids)
}

func TestTick_TransformFailureSkipsOnlyThatDetection(t *testing.T) {
	h := newHarness(t, immediate(), shiftTransform{}, 0)
	h.inbox.OnObserver(observation.Point{})

	h.push(at(0), "base_link", det("bad", -1, 0), det("good", 1, 0))
	h.push(at(1), "base_link", det("bad", -1, 0), det("good", 1, 1))
	h.tick()
	b := h.tick()

	require.NotNil(t, b)
	require.Len(t, b.Results, 1)
	assert.Equal(t, "good", b.Results[0].UUID)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.TransformFailures))
	assert.Equal(t, 1, h.p.Status().Entities)
}

func TestTick_UnknownFrameTimesOut(t *testing.T) {
	h := newHarness(t, immediate(), transform.NewTree(), 0)
	h.inbox.OnObserver(observation.Point{})

	h.push(at(0), "nowhere", det("a", 1, 0))
	h.push(at(1), "map", det("b", 1, 0))

	start := time.Now()
	assert.Nil(t, h.tick())
	assert.Less(t, time.Since(start), time.Second, "transform wait must be bounded")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TransformFailures))

	h.tick()
	assert.Equal(t, 1, h.p.Status().Entities, "loop continues after a failed transform")
}

func TestTick_UnknownFrameWaitsOncePerBatch(t *testing.T) {
	h := newHarness(t, immediate(), transform.NewTree(), 0)
	h.inbox.OnObserver(observation.Point{})

	dets := make([]observation.Detection, 10)
	for i := range dets {
		dets[i] = det(string(rune('a'+i)), float64(i), 0)
	}
	h.push(at(0), "nowhere", dets...)

	// TransformTimeout is 20ms; ten sequential waits would take 200ms.
	start := time.Now()
	assert.Nil(t, h.tick())
	assert.Less(t, time.Since(start), 100*time.Millisecond, "batch must share one transform deadline")
	assert.Equal(t, 10.0, testutil.ToFloat64(h.metrics.TransformFailures))
	assert.Zero(t, h.p.Status().Entities)
}

func TestTick_TransformsIntoWorkingFrame(t *testing.T) {
	tree := transform.NewTree()
	tree.Set("base_link", "map", transform.Rigid{X: 10})
	h := newHarness(t, immediate(), tree, 0)
	h.inbox.OnObserver(observation.Point{X: 10})

	h.push(at(0), "/base_link", det("a", 1, 0))
	h.push(at(1), "base_link", det("a", 1, 1))
	h.tick()
	b := h.tick()
	require.NotNil(t, b)
	assert.Equal(t, "[[0,0]]", b.Results[0].QTCSerialised)
	assert.Zero(t, testutil.ToFloat64(h.metrics.TransformFailures))
}

func TestTick_MissingObserverSkipsBatch(t *testing.T) {
	h := newHarness(t, immediate(), nil, 0)

	h.push(at(0), "map", det("a", 1, 0))
	assert.Nil(t, h.tick())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.MissingObserver))
	assert.Zero(t, h.p.Status().Entities)

	// The pose is captured at enqueue time, so only later batches see it.
	h.inbox.OnObserver(observation.Point{})
	h.push(at(1), "map", det("a", 1, 0))
	h.tick()
	assert.Equal(t, 1, h.p.Status().Entities)
}

func TestTick_SmoothingWindow(t *testing.T) {
	params := immediate()
	params.SmoothingRate = time.Second
	h := newHarness(t, params, nil, 0)
	h.inbox.OnObserver(observation.Point{})

	stamps := []float64{0, 0.3, 0.6, 1.0}
	for i, x := range []float64{1, 2, 3, 10} {
		h.push(at(stamps[i]), "map", det("a", x, 0))
	}
	// Stamps 0, 0.3, 0.6 stay in the window; 1.0 flushes them.
	for i := 0; i < 3; i++ {
		h.tick()
		assert.Zero(t, h.p.Status().Entities)
		assert.Equal(t, 1, h.p.Status().Windows)
	}
	h.tick()
	st := h.p.Status()
	assert.Equal(t, 1, st.Entities)
	assert.Equal(t, 1, st.Windows, "fourth sample opens a new window")
}

func TestTick_Decay(t *testing.T) {
	h := newHarness(t, immediate(), nil, 0)
	h.inbox.OnObserver(observation.Point{})

	h.push(at(0), "map", det("a", 1, 0))
	h.push(at(10), "map", det("b", 2, 0))
	h.push(at(10.5), "map", det("b", 2, 1))

	h.tick()
	h.tick()
	assert.Equal(t, 2, h.p.Status().Entities, "entity is kept at exactly the decay time")
	h.tick()
	assert.Equal(t, 1, h.p.Status().Entities)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Decayed))
}

func TestTick_ParamChangeAppliesNextTick(t *testing.T) {
	h := newHarness(t, immediate(), nil, 0)
	h.inbox.OnObserver(observation.Point{})

	h.push(at(0), "map", det("a", 1, 0))
	h.push(at(1), "map", det("a", 1, 1))
	h.tick()
	_, err := h.params.Apply(map[string]any{"qtc_type": "qtcc"})
	require.NoError(t, err)

	b := h.tick()
	require.NotNil(t, b)
	assert.Equal(t, "qtcc", b.Results[0].QTCType)
	assert.Equal(t, "[[0,0,0,1]]", b.Results[0].QTCSerialised)
}

func TestTick_ClassifierFailureOmitsEntity(t *testing.T) {
	h := newHarness(t, immediate(), nil, 0)
	h.p.deps.Classify = func(history []observation.Sample, opts qtc.Options) ([]qtc.State, error) {
		if history[0].Entity.X == 1 {
			return nil, qtc.ErrNonFinite
		}
		return qtc.Classify(history, opts)
	}
	h.inbox.OnObserver(observation.Point{})

	h.push(at(0), "map", det("a", 1, 0), det("b", 2, 0))
	h.push(at(1), "map", det("a", 1, 1), det("b", 2, 1))
	h.tick()
	b := h.tick()
	require.NotNil(t, b)
	require.Len(t, b.Results, 1)
	assert.Equal(t, "b", b.Results[0].UUID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ClassifierFailures))
}

func TestTick_SinkErrorDoesNotStopLoop(t *testing.T) {
	h := newHarness(t, immediate(), nil, 0)
	h.sink.err = errors.New("broker down")
	h.inbox.OnObserver(observation.Point{})

	h.push(at(0), "map", det("a", 1, 0))
	h.push(at(1), "map", det("a", 1, 1))
	h.push(at(2), "map", det("a", 3, 1))
	h.tick()
	require.NotNil(t, h.tick())
	require.NotNil(t, h.tick())
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.SinkErrors.WithLabelValues("record")))
}

func TestTick_BacklogIsProcessedInOrder(t *testing.T) {
	h := newHarness(t, immediate(), nil, 0)
	h.inbox.OnObserver(observation.Point{})

	for i := 0; i < 5; i++ {
		h.push(at(float64(i)), "map", det("a", 1, float64(i)))
	}
	assert.Equal(t, 5, h.inbox.Depth())
	for i := 0; i < 5; i++ {
		h.tick()
		assert.Equal(t, at(float64(i)), h.p.Status().LastStamp)
	}
	assert.Nil(t, h.tick())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IdleTicks))
	assert.Zero(t, testutil.ToFloat64(h.metrics.Dropped))
}

func TestTick_QueueLimitDropsAreCounted(t *testing.T) {
	h := newHarness(t, immediate(), nil, 2)
	h.inbox.OnObserver(observation.Point{})

	for i := 0; i < 5; i++ {
		h.push(at(float64(i)), "map", det("a", 1, float64(i)))
	}
	h.tick()
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.Dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.QueueDepth))
	assert.Equal(t, at(3), h.p.Status().LastStamp, "oldest batches are the ones dropped")
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	h := newHarness(t, immediate(), nil, 0)
	h.inbox.OnObserver(observation.Point{})
	h.push(at(0), "map", det("a", 1, 0))
	h.push(at(1), "map", det("a", 1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.p.Status().Ticks >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Len(t, h.sink.batches, 1)
	assert.Equal(t, "a", h.sink.batches[0].Results[0].UUID)
}
