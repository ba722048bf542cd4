package smoothing

import (
	"cmp"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
)

// Window is the set of samples collected for one entity since Start.
type Window struct {
	Start    time.Time
	LastSeen time.Time
	Samples  []observation.Sample
}

// Flushed is the averaged sample emitted when a window matures.
type Flushed struct {
	UUID   string
	Sample observation.Sample
	Count  int // number of raw samples averaged
}

// Stage holds one open window per entity. It is not safe for concurrent use;
// the tick loop owns it.
type Stage struct {
	windows map[string]*Window
}

// NewStage returns an empty Stage.
func NewStage() *Stage {
	return &Stage{windows: make(map[string]*Window)}
}

// Entry is one raw sample tagged with its entity.
type Entry struct {
	UUID   string
	Sample observation.Sample
}

// Step runs one batch through the stage. Windows already mature at stamp are
// closed before the batch's samples are added, so a late sample opens a new
// window instead of joining the old one. Windows that mature on the batch's
// own samples (a zero rate) are closed afterwards. The result is ordered by
// UUID; an entity may appear twice when both apply.
func (st *Stage) Step(stamp time.Time, rate time.Duration, entries []Entry) []Flushed {
	out := st.Flush(stamp, rate)
	for _, e := range entries {
		st.Add(e.UUID, stamp, e.Sample)
	}
	out = append(out, st.Flush(stamp, rate)...)
	slices.SortStableFunc(out, func(a, b Flushed) int { return cmp.Compare(a.UUID, b.UUID) })
	return out
}

// Add appends s to the window for uuid, opening one at stamp if needed.
func (st *Stage) Add(uuid string, stamp time.Time, s observation.Sample) {
	w, ok := st.windows[uuid]
	if !ok {
		w = &Window{Start: stamp}
		st.windows[uuid] = w
	}
	w.Samples = append(w.Samples, s)
	w.LastSeen = stamp
}

// Flush closes every window with Start + rate <= now and returns their means
// ordered by UUID.
func (st *Stage) Flush(now time.Time, rate time.Duration) []Flushed {
	var out []Flushed
	for uuid, w := range st.windows {
		if w.Start.Add(rate).After(now) {
			continue
		}
		out = append(out, Flushed{UUID: uuid, Sample: Mean(w.Samples), Count: len(w.Samples)})
		delete(st.windows, uuid)
	}
	slices.SortFunc(out, func(a, b Flushed) int { return cmp.Compare(a.UUID, b.UUID) })
	return out
}

// Window returns the open window for uuid.
func (st *Stage) Window(uuid string) (*Window, bool) {
	w, ok := st.windows[uuid]
	return w, ok
}

// Len returns the number of open windows.
func (st *Stage) Len() int {
	return len(st.windows)
}

// Mean returns the column-wise mean of samples. It returns the zero Sample
// for an empty slice.
func Mean(samples []observation.Sample) observation.Sample {
	if len(samples) == 0 {
		return observation.Sample{}
	}
	var mean [4]float64
	col := make([]float64, len(samples))
	for c := range mean {
		for i, s := range samples {
			col[i] = s.Columns()[c]
		}
		mean[c] = stat.Mean(col, nil)
	}
	return observation.SampleFromColumns(mean)
}
