package history

import (
	"log/slog"
	"time"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
)

// Buffer is the ordered smoothed history of one entity.
type Buffer struct {
	Samples  []observation.Sample
	LastSeen time.Time
}

// Stage holds one Buffer per entity. It is owned by the tick loop and is not
// safe for concurrent use.
type Stage struct {
	buffers map[string]*Buffer
}

// NewStage returns an empty Stage.
func NewStage() *Stage {
	return &Stage{buffers: make(map[string]*Buffer)}
}

// Append adds s to uuid's buffer, creating it if needed, sets its last-seen
// stamp and returns the buffer.
func (st *Stage) Append(uuid string, s observation.Sample, stamp time.Time) *Buffer {
	b, ok := st.buffers[uuid]
	if !ok {
		b = &Buffer{}
		st.buffers[uuid] = b
	}
	b.Samples = append(b.Samples, s)
	b.LastSeen = stamp
	return b
}

// Get returns the buffer for uuid.
func (st *Stage) Get(uuid string) (*Buffer, bool) {
	b, ok := st.buffers[uuid]
	return b, ok
}

// Len returns the number of tracked entities.
func (st *Stage) Len() int {
	return len(st.buffers)
}

// Decay removes buffers with LastSeen + decay < now and returns how many were
// removed.
func (st *Stage) Decay(now time.Time, decay time.Duration) int {
	removed := 0
	for uuid, b := range st.buffers {
		if b.LastSeen.Add(decay).Before(now) {
			slog.Debug("history: entity decayed",
				"uuid", uuid, "samples", len(b.Samples), "last_seen", b.LastSeen)
			delete(st.buffers, uuid)
			removed++
		}
	}
	return removed
}
