package pipeline

import (
	"time"

	"github.com/qtcstream/qtcstream/creator/internal/config"
	"github.com/qtcstream/qtcstream/pkg/types"
)

// Status is a point-in-time view of the tick loop for the admin API.
type Status struct {
	Ticks       uint64         `json:"ticks"`
	Seq         uint64         `json:"seq"`
	QueueDepth  int            `json:"queue_depth"`
	Dropped     uint64         `json:"dropped"`
	Windows     int            `json:"windows"`
	Entities    int            `json:"entities"`
	Suppressed  uint64         `json:"suppressed"`
	LastStamp   time.Time      `json:"last_stamp"`
	LastResults []types.Result `json:"last_results"`
	Params      config.Params  `json:"params"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Status returns the snapshot published at the end of the last tick.
func (p *Pipeline) Status() Status {
	return *p.status.Load()
}

func (p *Pipeline) publishStatus(params config.Params) {
	p.status.Store(&Status{
		Ticks:       p.ticks,
		Seq:         p.seq,
		QueueDepth:  p.deps.Source.Depth(),
		Dropped:     p.deps.Source.Dropped(),
		Windows:     p.smoothing.Len(),
		Entities:    p.history.Len(),
		Suppressed:  p.gate.Suppressed(),
		LastStamp:   p.lastBatch,
		LastResults: p.gate.Last(),
		Params:      params,
		UpdatedAt:   time.Now(),
	})
}
