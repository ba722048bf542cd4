package ingest

import (
	"sync/atomic"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
)

// ObserverCell is a single shared observer pose. Writers overwrite it, readers
// get a consistent copy. The zero value holds no pose.
type ObserverCell struct {
	p atomic.Pointer[observation.Point]
}

// Store overwrites the current pose.
func (c *ObserverCell) Store(p observation.Point) {
	c.p.Store(&p)
}

// Load returns a copy of the current pose, or nil if none was stored yet.
func (c *ObserverCell) Load() *observation.Point {
	p := c.p.Load()
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
