// Package observation holds the position types that flow from the ingestion
// callbacks through the tick loop.
package observation

import "time"

// Point is a planar position in metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is one tracked entity's position inside a Batch.
type Detection struct {
	UUID     string
	Position Point
}

// Batch is one delivery from the entity stream. All detections share the
// frame and stamp.
type Batch struct {
	FrameID    string
	Stamp      time.Time
	Detections []Detection
}

// Item is a queued Batch paired with the observer pose that was current when
// the batch arrived. Observer is nil if no pose had been received yet.
type Item struct {
	Batch    Batch
	Observer *Point
}

// Sample relates one observer position to one entity position, the
// (ox, oy, ex, ey) row consumed by the classifier.
type Sample struct {
	Observer Point
	Entity   Point
}

// Columns returns the sample as an (ox, oy, ex, ey) array.
func (s Sample) Columns() [4]float64 {
	return [4]float64{s.Observer.X, s.Observer.Y, s.Entity.X, s.Entity.Y}
}

// SampleFromColumns is the inverse of Columns.
func SampleFromColumns(c [4]float64) Sample {
	return Sample{
		Observer: Point{X: c[0], Y: c[1]},
		Entity:   Point{X: c[2], Y: c[3]},
	}
}
