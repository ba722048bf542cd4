package types

import (
	"slices"
	"time"
)

// Result is the QTC sequence of one entity relative to the observer, stamped
// with the classifier parameters that produced it.
type Result struct {
	UUID string `json:"uuid"`

	// K and L name the two agents of the relation (observer and entity).
	K string `json:"k"`
	L string `json:"l"`

	QTCType            string  `json:"qtc_type"`
	QuantisationFactor float64 `json:"quantisation_factor"`
	DistanceThreshold  float64 `json:"distance_threshold"`
	SmoothingRate      float64 `json:"smoothing_rate"` // seconds
	Validated          bool    `json:"validated"`
	Collapsed          bool    `json:"collapsed"`

	// QTCSerialised is the JSON encoding of the state sequence, e.g.
	// [[-1,0,1,0],[0,0,1,0]]. Undefined components are null.
	QTCSerialised string `json:"qtc_serialised"`
}

// Batch is one published output message: every Result produced by a tick.
type Batch struct {
	FrameID string    `json:"frame_id"`
	Stamp   time.Time `json:"stamp"`
	Seq     uint64    `json:"seq"`
	Results []Result  `json:"results"`
}

// SameResults reports whether a and b carry identical results. Only the
// results take part; stamp and sequence number differ on every batch.
func SameResults(a, b []Result) bool {
	return slices.Equal(a, b)
}

// Ack is the collector's reply to a shipped Batch.
type Ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}
