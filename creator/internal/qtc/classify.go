package qtc

import (
	"errors"
	"fmt"
	"math"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
)

var (
	// ErrShortHistory is returned for histories with fewer than two samples.
	ErrShortHistory = errors.New("qtc: history needs at least two samples")

	// ErrNonFinite is returned when a coordinate is NaN or infinite.
	ErrNonFinite = errors.New("qtc: non-finite coordinate")

	// ErrUnknownVariant is returned for a variant other than qtcb, qtcc or
	// qtcbc.
	ErrUnknownVariant = errors.New("qtc: unknown variant")

	// ErrBadOptions is returned for a negative quantisation factor or a
	// non-positive distance threshold with qtcbc.
	ErrBadOptions = errors.New("qtc: invalid options")
)

// Options are the classifier parameters.
type Options struct {
	Variant            Variant
	QuantisationFactor float64
	DistanceThreshold  float64
	Validate           bool
	Collapse           bool
}

// Func is the classifier signature consumed by the pipeline.
type Func func(history []observation.Sample, opts Options) ([]State, error)

// Classify returns the QTC sequence for history. A history of n samples
// yields n-1 states before collapsing and validation.
func Classify(history []observation.Sample, opts Options) ([]State, error) {
	if err := check(history, opts); err != nil {
		return nil, err
	}

	q := opts.QuantisationFactor
	states := make([]State, 0, len(history)-1)
	for i := 0; i+1 < len(history); i++ {
		k0, l0 := history[i].Observer, history[i].Entity
		k1, l1 := history[i+1].Observer, history[i+1].Entity

		s := State{approach(k0, k1, l0, q), approach(l0, l1, k0, q)}
		switch opts.Variant {
		case QTCC:
			s = append(s, side(k0, k1, l0, q), side(l0, l1, k0, q))
		case QTCBC:
			if dist(k0, l0) > opts.DistanceThreshold {
				s = append(s, Undefined, Undefined)
			} else {
				s = append(s, side(k0, k1, l0, q), side(l0, l1, k0, q))
			}
		}
		states = append(states, s)
	}

	if opts.Collapse {
		states = collapse(states)
	}
	if opts.Validate {
		states = validate(states)
	}
	return states, nil
}

func check(history []observation.Sample, opts Options) error {
	if !opts.Variant.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, opts.Variant)
	}
	if opts.QuantisationFactor < 0 || math.IsNaN(opts.QuantisationFactor) {
		return fmt.Errorf("%w: quantisation factor %v", ErrBadOptions, opts.QuantisationFactor)
	}
	if opts.Variant == QTCBC && !(opts.DistanceThreshold > 0) {
		return fmt.Errorf("%w: distance threshold %v", ErrBadOptions, opts.DistanceThreshold)
	}
	if len(history) < 2 {
		return fmt.Errorf("%w: got %d", ErrShortHistory, len(history))
	}
	for i, s := range history {
		for _, v := range s.Columns() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: sample %d", ErrNonFinite, i)
			}
		}
	}
	return nil
}

// approach classifies the movement from a0 to a1 along the line from a0 to
// other: towards is Minus, away is Plus.
func approach(a0, a1, other observation.Point, q float64) Symbol {
	ux, uy, n := unit(a0, other)
	if n == 0 {
		return Zero
	}
	d := (a1.X-a0.X)*ux + (a1.Y-a0.Y)*uy
	switch {
	case d > q:
		return Minus
	case d < -q:
		return Plus
	}
	return Zero
}

// side classifies the movement from a0 to a1 across the line from a0 to
// other: left is Minus, right is Plus.
func side(a0, a1, other observation.Point, q float64) Symbol {
	ux, uy, n := unit(a0, other)
	if n == 0 {
		return Zero
	}
	c := ux*(a1.Y-a0.Y) - uy*(a1.X-a0.X)
	switch {
	case c > q:
		return Minus
	case c < -q:
		return Plus
	}
	return Zero
}

// unit returns the unit vector from a to b and the distance between them.
func unit(a, b observation.Point) (ux, uy, n float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	n = math.Hypot(dx, dy)
	if n == 0 {
		return 0, 0, 0
	}
	return dx / n, dy / n, n
}

func dist(a, b observation.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// collapse drops states equal to their predecessor.
func collapse(states []State) []State {
	out := make([]State, 0, len(states))
	for _, s := range states {
		if len(out) > 0 && out[len(out)-1].Equal(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// validate inserts, before every state that flips a component between Minus
// and Plus, an intermediate state with those components set to Zero.
func validate(states []State) []State {
	if len(states) == 0 {
		return states
	}
	out := make([]State, 0, len(states))
	out = append(out, states[0])
	for i := 1; i < len(states); i++ {
		prev, next := states[i-1], states[i]
		var mid State
		for c := range next {
			if c >= len(prev) {
				break
			}
			if prev[c] != Undefined && next[c] != Undefined && prev[c]*next[c] == -1 {
				if mid == nil {
					mid = append(State(nil), next...)
				}
				mid[c] = Zero
			}
		}
		if mid != nil {
			out = append(out, mid)
		}
		out = append(out, next)
	}
	return out
}
