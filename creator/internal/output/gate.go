// Package output decides which result sets leave the pipeline.
package output

import (
	"slices"

	"github.com/qtcstream/qtcstream/pkg/types"
)

// Gate suppresses empty result sets and repeats of the last published one.
// It is owned by the tick loop.
type Gate struct {
	last       []types.Result
	suppressed uint64
}

// Offer reports whether results should be published and, if so, remembers
// them as the last published set. results must be ordered by UUID.
func (g *Gate) Offer(results []types.Result) bool {
	if len(results) == 0 {
		return false
	}
	if g.last != nil && types.SameResults(g.last, results) {
		g.suppressed++
		return false
	}
	g.last = slices.Clone(results)
	return true
}

// Last returns the last published result set.
func (g *Gate) Last() []types.Result {
	return slices.Clone(g.last)
}

// Suppressed returns how many non-empty sets were withheld as duplicates.
func (g *Gate) Suppressed() uint64 {
	return g.suppressed
}
