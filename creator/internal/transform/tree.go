package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
)

var (
	// ErrTimeout is returned when a frame chain did not become available
	// before the context expired.
	ErrTimeout = errors.New("transform: timed out waiting for frame")

	// ErrCycle is returned when following parents from a frame loops.
	ErrCycle = errors.New("transform: frame cycle")
)

// Transformer converts a point from source to target frame. Implementations
// must honour ctx and return promptly once it is done.
type Transformer interface {
	Transform(ctx context.Context, p observation.Point, source, target string, stamp time.Time) (observation.Point, error)
}

type edge struct {
	parent string
	tf     Rigid
}

// Tree is a concurrency-safe set of static frame transforms.
type Tree struct {
	mu      sync.Mutex
	edges   map[string]edge
	changed chan struct{} // closed and replaced on every Set
}

// NewTree returns an empty Tree.
func NewTree() *Tree {
	return &Tree{
		edges:   make(map[string]edge),
		changed: make(chan struct{}),
	}
}

// Set declares parent as the parent of child with tf mapping child points into
// parent. It replaces any previous entry for child and wakes waiting lookups.
func (t *Tree) Set(child, parent string, tf Rigid) {
	t.mu.Lock()
	t.edges[Canonical(child)] = edge{parent: Canonical(parent), tf: tf}
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()
}

// Reset removes every frame and wakes waiting lookups.
func (t *Tree) Reset() {
	t.mu.Lock()
	clear(t.edges)
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()
}

// Frames returns the number of frames with a declared parent.
func (t *Tree) Frames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.edges)
}

// Transform maps p from source into target, waiting for missing frames until
// ctx is done. stamp is unused because the tree holds static transforms.
func (t *Tree) Transform(ctx context.Context, p observation.Point, source, target string, _ time.Time) (observation.Point, error) {
	source, target = Canonical(source), Canonical(target)
	if source == target {
		return p, nil
	}

	for {
		t.mu.Lock()
		tf, err := t.lookupLocked(source, target)
		wait := t.changed
		t.mu.Unlock()

		if err == nil {
			return tf.Apply(p), nil
		}
		if !errors.Is(err, errUnknownFrame) {
			return observation.Point{}, err
		}

		select {
		case <-ctx.Done():
			return observation.Point{}, fmt.Errorf("%w: %s -> %s: %v", ErrTimeout, source, target, ctx.Err())
		case <-wait:
		}
	}
}

var errUnknownFrame = errors.New("unknown frame")

// lookupLocked returns the transform from source to target.
func (t *Tree) lookupLocked(source, target string) (Rigid, error) {
	srcRoot, srcToRoot, err := t.toRootLocked(source)
	if err != nil {
		return Rigid{}, err
	}
	dstRoot, dstToRoot, err := t.toRootLocked(target)
	if err != nil {
		return Rigid{}, err
	}
	if srcRoot != dstRoot {
		// Either frame may still be waiting for its link to the shared root.
		return Rigid{}, fmt.Errorf("%w: %s (root %s), %s (root %s)", errUnknownFrame, source, srcRoot, target, dstRoot)
	}
	return srcToRoot.Then(dstToRoot.Inverse()), nil
}

// toRootLocked walks parents from frame to its root and composes the chain.
// A frame with no declared parent is its own root.
func (t *Tree) toRootLocked(frame string) (string, Rigid, error) {
	acc := Identity
	seen := make(map[string]bool)
	for {
		if seen[frame] {
			return "", Rigid{}, fmt.Errorf("%w at %q", ErrCycle, frame)
		}
		seen[frame] = true
		e, ok := t.edges[frame]
		if !ok {
			return frame, acc, nil
		}
		acc = acc.Then(e.tf)
		frame = e.parent
	}
}

// Canonical strips a leading slash from a frame name.
func Canonical(frame string) string {
	return strings.TrimPrefix(frame, "/")
}
