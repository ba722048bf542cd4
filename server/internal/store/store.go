package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/qtcstream/qtcstream/pkg/types"
)

// Entry is the latest result of one entity together with the batch that
// carried it.
type Entry struct {
	Result    types.Result
	FrameID   string
	Stamp     time.Time
	Seq       uint64
	BatchID   string
	UpdatedAt time.Time
}

// BatchInfo describes the most recently received batch.
type BatchInfo struct {
	ID         string
	FrameID    string
	Stamp      time.Time
	Seq        uint64
	Results    int
	ReceivedAt time.Time
}

// Store is a thread-safe in-memory result store keyed by entity uuid.
// Run evicts entities that have not been updated within the TTL.
type Store struct {
	mu      sync.RWMutex
	data    map[string]*Entry
	ttl     time.Duration
	now     func() time.Time // injectable for deterministic tests
	batches uint64
	last    *BatchInfo
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// PutBatch records every result of b under its uuid, replacing older entries,
// and returns the number of results stored. Callers must not modify b
// afterwards.
func (s *Store) PutBatch(id string, b *types.Batch) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, r := range b.Results {
		s.data[r.UUID] = &Entry{
			Result:    r,
			FrameID:   b.FrameID,
			Stamp:     b.Stamp,
			Seq:       b.Seq,
			BatchID:   id,
			UpdatedAt: now,
		}
	}
	s.batches++
	s.last = &BatchInfo{
		ID:         id,
		FrameID:    b.FrameID,
		Stamp:      b.Stamp,
		Seq:        b.Seq,
		Results:    len(b.Results),
		ReceivedAt: now,
	}
	return len(b.Results)
}

// Get returns the live Entry for uuid. Entries older than the TTL that have
// not been evicted yet are reported as missing.
func (s *Store) Get(uuid string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[uuid]
	if !ok || !e.UpdatedAt.After(s.now().Add(-s.ttl)) {
		return nil, false
	}
	return e, true
}

// List returns all live entries ordered by uuid.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Result.UUID < out[j].Result.UUID })
	return out
}

// Count returns the number of entries held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Batches returns the number of batches received and the latest one, if any.
func (s *Store) Batches() (uint64, *BatchInfo) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return s.batches, nil
	}
	last := *s.last
	return s.batches, &last
}

// TTL returns the configured retention.
func (s *Store) TTL() time.Duration { return s.ttl }

// Evict removes entries whose UpdatedAt is older than now minus TTL and
// returns how many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries every half TTL (at least once a second) until ctx
// is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale entities", "count", n)
			}
		}
	}
}
