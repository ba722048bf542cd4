package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/qtcstream/qtcstream/pkg/types"
)

func result(uuid, seq string) types.Result {
	return types.Result{UUID: uuid, K: "Robot", L: "Human", QTCType: "qtcc", QTCSerialised: seq}
}

func batch(seq uint64, results ...types.Result) *types.Batch {
	return &types.Batch{
		FrameID: "map",
		Stamp:   time.Unix(1700000000, 0).UTC(),
		Seq:     seq,
		Results: results,
	}
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestPutBatchAndGet(t *testing.T) {
	st := New(5 * time.Minute)
	n := st.PutBatch("b-1", batch(1, result("a", "[[0,0,0,0]]"), result("b", "[[-1,0,0,0]]")))
	if n != 2 {
		t.Fatalf("PutBatch: stored %d, want 2", n)
	}

	e, ok := st.Get("b")
	if !ok {
		t.Fatal("Get: expected entry, got none")
	}
	if e.Result.QTCSerialised != "[[-1,0,0,0]]" {
		t.Errorf("qtc: got %q", e.Result.QTCSerialised)
	}
	if e.BatchID != "b-1" || e.Seq != 1 || e.FrameID != "map" {
		t.Errorf("batch meta: got id=%q seq=%d frame=%q", e.BatchID, e.Seq, e.FrameID)
	}
}

func TestGet_Missing(t *testing.T) {
	st := New(5 * time.Minute)
	if _, ok := st.Get("unknown"); ok {
		t.Fatal("Get on empty store: expected false, got true")
	}
}

func TestPutBatch_Overwrites(t *testing.T) {
	st := New(5 * time.Minute)
	st.PutBatch("b-1", batch(1, result("a", "[[0,0,0,0]]")))
	st.PutBatch("b-2", batch(2, result("a", "[[0,0,0,0],[-1,0,0,0]]")))

	e, _ := st.Get("a")
	if e.Seq != 2 || e.BatchID != "b-2" {
		t.Errorf("expected second batch to win, got seq=%d id=%q", e.Seq, e.BatchID)
	}
	if st.Count() != 1 {
		t.Errorf("Count: got %d, want 1", st.Count())
	}
}

func TestPutBatch_KeepsEntitiesMissingFromLaterBatch(t *testing.T) {
	st := New(5 * time.Minute)
	st.PutBatch("b-1", batch(1, result("a", "x"), result("b", "y")))
	st.PutBatch("b-2", batch(2, result("a", "z")))

	if _, ok := st.Get("b"); !ok {
		t.Error("entity b should stay until its TTL elapses")
	}
}

func TestBatches(t *testing.T) {
	st := New(5 * time.Minute)
	if n, last := st.Batches(); n != 0 || last != nil {
		t.Fatalf("empty store: got n=%d last=%v", n, last)
	}

	base := time.Now()
	st.now = fixedClock(base)
	st.PutBatch("b-1", batch(7, result("a", "x"), result("b", "y")))

	n, last := st.Batches()
	if n != 1 {
		t.Errorf("batches: got %d, want 1", n)
	}
	if last.ID != "b-1" || last.Seq != 7 || last.Results != 2 || !last.ReceivedAt.Equal(base) {
		t.Errorf("last batch: got %+v", last)
	}
}

func TestList_SortedAndExcludesStale(t *testing.T) {
	st := New(1 * time.Minute)
	base := time.Now()

	st.now = fixedClock(base.Add(-2 * time.Minute))
	st.PutBatch("old", batch(1, result("stale", "x")))

	st.now = fixedClock(base)
	st.PutBatch("new", batch(2, result("c", "x"), result("a", "x"), result("b", "x")))

	list := st.List()
	if len(list) != 3 {
		t.Fatalf("List: got %d entries, want 3", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].Result.UUID != want {
			t.Errorf("List[%d]: got %q, want %q", i, list[i].Result.UUID, want)
		}
	}
	if _, ok := st.Get("stale"); ok {
		t.Error("Get: stale entry should be reported missing")
	}
	if st.Count() != 4 {
		t.Errorf("Count: got %d, want 4 (stale not yet evicted)", st.Count())
	}
}

func TestEvict(t *testing.T) {
	st := New(1 * time.Minute)
	base := time.Now()

	st.now = fixedClock(base.Add(-2 * time.Minute))
	st.PutBatch("old", batch(1, result("old-1", "x"), result("old-2", "x")))
	st.now = fixedClock(base)
	st.PutBatch("new", batch(2, result("fresh", "x")))

	if removed := st.Evict(base); removed != 2 {
		t.Errorf("Evict: removed %d, want 2", removed)
	}
	if st.Count() != 1 {
		t.Errorf("Count after evict: got %d, want 1", st.Count())
	}
}

func TestConcurrentAccess(t *testing.T) {
	st := New(5 * time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			st.PutBatch(fmt.Sprintf("b-%d", i), batch(uint64(i), result(fmt.Sprintf("e-%d", i%5), "x")))
		}(i)
		go func() {
			defer wg.Done()
			st.List()
			st.Batches()
		}()
	}
	wg.Wait()
	if st.Count() != 5 {
		t.Errorf("Count: got %d, want 5", st.Count())
	}
	if n, _ := st.Batches(); n != 50 {
		t.Errorf("batches: got %d, want 50", n)
	}
}
