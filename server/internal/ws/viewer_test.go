package ws

import (
	"testing"
	"time"

	"github.com/qtcstream/qtcstream/server/internal/store"
)

func TestViewer_OfferKeepsNewest(t *testing.T) {
	v := newViewer(nil)

	if v.offer([]byte("1")) {
		t.Error("first offer reported a replacement")
	}
	if !v.offer([]byte("2")) {
		t.Error("second offer did not replace the pending message")
	}
	v.offer([]byte("3"))

	if got := string(<-v.pending); got != "3" {
		t.Errorf("pending: got %q, want 3", got)
	}
	select {
	case m := <-v.pending:
		t.Errorf("more than one pending message: %q", m)
	default:
	}
}

func TestHub_StopRefusesNewViewers(t *testing.T) {
	h := New(store.New(time.Minute), time.Hour)
	v := newViewer(nil)
	if !h.join(v) {
		t.Fatal("join before stop refused")
	}

	h.stop()

	select {
	case <-v.done:
	default:
		t.Error("stop did not close the viewer")
	}
	if h.Count() != 0 {
		t.Errorf("Count after stop: got %d", h.Count())
	}
	if h.join(newViewer(nil)) {
		t.Error("join after stop accepted")
	}
	h.leave(v) // closing twice is fine
}
