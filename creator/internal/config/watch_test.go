package config

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/qtcstream/qtcstream/creator/internal/qtc"
	"github.com/qtcstream/qtcstream/creator/internal/transform"
)

func TestLive_Apply(t *testing.T) {
	cfg := loadFromString(t, `
log_level: debug
params:
  qtc_type: 0
frames:
  - child: base_link
    parent: map
  - child: laser
    parent: base_link
`)
	tree := transform.NewTree()
	tree.Set("stale", "map", transform.Identity)
	level := new(slog.LevelVar)
	live := Live{Params: NewParamStore(DefaultParams()), Tree: tree, Level: level}

	r, err := live.Apply(cfg)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r.Frames != 2 || tree.Frames() != 2 {
		t.Errorf("frames: reload %d, tree %d, want 2", r.Frames, tree.Frames())
	}
	if r.Level != slog.LevelDebug || level.Level() != slog.LevelDebug {
		t.Errorf("level: reload %v, var %v", r.Level, level.Level())
	}
	if live.Params.Snapshot().QTCType != qtc.QTCB || r.Params.QTCType != qtc.QTCB {
		t.Errorf("params: store %+v, reload %+v", live.Params.Snapshot(), r.Params)
	}
}

func TestLive_ApplyRejectedParamsKeepsState(t *testing.T) {
	tree := transform.NewTree()
	tree.Set("base_link", "map", transform.Identity)
	level := new(slog.LevelVar)
	live := Live{Params: NewParamStore(DefaultParams()), Tree: tree, Level: level}

	cfg := &Config{LogLevel: "error", Params: DefaultParams()}
	cfg.Params.QuantisationFactor = 0

	if _, err := live.Apply(cfg); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("Apply: got %v, want ErrInvalidParams", err)
	}
	if tree.Frames() != 1 {
		t.Errorf("frames changed: %d", tree.Frames())
	}
	if level.Level() != slog.LevelInfo {
		t.Errorf("level changed: %v", level.Level())
	}
	if live.Params.Snapshot() != DefaultParams() {
		t.Errorf("params changed: %+v", live.Params.Snapshot())
	}
}

func TestLive_ApplyWithoutTreeOrLevel(t *testing.T) {
	live := Live{Params: NewParamStore(DefaultParams())}
	want := DefaultParams()
	want.Collapse = false
	r, err := live.Apply(&Config{Params: want, LogLevel: "debug"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r.Frames != 0 || live.Params.Snapshot() != want {
		t.Errorf("got %+v, store %+v", r, live.Params.Snapshot())
	}
}

func TestWatch_CoalescesBurst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "processing_rate: 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 16)
	go Watch(ctx, path, func(c *Config) { got <- c })

	time.Sleep(100 * time.Millisecond)

	// Each write lands well inside reloadDelay of the previous one.
	for _, rate := range []string{"1", "2", "3", "4", "7"} {
		writeFile(t, path, "processing_rate: "+rate+"\n")
		time.Sleep(reloadDelay / 10)
	}

	select {
	case c := <-got:
		if c.ProcessingRate != 7 {
			t.Fatalf("first reload: rate %v, want 7", c.ProcessingRate)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after burst")
	}

	select {
	case c := <-got:
		t.Errorf("extra reload: rate %v", c.ProcessingRate)
	case <-time.After(3 * reloadDelay):
	}
}
