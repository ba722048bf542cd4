package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/qtcstream/qtcstream/creator/internal/transform"
)

// reloadDelay is how long the file must stay quiet before it is reloaded.
// Editors and atomic saves emit several events per save.
const reloadDelay = 150 * time.Millisecond

// Live is the part of a running creator that follows the config file.
// Everything else in Config needs a restart.
type Live struct {
	Params *ParamStore
	Tree   *transform.Tree // optional
	Level  *slog.LevelVar  // optional
}

// Reload describes what Apply put into effect.
type Reload struct {
	Params Params
	Frames int
	Level  slog.Level
}

// Apply installs the reloadable settings of cfg. When the params are
// rejected nothing else is applied.
func (l Live) Apply(cfg *Config) (Reload, error) {
	if err := l.Params.Replace(cfg.Params); err != nil {
		return Reload{}, err
	}
	r := Reload{Params: cfg.Params, Frames: len(cfg.Frames)}
	if l.Tree != nil {
		cfg.ApplyFrames(l.Tree)
	}
	if l.Level != nil {
		if lvl, err := ParseLevel(cfg.LogLevel); err == nil {
			l.Level.Set(lvl)
		}
		r.Level = l.Level.Level()
	}
	return r, nil
}

// Watch reloads path once it has been quiet for reloadDelay after a write
// and passes the new Config to onChange. It runs until ctx is cancelled.
// A file that fails to load is logged and skipped, so the previous
// configuration stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path, "delay", reloadDelay)

	var (
		timer   *time.Timer
		settled <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Atomic saves replace the inode; watch the new one.
			if event.Has(fsnotify.Create) {
				_ = watcher.Add(path)
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			settled = timer.C

		case <-settled:
			settled = nil
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", path,
				"qtc_type", cfg.Params.QTCType, "frames", len(cfg.Frames))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
