package formdef

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/qmmcmx/problemtrack/internal/logging"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads a definition file into a Holder whenever it changes.
// Invalid edits are logged and the previous definition stays active.
type Watcher struct {
	path     string
	holder   *Holder
	logger   *zap.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	// onReload, when set, is called after every reload attempt.
	onReload func(error)
}

// NewWatcher watches path's directory so editor rename-and-replace saves are seen.
func NewWatcher(path string, holder *Holder, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		holder:   holder,
		logger:   logging.OrNop(logger),
		debounce: defaultDebounce,
		watcher:  fsw,
	}, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("form definition watch error", zap.Error(err))

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	def, err := Load(w.path)
	if err != nil {
		w.logger.Warn("form definition reload failed, keeping previous", zap.String("path", w.path), zap.Error(err))
	} else {
		w.holder.Set(def)
		w.logger.Info("form definition reloaded",
			zap.String("path", w.path),
			zap.Int("lines", len(def.Lines)),
			zap.Int("required", len(def.Required)))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
