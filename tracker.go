package autorefresh

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livebud/watcher"
)

// Change describes a poll cycle that saw at least one watched file change
type Change struct {
	Time  time.Time
	Paths []string
}

const defaultInterval = 500 * time.Millisecond

// NewTracker creates a tracker for the files in fsys. The last change is
// initialized to the current time.
func NewTracker(log *slog.Logger, fsys fs.FS) *Tracker {
	t := &Tracker{
		Extensions: []string{".html", ".css", ".js"},
		Interval:   defaultInterval,
		log:        log,
		fsys:       fsys,
		mtimes:     map[string]time.Time{},
		wake:       make(chan struct{}, 1),
	}
	t.lastChange.Store(time.Now().UnixNano())
	return t
}

// Tracker polls the modification times of watched files and keeps track of
// the last time any of them changed.
type Tracker struct {
	Extensions []string
	Interval   time.Duration // non-positive values use the default

	log  *slog.Logger
	fsys fs.FS
	wake chan struct{}

	mu     sync.Mutex
	mtimes map[string]time.Time

	// unix nanoseconds, only ever moves forward
	lastChange atomic.Int64
}

// LastChange returns the last time a watched file was seen to change
func (t *Tracker) LastChange() time.Time {
	return time.Unix(0, t.lastChange.Load())
}

func (t *Tracker) touch(now time.Time) {
	next := now.UnixNano()
	for {
		prev := t.lastChange.Load()
		if next <= prev || t.lastChange.CompareAndSwap(prev, next) {
			return
		}
	}
}

func (t *Tracker) interval() time.Duration {
	if t.Interval <= 0 {
		return defaultInterval
	}
	return t.Interval
}

func (t *Tracker) watched(name string) bool {
	ext := path.Ext(name)
	for _, e := range t.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Scan walks the filesystem once and returns the watched files that were
// modified since the previous scan. Files seen for the first time are only
// recorded, so the first scan never counts as a change.
func (t *Tracker) Scan(ctx context.Context) (changed []string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	err = fs.WalkDir(t.fsys, ".", func(name string, de fs.DirEntry, err error) error {
		if err != nil {
			if name == "." {
				return err
			}
			// Vanished or unreadable, try again next time
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if de.IsDir() || !t.watched(name) {
			return nil
		}
		fi, err := fs.Stat(t.fsys, name)
		if err != nil || !fi.Mode().IsRegular() {
			return nil
		}
		mtime := fi.ModTime()
		prev, ok := t.mtimes[name]
		if !ok {
			t.mtimes[name] = mtime
			return nil
		}
		if mtime.After(prev) {
			t.mtimes[name] = mtime
			t.log.Info("File changed", "path", name)
			changed = append(changed, name)
		}
		return nil
	})
	if len(changed) > 0 {
		t.touch(time.Now())
	}
	if err != nil {
		return changed, fmt.Errorf("autorefresh: unable to scan: %w", err)
	}
	return changed, nil
}

// scan runs a single cycle, turning a panic into an error so the loop
// survives it
func (t *Tracker) scan(ctx context.Context) (changed []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("autorefresh: scan panicked: %v", r)
		}
	}()
	return t.Scan(ctx)
}

// Run scans every interval until the context is canceled. After each cycle
// that saw a change, onChange is called if it's not nil. Errors are logged
// and never stop the loop.
func (t *Tracker) Run(ctx context.Context, onChange func(Change)) error {
	ticker := time.NewTicker(t.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-t.wake:
		}
		changed, err := t.scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.log.Error("autorefresh: error in file watcher", "error", err)
			continue
		}
		if len(changed) == 0 || onChange == nil {
			continue
		}
		onChange(Change{t.LastChange(), changed})
	}
}

// Wake triggers a scan without waiting for the next tick. It never blocks.
func (t *Tracker) Wake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Notify listens for filesystem events under dir and wakes the tracker when
// they arrive. Modification times still decide what counts as a change.
func (t *Tracker) Notify(ctx context.Context, dir string) error {
	return watcher.Watch(ctx, dir, func(events []watcher.Event) error {
		for _, event := range events {
			t.log.Debug("autorefresh: got event", "event", event)
		}
		t.Wake()
		return nil
	})
}
