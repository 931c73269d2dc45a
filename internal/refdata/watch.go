package refdata

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce coalesces editor write bursts into a single reload.
const debounce = 500 * time.Millisecond

// Watch reloads the reference data whenever either backing file changes.
// It watches the parent directories so atomic rename-style rewrites are
// seen too. Blocks until ctx is done.
func (d *Data) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	watched := map[string]bool{}
	for _, p := range []string{d.timetablePath, d.roomsPath} {
		if strings.TrimSpace(p) == "" {
			continue
		}
		dir := filepath.Dir(p)
		if watched[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			d.log.Warn().Err(err).Str("dir", dir).Msg("cannot watch reference data dir")
			continue
		}
		watched[dir] = true
	}
	if len(watched) == 0 {
		<-ctx.Done()
		return nil
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !d.tracks(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.log.Warn().Err(err).Msg("reference data watcher error")
		case <-timerC:
			timerC = nil
			timer = nil
			d.Reload()
		}
	}
}

func (d *Data) tracks(name string) bool {
	base := filepath.Base(name)
	return base == filepath.Base(d.timetablePath) || base == filepath.Base(d.roomsPath)
}
