// Package ingest discovers inbox documents, both via an initial scan
// and by watching the directory for new scans.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mlehnert/docner/constants"
)

type WatchConfig struct {
	Inbox       string        // directory the scan service drops files into
	InitialScan bool          // if true, emit files already present at startup
	Debounce    time.Duration // coalesce rapid write bursts while a scan uploads
}

// StartWatcher emits inbox document paths until ctx is cancelled. The
// error channel carries watcher errors; both channels close on exit.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if strings.TrimSpace(cfg.Inbox) == "" {
		slog.Error("watcher start failed: no inbox configured")
		return nil, nil, errors.New("no inbox configured")
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}
	if err := w.Add(cfg.Inbox); err != nil {
		slog.Error("failed to watch inbox", "inbox", cfg.Inbox, "error", err)
		_ = w.Close()
		return nil, nil, err
	}

	if cfg.InitialScan {
		err := filepath.WalkDir(cfg.Inbox, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != cfg.Inbox {
					return filepath.SkipDir
				}
				return nil
			}
			if allowed(path) {
				select {
				case evCh <- path:
				default:
					slog.Warn("inbox event dropped, channel full", "path", path)
				}
			}
			return nil
		})
		if err != nil {
			slog.Error("initial inbox scan failed", "inbox", cfg.Inbox, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				slog.Warn("watcher close failed", "error", err)
			}
		}()

		var timer *time.Timer
		pending := map[string]struct{}{}
		// The debounce timer fires on its own goroutine; it only pokes
		// this channel, so pending stays confined to the event loop.
		flush := make(chan struct{}, 1)

		sendPending := func() {
			for p := range pending {
				select {
				case evCh <- p:
				default:
					slog.Warn("inbox event dropped, channel full", "path", p)
				}
				delete(pending, p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-flush:
				sendPending()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if allowed(e.Name) && (e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename)) != 0 {
					pending[e.Name] = struct{}{}
					if cfg.Debounce > 0 {
						if timer != nil {
							timer.Stop()
						}
						timer = time.AfterFunc(cfg.Debounce, func() {
							select {
							case flush <- struct{}{}:
							default:
							}
						})
					} else {
						sendPending()
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func allowed(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		// Editors and sync clients write hidden temp files.
		return false
	}
	ext := constants.NormalizeExt(filepath.Ext(path))
	_, ok := constants.AllowedExtensions[ext]
	return ok
}
