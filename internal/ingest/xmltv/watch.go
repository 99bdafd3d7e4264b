// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmltv

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/fsnotify/fsnotify"
)

// Watch calls fn after path was written, created or renamed into place and
// then stayed quiet for debounce. The parent directory is watched so that
// atomic replacements are seen. fn runs on the watcher goroutine; changes
// during fn coalesce into one more call. Watch returns when ctx ends.
func Watch(ctx context.Context, path string, debounce time.Duration, fn func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	logger := xglog.WithComponentFromContext(ctx, "xmltv")
	logger.Info().
		Str(xglog.FieldEvent, "xmltv.watcher_started").
		Str(xglog.FieldPath, path).
		Msg("watching listings file for changes")

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str(xglog.FieldEvent, "xmltv.watcher_stopped").Msg("listings watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				logger.Debug().
					Str(xglog.FieldEvent, "xmltv.file_changed").
					Str("op", event.Op.String()).
					Msg("listings file changed")
				timer.Reset(debounce)
			}

		case <-timer.C:
			fn(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Str(xglog.FieldEvent, "xmltv.watcher_error").Msg("listings watcher error")
		}
	}
}
