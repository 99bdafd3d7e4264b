// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, app *App) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("app did not stop")
			return nil
		}
	}
}

func TestNewAppRequiresRuntime(t *testing.T) {
	_, err := NewApp(nil, nil)
	assert.ErrorIs(t, err, ErrMissingRuntime)
}

func TestAppInitialRefresh(t *testing.T) {
	cfg := withListings(t, testConfig(t))
	rt, err := Open(context.Background(), cfg)
	require.NoError(t, err)

	app, err := NewApp(rt, nil)
	require.NoError(t, err)
	stop := runApp(t, app)

	require.Eventually(t, func() bool { return rt.Guide.NumPrograms() == 2 }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, stop())

	assert.Error(t, rt.Store.DB().Ping(), "runtime is closed after Run")
}

func TestAppWatchReimports(t *testing.T) {
	cfg := withListings(t, testConfig(t))
	cfg.XMLTV.Watch = true
	cfg.XMLTV.WatchDebounce = 20 * time.Millisecond
	rt, err := Open(context.Background(), cfg)
	require.NoError(t, err)

	app, err := NewApp(rt, nil)
	require.NoError(t, err)
	stop := runApp(t, app)
	defer func() { require.NoError(t, stop()) }()

	require.Eventually(t, func() bool { return rt.Guide.NumPrograms() == 2 }, 5*time.Second, 20*time.Millisecond)

	updated := `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="ard.de"><display-name>1</display-name><display-name>ARD</display-name></channel>
  <programme start="20250102200000 +0000" stop="20250102201500 +0000" channel="ard.de"><title>Tagesschau</title></programme>
</tv>
`
	require.Eventually(t, func() bool {
		// rewrite until the watcher, started concurrently with the first refresh, sees it
		_ = os.WriteFile(cfg.XMLTV.DataFile, []byte(updated), 0o600)
		return rt.Guide.NumPrograms() == 3
	}, 5*time.Second, 100*time.Millisecond)
}
