// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmltv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatchDebouncesChanges(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	path := filepath.Join(dir, "tv.xml")
	require.NoError(t, os.WriteFile(path, []byte("<tv/>"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 50*time.Millisecond, func(context.Context) { calls <- struct{}{} })
	}()
	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.xml"), []byte("<tv/>"), 0o600))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("<tv></tv>"), 0o600))
	}

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire")
	}
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, calls, "rapid writes must coalesce into one call")

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "tv.xml"), time.Millisecond, func(context.Context) {})
	assert.Error(t, err)
}
