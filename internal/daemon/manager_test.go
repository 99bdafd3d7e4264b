// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerRequiresHandler(t *testing.T) {
	_, err := NewManager(DefaultServerConfig("127.0.0.1:0"), nil)
	assert.ErrorIs(t, err, ErrMissingHandler)

	_, err = NewManager(ServerConfig{}, nil)
	assert.NoError(t, err, "no listener needs no handler")
}

func TestShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(ServerConfig{}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManagerServesUntilCancelled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), handler)
	require.NoError(t, err)
	m := mgr.(*manager)

	var order []string
	m.RegisterShutdownHook("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.RegisterShutdownHook("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	require.Eventually(t, func() bool { return m.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + m.Addr().String() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
	assert.Equal(t, []string{"second", "first"}, order, "hooks run LIFO")

	assert.Error(t, m.Start(context.Background()), "a manager starts once")
}

func TestShutdownCollectsHookErrors(t *testing.T) {
	mgr, err := NewManager(ServerConfig{}, nil)
	require.NoError(t, err)
	boom := errors.New("boom")
	mgr.RegisterShutdownHook("failing", func(context.Context) error { return boom })
	ran := false
	mgr.RegisterShutdownHook("ok", func(context.Context) error { ran = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = mgr.Start(ctx)
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran, "later hooks still run")
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	first, err := NewManager(DefaultServerConfig("127.0.0.1:0"), http.NotFoundHandler())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- first.Start(ctx) }()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, func() bool { return first.(*manager).Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	second, err := NewManager(DefaultServerConfig(first.(*manager).Addr().String()), http.NotFoundHandler())
	require.NoError(t, err)
	assert.Error(t, second.Start(context.Background()))
}
