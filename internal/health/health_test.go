// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock"}
}

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks, "checks only in verbose mode")

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		wantReady bool
		want      Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded stays ready", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy wins", []Status{StatusUnhealthy, StatusDegraded}, false, StatusUnhealthy},
		{"unhealthy wins in any order", []Status{StatusDegraded, StatusUnhealthy}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("test")
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestManager_ServeReady(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(NewPingChecker("store", func(context.Context) error { return errors.New("closed") }))
	m.SetDetails(func(context.Context) map[string]any { return map[string]any{"programs": 3} })

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
	assert.Equal(t, "closed", resp.Checks["store"].Error)
	assert.EqualValues(t, 3, resp.Details["programs"])
}

func TestManager_ServeHealthAlways200(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unhealthy"`)
}

func TestFileChecker(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "listings.xml")
	require.NoError(t, os.WriteFile(full, []byte("<tv/>"), 0o600))
	empty := filepath.Join(dir, "empty.xml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	tests := []struct {
		name string
		path string
		want Status
	}{
		{"not configured", "", StatusHealthy},
		{"present", full, StatusHealthy},
		{"empty", empty, StatusDegraded},
		{"missing", filepath.Join(dir, "nope.xml"), StatusDegraded},
		{"directory", dir, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewFileChecker("xmltv_data", tt.path, StatusDegraded)
			assert.Equal(t, "xmltv_data", c.Name())
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}

func TestLastRunChecker(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		name string
		last time.Time
		err  error
		want Status
		msg  string
	}{
		{"never ran", time.Time{}, nil, StatusDegraded, "no successful run yet"},
		{"failed", now.Add(-time.Minute), errors.New("receiver down"), StatusDegraded, "last run failed"},
		{"fresh", now.Add(-time.Hour), nil, StatusHealthy, "last run successful"},
		{"stale", now.Add(-13 * time.Hour), nil, StatusDegraded, "last successful run is 13h0m0s old"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLastRunChecker("ingest_xmltv", 12*time.Hour, func() (time.Time, error) { return tt.last, tt.err })
			c.now = func() time.Time { return now }
			got := c.Check(context.Background())
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.msg, got.Message)
		})
	}
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = filepath.Join(t.TempDir(), "nested", "data")
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))
	assert.DirExists(t, cfg.DataDir)

	cfg.XMLTV.Enabled = true
	cfg.XMLTV.Grabber = "tv_grab_does_not_exist_anywhere --quiet"
	err := PerformStartupChecks(context.Background(), cfg)
	assert.ErrorContains(t, err, "tv_grab_does_not_exist_anywhere")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	cfg.XMLTV.Enabled = false
	cfg.DataDir = file
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))
}
