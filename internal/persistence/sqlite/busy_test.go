// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("database is locked (5) (SQLITE_BUSY)")

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{Retries: retries, Initial: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestIsBusy(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.True(t, IsBusy(errBusy))
	assert.True(t, IsBusy(errors.New("database table is locked")))
	assert.False(t, IsBusy(errors.New("no such table: programs")))
}

func TestRetry_SucceedsAfterBusy(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_BoundedThenUnavailable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(2), func(context.Context) error {
		calls++
		return errBusy
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 3, calls, "one attempt plus two retries")
}

func TestRetry_NonBusyIsPermanent(t *testing.T) {
	boom := errors.New("no such table: programs")
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, calls)
}

func TestRunTx_LockedDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "guide.db")

	holder, err := Open(ctx, path, DefaultConfig())
	require.NoError(t, err)
	defer holder.Close()
	_, err = holder.Exec("CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	tx, err := holder.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.Exec("INSERT INTO t (v) VALUES (1)")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.BusyTimeout = 0
	cfg.Retry = fastPolicy(2)
	writer, err := Open(ctx, path, cfg)
	require.NoError(t, err)
	defer writer.Close()

	err = RunTx(ctx, writer, cfg.Retry, func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO t (v) VALUES (2)")
		return err
	})
	require.ErrorIs(t, err, ErrStoreUnavailable)

	require.NoError(t, tx.Commit())

	err = RunTx(ctx, writer, cfg.Retry, func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO t (v) VALUES (2)")
		return err
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, writer.QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
	assert.Equal(t, 2, n)
}
