// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/cenkalti/backoff/v5"
)

// ErrStoreUnavailable is returned once busy retries are exhausted.
var ErrStoreUnavailable = errors.New("sqlite: store unavailable")

// RetryPolicy bounds the retry loop for busy/locked errors.
type RetryPolicy struct {
	Retries int
	Initial time.Duration
	Max     time.Duration
}

// DefaultRetryPolicy retries 8 times, backing off from 50ms up to 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 8, Initial: 50 * time.Millisecond, Max: 2 * time.Second}
}

// IsBusy reports whether err indicates an SQLite BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Retry runs op until it succeeds or fails with a non-busy error. Busy errors
// are retried with exponential backoff; past the bound the last error is
// returned wrapped in ErrStoreUnavailable.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}

	logger := xglog.WithComponent("sqlite")
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !IsBusy(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(p.Retries, 0))+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug().Err(err).Int("attempt", attempts).Dur("next", next).Msg("store busy, retrying")
		}),
	)
	if err != nil && IsBusy(err) {
		logger.Error().Err(err).Int("attempts", attempts).Msg("store busy, giving up")
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

// RunTx executes fn inside a transaction, retrying the whole transaction on busy errors.
func RunTx(ctx context.Context, db *sql.DB, p RetryPolicy, fn func(*sql.Tx) error) error {
	return Retry(ctx, p, func(ctx context.Context) error {
		return runOnce(ctx, db, fn)
	})
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
