// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup runs external helper programs (listing grabbers, sorters)
// in their own process group so that cancellation reaches their children too.
package procgroup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
)

// DefaultGrace is how long a cancelled process gets between SIGTERM and SIGKILL.
const DefaultGrace = 5 * time.Second

var ErrNotStarted = errors.New("procgroup: process did not start")

// Run starts cmd in a new process group and waits for it. When ctx ends
// first, the group is terminated (SIGTERM, then SIGKILL after grace) and the
// returned error wraps ctx.Err().
func Run(ctx context.Context, cmd *exec.Cmd, grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultGrace
	}
	Set(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotStarted, cmd.Path, err)
	}

	logger := xglog.FromContext(ctx).With().
		Int("pid", cmd.Process.Pid).
		Str(xglog.FieldPath, cmd.Path).
		Logger()
	logger.Debug().Msg("process started")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		return err
	case <-ctx.Done():
		logger.Info().Dur("grace", grace).Msg("terminating process group")
		return errors.Join(ctx.Err(), Terminate(cmd, waitCh, grace))
	}
}

// Terminate stops the process group of cmd and returns the result of
// cmd.Wait, which waitCh must deliver. The group gets SIGTERM and, if still
// running after grace, SIGKILL. Nil commands are ignored.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	signal(cmd, syscall.SIGTERM)
	timer := time.NewTimer(grace)
	defer timer.Stop()

	forced := false
	var err error
	select {
	case err = <-waitCh:
	case <-timer.C:
		forced = true
		signal(cmd, syscall.SIGKILL)
		err = <-waitCh
	}
	metrics.IncProcWait(waitOutcome(forced, err))
	return err
}

func signal(cmd *exec.Cmd, sig syscall.Signal) {
	result := "sent"
	if err := Kill(cmd, sig); err != nil {
		result = "error"
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			result = "esrch"
		}
	}
	name := "SIGTERM"
	if sig == syscall.SIGKILL {
		name = "SIGKILL"
	}
	metrics.IncProcTerminate(name, result)
}

func waitOutcome(forced bool, err error) string {
	switch {
	case forced && err == nil:
		return "forced_exit0"
	case forced:
		return "forced_error"
	case err == nil:
		return "exit0"
	default:
		return "exit_nonzero"
	}
}
