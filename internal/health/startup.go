// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ManuGH/xg2g-epg/internal/config"
	"github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the daemon opens the
// guide: the data directory must be writable and configured helper programs
// must resolve.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkHelpers(logger, cfg.XMLTV); err != nil {
		return fmt.Errorf("xmltv helper check failed: %w", err)
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; the guide may be lost on reboot")
	}

	logger.Debug().Msg("startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	_ = os.Remove(testFile)

	logger.Debug().Str("path", path).Msg("data directory is writable")
	return nil
}

// checkHelpers resolves the grabber and sort programs when the XMLTV source
// will run them.
func checkHelpers(logger zerolog.Logger, cfg config.XMLTVConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if fields := strings.Fields(cfg.Grabber); len(fields) > 0 {
		if _, err := exec.LookPath(fields[0]); err != nil {
			return fmt.Errorf("grabber %q: %w", fields[0], err)
		}
		logger.Debug().Str("grabber", fields[0]).Msg("grabber found")
	}
	if cfg.Grabber != "" && cfg.Sort != "" {
		if _, err := exec.LookPath(cfg.Sort); err != nil {
			return fmt.Errorf("sort program %q: %w", cfg.Sort, err)
		}
	}
	return nil
}
