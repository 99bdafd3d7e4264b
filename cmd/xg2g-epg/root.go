// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/xg2g-epg/internal/config"
	"github.com/ManuGH/xg2g-epg/internal/daemon"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/version"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "xg2g-epg",
		Short:         "Electronic program guide store and importer",
		Long:          "xg2g-epg imports XMLTV and Enigma2 listings into a local guide database and answers queries over it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (YAML)")
	root.PersistentFlags().String("log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCmd(),
		newImportCmd(),
		newSearchCmd(),
		newGridCmd(),
		newChannelsCmd(),
		newTermsCmd("genres", "List genres with their program counts"),
		newTermsCmd("keywords", "List title keywords with their program counts"),
		newExportCmd(),
		newRecreateCmd(),
		newVerifyCmd(),
		newVersionCmd(),
	)
	return root
}

// configPath resolves --config, falling back to <XG2G_EPG_DATA_DIR>/config.yaml
// when that file exists.
func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); strings.TrimSpace(p) != "" {
		return p
	}
	dataDir := config.ParseString(config.EnvPrefix+"DATA_DIR", "")
	if dataDir == "" {
		return ""
	}
	auto := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(auto); err == nil {
		return auto
	}
	return ""
}

// loadConfig loads the configuration and configures logging from it. Logs go
// to stderr so command output stays parseable.
func loadConfig(cmd *cobra.Command) (config.AppConfig, error) {
	path := configPath(cmd)
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		return cfg, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Output:  cmd.ErrOrStderr(),
		Service: cfg.LogService,
		Version: cfg.Version,
	})

	logger := xglog.WithComponent("cli")
	ev := logger.Debug().Str(xglog.FieldEvent, "config.loaded")
	if path != "" {
		ev = ev.Str("source", "file").Str(xglog.FieldPath, path)
	} else {
		ev = ev.Str("source", "env+defaults")
	}
	ev.Msg("configuration loaded")
	return cfg, nil
}

// openRuntime loads the configuration and opens the guide.
func openRuntime(cmd *cobra.Command) (*daemon.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	rt, err := daemon.Open(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open guide: %w", err)
	}
	return rt, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "xg2g-epg %s\n", version.String())
			return err
		},
	}
}
