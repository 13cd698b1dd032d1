// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/xdg"
)

// NewRootCmd creates the root command for the authgate CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "authgate",
		Short: "authgate - login, session and password reset service",
		Long: `authgate verifies credentials, throttles brute force, issues
sessions and runs the two-step password reset flow.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "config file path (YAML; default $XDG_CONFIG_HOME/authgate/config.yaml)")

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newActorCmd(deps))
	cmd.AddCommand(newConfigCmd(deps))
	return cmd
}

// loadConfig resolves the config file (--config, else the XDG default), the
// command's flags and the environment into a validated Config.
func loadConfig(cmd *cobra.Command, deps *Deps) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if path == "" {
		if path, err = xdg.DefaultConfigFile(deps.Getenv); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path, cmd.Flags(), deps.Getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
