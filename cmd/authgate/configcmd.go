// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/authgate/internal/config"
)

const redacted = "REDACTED"

func newConfigCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML, secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, deps)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(redact(*cfg))
			if err != nil {
				return oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	config.BindFlags(show.Flags())
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for config files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(schema, '\n'))
			return err
		},
	})

	return cmd
}

func redact(cfg config.Config) config.Config {
	if cfg.Database.URL != "" {
		cfg.Database.URL = redacted
	}
	if cfg.Notify.SMTP.Password != "" {
		cfg.Notify.SMTP.Password = redacted
	}
	return cfg
}
