// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/authsvc/internal/config"
	"github.com/holomush/authsvc/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authsvc CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authsvc",
		Short: "authsvc - password authentication service",
		Long: `authsvc registers users, verifies their passwords and issues
signed session tokens for the HTTP API.`,
		SilenceUsage: true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default $XDG_CONFIG_HOME/authsvc/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig layers the config file, environment and cmd's flags. Without
// --config the XDG config file is used when it exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, ok, err := xdg.FindConfigFile()
		if err != nil {
			return nil, err //nolint:wrapcheck // already coded
		}
		if ok {
			path = found
		}
	}
	return config.Load(path, cmd.Flags()) //nolint:wrapcheck // already coded
}
