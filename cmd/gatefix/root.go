// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package main

import (
	"errors"

	"github.com/gatefix-dev/gatefix/internal/config"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Learning store and provider backends self-register.
	_ "github.com/gatefix-dev/gatefix/internal/provider/anthropic"
	_ "github.com/gatefix-dev/gatefix/internal/provider/openai"
	_ "github.com/gatefix-dev/gatefix/internal/store/sqlite"
)

// NewRootCmd creates the root gatefix command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gatefix",
		Short:         "Gatefix — gated autonomous code repair",
		Long:          "Gatefix runs a gated proposal/execution loop that localizes, patches, and verifies code fixes under strict budgets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags — these map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newRunCmd(),
		newEvalCmd(),
		newStrategiesCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return gferr.Errorf(gferr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
		config.WarnInsecurePermissions(cfgFile)
	} else {
		// Auto-discover gatefix.yaml from standard locations.
		// Note: SetConfigType is intentionally omitted. When set, Viper
		// falls back to trying the bare config name without extension,
		// which collides with the ./gatefix binary in the project root.
		v.SetConfigName("gatefix")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gatefix")
		v.AddConfigPath("/etc/gatefix")
		// No config file is fine — defaults and env vars still apply.
		// Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return gferr.Errorf(gferr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			// No config found anywhere — bootstrap a default to ~/.config/gatefix/.
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return gferr.Errorf(gferr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
		if used := v.ConfigFileUsed(); used != "" {
			config.WarnInsecurePermissions(used)
		}
	}

	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return gferr.Errorf(gferr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}
