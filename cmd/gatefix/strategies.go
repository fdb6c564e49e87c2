// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/gatefix-dev/gatefix/internal/learning"
	"github.com/spf13/cobra"
)

func newStrategiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "Inspect and manage the repair strategy catalog",
	}

	cmd.AddCommand(
		newStrategiesListCmd(),
		newStrategiesStatsCmd(),
		newStrategiesQuarantineCmd(),
		newStrategiesReleaseCmd(),
	)
	return cmd
}

func newStrategiesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the strategy catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPRIORITY\tDEFENSIVE\tDESCRIPTION")
			for _, def := range learning.All() {
				fmt.Fprintf(w, "%s\t%g\t%t\t%s\n",
					def.Name, def.Priority, def.Defensive, def.Description)
			}
			return w.Flush()
		},
	}
}

func newStrategiesStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <context-key>",
		Short: "Show bandit statistics for a learning context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			comp, err := buildLearningOnly(cfg)
			if err != nil {
				return err
			}
			defer comp.Close()

			arms, err := comp.bandit.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STRATEGY\tTRIES\tWINS\tREGRESSIONS\tREWARD")
			for _, arm := range arms {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f\n",
					arm.Strategy, arm.Tries, arm.Wins, arm.Regressions, arm.TotalReward)
			}
			return w.Flush()
		},
	}
}

func newStrategiesQuarantineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine <strategy>",
		Short: "Force a strategy into global quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			comp, err := buildLearningOnly(cfg)
			if err != nil {
				return err
			}
			defer comp.Close()

			reason, _ := cmd.Flags().GetString("reason")
			if err := comp.lane.ForceQuarantine(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Strategy %s quarantined globally\n", args[0])
			return nil
		},
	}
	cmd.Flags().String("reason", "operator request", "reason recorded with the quarantine")
	return cmd
}

func newStrategiesReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <strategy>",
		Short: "Release a strategy from global quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			comp, err := buildLearningOnly(cfg)
			if err != nil {
				return err
			}
			defer comp.Close()

			if err := comp.lane.Release(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Strategy %s released\n", args[0])
			return nil
		},
	}
}
