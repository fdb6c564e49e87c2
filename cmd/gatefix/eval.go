// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package main

import (
	"fmt"

	"github.com/gatefix-dev/gatefix/internal/agent"
	"github.com/gatefix-dev/gatefix/internal/eval"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run a batch of repair tasks from a manifest",
		Long:  "Run every task in a YAML manifest through the repair loop with bounded parallelism and write per-task results plus a summary.",
		RunE:  runEval,
	}

	cmd.Flags().String("tasks", "", "path to the task manifest (required)")
	cmd.Flags().String("run-id", "", "identifier for this batch run")
	cmd.Flags().Int("parallel", 0, "override eval.parallel")
	_ = cmd.MarkFlagRequired("tasks")
	_ = viper.BindPFlag("eval.parallel", cmd.Flags().Lookup("parallel"))

	return cmd
}

func runEval(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Eval.Parallel < 1 {
		cfg.Eval.Parallel = 1
	}

	manifestPath, _ := cmd.Flags().GetString("tasks")
	runID, _ := cmd.Flags().GetString("run-id")
	if runID == "" {
		runID = "eval-" + uuid.NewString()[:8]
	}

	tasks, err := eval.LoadTasks(manifestPath)
	if err != nil {
		return err
	}

	comp, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comp.Close()

	executor := agent.NewExecutor()
	runner := eval.NewRunner(*cfg, comp.planner.Propose, executor.Execute).
		WithObserver(comp.planner)

	results, err := runner.RunBatch(cmd.Context(), tasks)
	if err != nil {
		return err
	}

	summary, err := eval.SaveResults(cfg.Eval.ResultsDir, runID, results)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", summary.RunID)
	fmt.Fprintf(out, "Solved:   %d/%d\n", summary.Solved, summary.TotalTasks)
	fmt.Fprintf(out, "Avg:      %.1f rounds, %.1f patches per task\n", summary.AvgRounds, summary.AvgPatches)
	fmt.Fprintf(out, "Elapsed:  %.1fs total, %d model calls\n", summary.TotalSeconds, summary.ModelCalls)

	if summary.Solved == 0 && summary.TotalTasks > 0 {
		return gferr.New(gferr.CodeEvalBatchFailure, "no tasks solved",
			gferr.Field("run_id", runID))
	}
	return nil
}
