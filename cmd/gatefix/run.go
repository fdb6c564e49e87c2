// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gatefix-dev/gatefix/internal/agent"
	"github.com/gatefix-dev/gatefix/internal/eval"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one repair episode against a working tree",
		Long:  "Run the gated repair loop on a single checked-out repository until the fix is finalized or a budget runs out.",
		RunE:  runRun,
	}

	cmd.Flags().String("workdir", ".", "path to the checked-out repository")
	cmd.Flags().String("problem", "", "path to a file containing the problem statement")
	cmd.Flags().String("problem-text", "", "problem statement given inline")
	cmd.Flags().String("test-command", "", "command that runs the repository's test suite")
	cmd.Flags().String("language", "python", "repository language hint")
	cmd.Flags().Int("max-rounds", 0, "override budgets.max_rounds")
	cmd.Flags().Int("max-patch-attempts", 0, "override budgets.max_patch_attempts")
	_ = viper.BindPFlag("budgets.max_rounds", cmd.Flags().Lookup("max-rounds"))
	_ = viper.BindPFlag("budgets.max_patch_attempts", cmd.Flags().Lookup("max-patch-attempts"))

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	workdir, _ := cmd.Flags().GetString("workdir")
	problemFile, _ := cmd.Flags().GetString("problem")
	problemText, _ := cmd.Flags().GetString("problem-text")
	testCommand, _ := cmd.Flags().GetString("test-command")
	language, _ := cmd.Flags().GetString("language")

	if problemText == "" && problemFile == "" {
		return gferr.New(gferr.CodeCLIInputInvalid, "one of --problem or --problem-text is required")
	}
	if problemText == "" {
		data, err := os.ReadFile(problemFile)
		if err != nil {
			return gferr.Wrap(err, gferr.CodeCLIInputInvalid, "reading problem statement",
				gferr.Field("path", problemFile))
		}
		problemText = strings.TrimSpace(string(data))
	}

	comp, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comp.Close()

	task := eval.Task{
		ID:               "run-" + uuid.NewString()[:8],
		Workdir:          workdir,
		Language:         language,
		ProblemStatement: problemText,
		TestCommand:      testCommand,
	}

	executor := agent.NewExecutor()
	runner := eval.NewRunner(*cfg, comp.planner.Propose, executor.Execute).
		WithObserver(comp.planner)

	results, err := runner.RunBatch(cmd.Context(), []eval.Task{task})
	if err != nil {
		return err
	}
	res := results[0]

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Task:     %s\n", res.TaskID)
	fmt.Fprintf(out, "Solved:   %t\n", res.Success)
	fmt.Fprintf(out, "Rounds:   %d (patches %d, test runs %d, model calls %d)\n",
		res.Rounds, res.PatchAttempts, res.TestRuns, res.ModelCalls)
	fmt.Fprintf(out, "Stopped:  %s after %.1fs\n", res.StopReason, res.DurationSeconds)
	if res.FinalSummary != "" {
		fmt.Fprintf(out, "Summary:  %s\n", res.FinalSummary)
	}
	if res.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", res.Error)
	}
	if !res.Success {
		return gferr.New(gferr.CodeEvalBatchFailure, "episode did not solve the task",
			gferr.FieldTaskID(res.TaskID))
	}
	return nil
}
