// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gatefix-dev/gatefix/internal/agent"
	"github.com/gatefix-dev/gatefix/internal/config"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// Result is the scored outcome of one task episode.
type Result struct {
	TaskID          string  `json:"task_id"`
	Success         bool    `json:"success"`
	DurationSeconds float64 `json:"duration_seconds"`
	Rounds          int     `json:"rounds"`
	PatchAttempts   int     `json:"patch_attempts"`
	TestRuns        int     `json:"test_runs"`
	ModelCalls      int     `json:"model_calls"`
	StopReason      string  `json:"stop_reason,omitempty"`
	FinalSummary    string  `json:"final_summary,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Summary aggregates a batch run.
type Summary struct {
	RunID        string  `json:"run_id"`
	TotalTasks   int     `json:"total_tasks"`
	Solved       int     `json:"solved"`
	Failed       int     `json:"failed"`
	TotalSeconds float64 `json:"total_seconds"`
	AvgRounds    float64 `json:"avg_rounds"`
	AvgPatches   float64 `json:"avg_patches"`
	ModelCalls   int     `json:"model_calls"`
}

// Observer receives per-task outcomes, typically to update strategy
// statistics between episodes.
type Observer interface {
	Observe(ctx context.Context, taskID string, success, regression bool) error
}

// Runner executes task batches with bounded parallelism. A failing or
// panicking task produces a failed Result and never aborts the batch.
type Runner struct {
	cfg      config.Config
	propose  agent.ProposeFn
	exec     agent.ExecFn
	observer Observer
}

func NewRunner(cfg config.Config, propose agent.ProposeFn, exec agent.ExecFn) *Runner {
	return &Runner{cfg: cfg, propose: propose, exec: exec}
}

// WithObserver attaches an outcome observer.
func (r *Runner) WithObserver(o Observer) *Runner {
	r.observer = o
	return r
}

// RunBatch runs all tasks and returns one Result per task, in task
// order. The returned error reflects batch-level failure only; per-task
// failures live in the results.
func (r *Runner) RunBatch(ctx context.Context, tasks []Task) ([]Result, error) {
	parallel := r.cfg.Eval.Parallel
	if parallel < 1 {
		parallel = 1
	}

	results := make([]Result, len(tasks))
	sem := semaphore.NewWeighted(int64(parallel))
	g, gctx := errgroup.WithContext(ctx)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = Result{TaskID: task.ID, Error: err.Error()}
				return nil
			}
			defer sem.Release(1)
			results[i] = r.runTask(gctx, task)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, gferr.Wrap(err, gferr.CodeEvalBatchFailure, "batch run failed")
	}
	return results, nil
}

// runTask executes one episode in isolation. Panics are converted into
// failed results.
func (r *Runner) runTask(ctx context.Context, task Task) (res Result) {
	start := time.Now()
	res = Result{TaskID: task.ID}

	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Error = fmt.Sprintf("task panicked: %v", p)
			res.DurationSeconds = time.Since(start).Seconds()
			slog.Error("task panicked", "task_id", task.ID, "panic", p)
		}
	}()

	if err := task.Validate(); err != nil {
		res.Error = err.Error()
		return res
	}

	if timeout := r.cfg.Eval.TaskTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	repoID := task.Repo
	if repoID == "" {
		repoID = task.ID
	}
	if task.BaseCommit != "" {
		repoID = repoID + "@" + task.BaseCommit
	}
	state := agent.NewAgentState(task.ID, agent.RepoFingerprint{
		ID:       repoID,
		Commit:   task.BaseCommit,
		Workdir:  task.Workdir,
		Language: task.Language,
	}, task.ProblemStatement)

	sink := r.openSink(task.ID)
	if sink != nil {
		defer sink.Close()
	}

	slog.Info("Task starting", "task_id", task.ID, "repo", repoID, "workdir", task.Workdir)

	err := agent.RunEpisode(ctx, r.cfg, state, r.propose, agent.Gate, r.taskExec(task), sink)

	res.Success = state.Phase == agent.PhaseDone && state.Notes.Solved
	res.DurationSeconds = time.Since(start).Seconds()
	res.Rounds = state.Budget.RoundIdx
	res.PatchAttempts = state.Budget.PatchAttempts
	res.TestRuns = state.Budget.TestRuns
	res.ModelCalls = state.Budget.ModelCalls
	res.StopReason = state.Notes.StopReason
	res.FinalSummary = state.Notes.FinalSummary
	if err != nil {
		res.Error = err.Error()
	}

	if r.observer != nil {
		if oerr := r.observer.Observe(ctx, task.ID, res.Success, false); oerr != nil {
			slog.Warn("outcome observer failed", "task_id", task.ID, "error", oerr)
		}
	}

	slog.Info("Task complete", "task_id", task.ID, "success", res.Success,
		"rounds", res.Rounds, "seconds", res.DurationSeconds)
	return res
}

// taskExec substitutes the task's test command for the generic default
// so run_tests proposals exercise the right suite.
func (r *Runner) taskExec(task Task) agent.ExecFn {
	if task.TestCommand == "" {
		return r.exec
	}
	return func(ctx context.Context, cfg config.Config, state *agent.AgentState, p agent.Proposal) (agent.ExecResult, error) {
		if p.Kind == agent.KindRunTests && p.RunTests != nil &&
			(p.RunTests.Command == "" || p.RunTests.Command == "pytest") {
			p.RunTests = &agent.RunTestsInput{Command: task.TestCommand}
		}
		return r.exec(ctx, cfg, state, p)
	}
}

func (r *Runner) openSink(taskID string) agent.LedgerSink {
	dir := r.cfg.Eval.ResultsDir
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		slog.Warn("results dir unavailable, skipping ledger sink", "dir", dir, "error", err)
		return nil
	}
	sink, err := agent.NewJSONLSink(filepath.Join(dir, taskID+".ledger.jsonl"))
	if err != nil {
		slog.Warn("ledger sink unavailable", "task_id", taskID, "error", err)
		return nil
	}
	return sink
}

// Summarize aggregates batch results.
func Summarize(runID string, results []Result) Summary {
	s := Summary{RunID: runID, TotalTasks: len(results)}
	var rounds, patches int
	for _, r := range results {
		if r.Success {
			s.Solved++
		} else {
			s.Failed++
		}
		s.TotalSeconds += r.DurationSeconds
		s.ModelCalls += r.ModelCalls
		rounds += r.Rounds
		patches += r.PatchAttempts
	}
	if len(results) > 0 {
		s.AvgRounds = float64(rounds) / float64(len(results))
		s.AvgPatches = float64(patches) / float64(len(results))
	}
	return s
}

// SaveResults writes per-task results as JSONL plus a summary JSON into
// the results directory.
func SaveResults(dir, runID string, results []Result) (Summary, error) {
	summary := Summarize(runID, results)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return summary, gferr.Wrap(err, gferr.CodeEvalBatchFailure, "create results dir",
			gferr.Field("dir", dir))
	}

	resultsPath := filepath.Join(dir, runID+"_results.jsonl")
	f, err := os.Create(resultsPath)
	if err != nil {
		return summary, gferr.Wrap(err, gferr.CodeEvalBatchFailure, "write results file",
			gferr.Field("path", resultsPath))
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, res := range results {
		if err := enc.Encode(res); err != nil {
			return summary, gferr.Wrap(err, gferr.CodeEvalBatchFailure, "encode result",
				gferr.FieldTaskID(res.TaskID))
		}
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return summary, gferr.Wrap(err, gferr.CodeEvalBatchFailure, "encode summary")
	}
	summaryPath := filepath.Join(dir, runID+"_summary.json")
	if err := os.WriteFile(summaryPath, data, 0o644); err != nil {
		return summary, gferr.Wrap(err, gferr.CodeEvalBatchFailure, "write summary file",
			gferr.Field("path", summaryPath))
	}

	slog.Info("Results saved", "results", resultsPath, "summary", summaryPath,
		"solved", summary.Solved, "total", summary.TotalTasks)
	return summary, nil
}
