// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gatefix-dev/gatefix/internal/config"
	"github.com/gatefix-dev/gatefix/internal/patch"
)

const (
	searchMaxHits    = 20
	searchMaxFileSz  = 1 << 20
	maxTrackFailures = 5
	stdoutTailBytes  = 1000
)

// skipDirs are directories the pure-Go search fallback never descends into.
var skipDirs = map[string]bool{
	"__pycache__": true, "node_modules": true, "venv": true,
	".venv": true, "build": true, "dist": true, "target": true, "vendor": true,
}

// Executor is the default ExecFn: it reads files, searches the tree,
// applies patches, runs tests, and records finalization.
type Executor struct {
	applier *patch.Applier
}

// NewExecutor creates an executor using the default git-backed applier.
func NewExecutor() *Executor {
	return &Executor{applier: patch.NewApplier(nil)}
}

// NewExecutorWithApplier creates an executor with a custom patch applier,
// used by tests to stub the VCS primitive.
func NewExecutorWithApplier(applier *patch.Applier) *Executor {
	return &Executor{applier: applier}
}

// Execute dispatches an accepted proposal. Failures come back as a failed
// ExecResult, not an error; the error return is reserved for malformed
// proposals that slipped past validation.
func (e *Executor) Execute(ctx context.Context, cfg config.Config, state *AgentState, proposal Proposal) (ExecResult, error) {
	if err := proposal.Validate(); err != nil {
		return ExecResult{}, err
	}

	switch proposal.Kind {
	case KindInspect:
		return e.execInspect(cfg, state, *proposal.Inspect), nil
	case KindSearch:
		return e.execSearch(ctx, cfg, state, *proposal.Search), nil
	case KindEdit:
		return e.execEdit(ctx, state, *proposal.Edit), nil
	case KindRunTests:
		return e.execRunTests(ctx, cfg, state, *proposal.RunTests), nil
	case KindFinalize:
		return e.execFinalize(state, *proposal.Finalize), nil
	default:
		return ExecResult{Status: StatusFail, Summary: fmt.Sprintf("Unknown proposal kind: %s", proposal.Kind)}, nil
	}
}

func (e *Executor) execInspect(cfg config.Config, state *AgentState, in InspectInput) ExecResult {
	if in.Query == "problem_statement" {
		content := state.Notes.ProblemStatement
		if content == "" {
			content = "No problem statement available"
		}
		return ExecResult{
			Status:  StatusOK,
			Summary: "Problem statement: " + truncate(content, 200),
		}
	}

	if len(in.Files) == 0 {
		return ExecResult{Status: StatusOK, Summary: "No files to inspect"}
	}

	contents := make(map[string]string, len(in.Files))
	read := make([]string, 0, len(in.Files))
	for _, f := range in.Files {
		path := filepath.Join(state.Repo.Workdir, f)
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			contents[f] = "File not found"
			continue
		case err != nil:
			contents[f] = fmt.Sprintf("Error reading: %v", err)
			continue
		}

		if len(data) > cfg.Exec.MaxFileBytes {
			data = data[:cfg.Exec.MaxFileBytes]
		}
		contents[f] = string(data)
		read = append(read, f)
		state.Notes.MarkRead(f)
		state.AddLocalizationHit(f, "file read", "read")
	}
	state.Notes.LastFileContents = contents

	return ExecResult{
		Status:    StatusOK,
		Summary:   fmt.Sprintf("Read %d of %d files", len(read), len(in.Files)),
		Artifacts: read,
	}
}

func (e *Executor) execSearch(ctx context.Context, cfg config.Config, state *AgentState, in SearchInput) ExecResult {
	if strings.TrimSpace(in.Query) == "" {
		return ExecResult{Status: StatusFail, Summary: "No search query provided"}
	}

	searchCtx, cancel := context.WithTimeout(ctx, cfg.Exec.SearchTimeout)
	defer cancel()

	workdir := state.Repo.Workdir
	files := searchTool(searchCtx, workdir, "rg", "-l", "--max-count", "5", in.Query)
	if len(files) == 0 {
		files = searchTool(searchCtx, workdir, "grep", "-rl", in.Query, ".")
	}
	if len(files) == 0 {
		files = searchWalk(workdir, in.Query)
	}

	for _, f := range files {
		state.AddLocalizationHit(f, fmt.Sprintf("match for '%s'", in.Query), "search")
	}

	if len(files) == 0 {
		return ExecResult{Status: StatusOK, Summary: fmt.Sprintf("No files found matching '%s'", in.Query)}
	}
	return ExecResult{
		Status:    StatusOK,
		Summary:   fmt.Sprintf("Found %d files matching '%s'", len(files), in.Query),
		Artifacts: files,
	}
}

// searchTool runs one external search command, returning matched paths or
// nil when the tool is missing, fails, or matches nothing.
func searchTool(ctx context.Context, workdir, name string, args ...string) []string {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workdir
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "./"))
		if line != "" {
			files = append(files, line)
		}
		if len(files) >= searchMaxHits {
			break
		}
	}
	return files
}

// searchWalk is the pure-Go fallback: walk the tree and substring-match
// file contents, skipping hidden and generated directories.
func searchWalk(workdir, query string) []string {
	var files []string
	_ = filepath.WalkDir(workdir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != workdir && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= searchMaxHits {
			return filepath.SkipAll
		}

		info, err := d.Info()
		if err != nil || info.Size() > searchMaxFileSz {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if strings.Contains(string(data), query) {
			if rel, err := filepath.Rel(workdir, path); err == nil {
				files = append(files, rel)
			}
		}
		return nil
	})
	return files
}

func (e *Executor) execEdit(ctx context.Context, state *AgentState, in EditInput) ExecResult {
	if strings.TrimSpace(in.Diff) == "" {
		return ExecResult{Status: StatusFail, Summary: "No diff provided"}
	}

	res, err := e.applier.Apply(ctx, state.Repo.Workdir, in.Diff, in.Files)
	if err != nil {
		return ExecResult{Status: StatusFail, Summary: err.Error()}
	}
	return ExecResult{
		Status:    StatusOK,
		Summary:   res.Summary,
		Artifacts: res.Files,
	}
}

func (e *Executor) execRunTests(ctx context.Context, cfg config.Config, state *AgentState, in RunTestsInput) ExecResult {
	command := in.Command
	if command == "" {
		command = "pytest"
	}
	parts := strings.Fields(command)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Exec.TestTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, parts[0], parts[1:]...)
	cmd.Dir = state.Repo.Workdir
	out, err := cmd.Output()

	if runCtx.Err() == context.DeadlineExceeded {
		return ExecResult{
			Status:  StatusFail,
			Summary: fmt.Sprintf("Test run timed out (%s)", cfg.Exec.TestTimeout),
		}
	}

	stdout := string(out)
	returnCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return ExecResult{Status: StatusFail, Summary: fmt.Sprintf("Test run failed: %v", err)}
		}
		returnCode = exitErr.ExitCode()
	}
	passed := returnCode == 0

	if passed {
		state.LastFailures = nil
	} else {
		state.LastFailures = parseTestFailures(stdout)
	}

	result := &TestResult{
		Passed:     passed,
		ReturnCode: returnCode,
		StdoutTail: tail(stdout, stdoutTailBytes),
	}
	status := StatusOK
	summary := "Tests passed"
	if !passed {
		status = StatusFail
		summary = "Tests failed"
	}
	return ExecResult{Status: status, Summary: summary, TestResult: result}
}

func (e *Executor) execFinalize(state *AgentState, in FinalizeInput) ExecResult {
	status := in.Status
	if status == "" {
		status = "complete"
	}
	state.Notes.Solved = status == "complete"
	state.Notes.FinalSummary = in.Summary

	return ExecResult{
		Status:  StatusOK,
		Summary: "Task finalized: " + status,
	}
}

// parseTestFailures pulls FAILED lines out of test output, capped so the
// planner prompt stays bounded.
func parseTestFailures(stdout string) []TestFailure {
	var failures []TestFailure
	for _, line := range strings.Split(stdout, "\n") {
		if !strings.Contains(line, "FAILED") {
			continue
		}
		line = strings.TrimSpace(line)
		failures = append(failures, TestFailure{NodeID: line, Message: line})
		if len(failures) >= maxTrackFailures {
			break
		}
	}
	return failures
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
