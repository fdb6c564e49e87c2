// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package agent_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gatefix-dev/gatefix/internal/agent"
	"github.com/gatefix-dev/gatefix/internal/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// okGit pretends every git apply invocation succeeds.
type okGit struct{}

func (okGit) Apply(_ context.Context, _, _ string, _ ...string) (string, error) {
	return "", nil
}

func workdirState(t *testing.T) *agent.AgentState {
	t.Helper()
	state := agent.NewAgentState("task-1",
		agent.RepoFingerprint{ID: "repo-1", Workdir: t.TempDir()}, "compare() uses == instead of is")
	state.Phase = agent.PhasePlan
	return state
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestExecute_InspectProblemStatement(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutor()
	state := workdirState(t)

	res, err := ex.Execute(context.Background(), testConfig(), state,
		agent.NewInspect("re-read", agent.InspectInput{Query: "problem_statement"}))
	require.NoError(t, err)

	assert.Equal(t, agent.StatusOK, res.Status)
	assert.Contains(t, res.Summary, "compare() uses ==")
}

func TestExecute_InspectReadsFilesWithByteCap(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutor()
	state := workdirState(t)
	cfg := testConfig()
	cfg.Exec.MaxFileBytes = 10

	writeFile(t, state.Repo.Workdir, "core.py", "x = 1\ny = 2\nz = 3\n")

	res, err := ex.Execute(context.Background(), cfg, state,
		agent.NewInspect("read", agent.InspectInput{Files: []string{"core.py", "missing.py"}}))
	require.NoError(t, err)

	assert.Equal(t, agent.StatusOK, res.Status)
	assert.Equal(t, []string{"core.py"}, res.Artifacts)

	// Contents are truncated to the byte cap and cached for the planner.
	assert.Len(t, state.Notes.LastFileContents["core.py"], 10)
	assert.Equal(t, "File not found", state.Notes.LastFileContents["missing.py"])

	assert.True(t, state.Notes.HasRead("core.py"))
	assert.False(t, state.Notes.HasRead("missing.py"))

	require.Len(t, state.LocalizationHits, 1)
	assert.Equal(t, "core.py", state.LocalizationHits[0].File)
	assert.Equal(t, "read", state.LocalizationHits[0].Type)
}

func TestExecute_SearchFindsMatches(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutor()
	state := workdirState(t)

	writeFile(t, state.Repo.Workdir, "match.py", "def compare_values(a, b):\n    return a == b\n")
	writeFile(t, state.Repo.Workdir, "other.py", "print('nothing here')\n")

	res, err := ex.Execute(context.Background(), testConfig(), state,
		agent.NewSearch("find the comparator", "compare_values"))
	require.NoError(t, err)

	assert.Equal(t, agent.StatusOK, res.Status)
	assert.Contains(t, res.Artifacts, "match.py")
	assert.NotContains(t, res.Artifacts, "other.py")

	require.NotEmpty(t, state.LocalizationHits)
	assert.Equal(t, "match.py", state.LocalizationHits[0].File)
	assert.Equal(t, "search", state.LocalizationHits[0].Type)
}

func TestExecute_SearchNoMatches(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutor()
	state := workdirState(t)

	writeFile(t, state.Repo.Workdir, "a.py", "nothing\n")

	res, err := ex.Execute(context.Background(), testConfig(), state,
		agent.NewSearch("look", "definitely_absent_token"))
	require.NoError(t, err)

	assert.Equal(t, agent.StatusOK, res.Status)
	assert.Empty(t, res.Artifacts)
	assert.Empty(t, state.LocalizationHits)
}

func TestExecute_SearchEmptyQuery(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutor()
	state := workdirState(t)

	res, err := ex.Execute(context.Background(), testConfig(), state,
		agent.NewSearch("look", "  "))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusFail, res.Status)
	assert.Contains(t, res.Summary, "No search query")
}

func TestExecute_EditAppliesDiff(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutorWithApplier(patch.NewApplier(okGit{}))
	state := workdirState(t)

	writeFile(t, state.Repo.Workdir, "core.py", "x = 1\n")

	res, err := ex.Execute(context.Background(), testConfig(), state,
		agent.NewEdit("fix", agent.EditInput{Diff: smallDiff, Files: []string{"core.py"}}))
	require.NoError(t, err)

	assert.Equal(t, agent.StatusOK, res.Status)
	assert.Equal(t, []string{"core.py"}, res.Artifacts)
}

func TestExecute_EditEmptyDiff(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutor()
	state := workdirState(t)

	res, err := ex.Execute(context.Background(), testConfig(), state,
		agent.NewEdit("fix", agent.EditInput{Diff: "", Files: []string{"core.py"}}))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusFail, res.Status)
	assert.Contains(t, res.Summary, "No diff provided")
}

func TestExecute_EditNoopDiffRejected(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutorWithApplier(patch.NewApplier(okGit{}))
	state := workdirState(t)

	noop := "--- a/f\n+++ b/f\n@@ -1,1 +1,1 @@\n-x\n+x\n"
	res, err := ex.Execute(context.Background(), testConfig(), state,
		agent.NewEdit("fix", agent.EditInput{Diff: noop, Files: []string{"f"}}))
	require.NoError(t, err)

	assert.Equal(t, agent.StatusFail, res.Status)
	assert.Contains(t, res.Summary, "No-op")
}

func TestExecute_RunTestsPassAndFail(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutor()
	state := workdirState(t)

	passScript := filepath.Join(state.Repo.Workdir, "pass.sh")
	require.NoError(t, os.WriteFile(passScript, []byte("#!/bin/sh\necho all good\nexit 0\n"), 0o755))
	failScript := filepath.Join(state.Repo.Workdir, "fail.sh")
	require.NoError(t, os.WriteFile(failScript,
		[]byte("#!/bin/sh\necho 'FAILED tests/test_core.py::test_compare'\nexit 1\n"), 0o755))

	res, err := ex.Execute(context.Background(), testConfig(), state,
		agent.NewRunTests("verify", "./fail.sh"))
	require.NoError(t, err)

	assert.Equal(t, agent.StatusFail, res.Status)
	require.NotNil(t, res.TestResult)
	assert.False(t, res.TestResult.Passed)
	assert.Equal(t, 1, res.TestResult.ReturnCode)
	assert.Contains(t, res.TestResult.StdoutTail, "FAILED")

	require.Len(t, state.LastFailures, 1)
	assert.Contains(t, state.LastFailures[0].NodeID, "tests/test_core.py::test_compare")

	res, err = ex.Execute(context.Background(), testConfig(), state,
		agent.NewRunTests("verify", "./pass.sh"))
	require.NoError(t, err)

	assert.Equal(t, agent.StatusOK, res.Status)
	require.NotNil(t, res.TestResult)
	assert.True(t, res.TestResult.Passed)

	// A passing run clears previously tracked failures.
	assert.Empty(t, state.LastFailures)
}

func TestExecute_RunTestsMissingCommand(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutor()
	state := workdirState(t)

	res, err := ex.Execute(context.Background(), testConfig(), state,
		agent.NewRunTests("verify", "./does-not-exist.sh"))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusFail, res.Status)
	assert.Contains(t, res.Summary, "Test run failed")
}

func TestExecute_Finalize(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutor()
	state := workdirState(t)

	res, err := ex.Execute(context.Background(), testConfig(), state,
		agent.NewFinalize("done", agent.FinalizeInput{Summary: "replaced == with is", Status: "complete"}))
	require.NoError(t, err)

	assert.Equal(t, agent.StatusOK, res.Status)
	assert.True(t, state.Notes.Solved)
	assert.Equal(t, "replaced == with is", state.Notes.FinalSummary)

	res, err = ex.Execute(context.Background(), testConfig(), state,
		agent.NewFinalize("gave up", agent.FinalizeInput{Summary: "could not reproduce", Status: "partial"}))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusOK, res.Status)
	assert.False(t, state.Notes.Solved)
}

func TestExecute_MalformedProposal(t *testing.T) {
	t.Parallel()
	ex := agent.NewExecutor()
	state := workdirState(t)

	_, err := ex.Execute(context.Background(), testConfig(), state,
		agent.Proposal{Kind: agent.KindEdit})
	require.Error(t, err)
}
