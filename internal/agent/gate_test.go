// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package agent_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gatefix-dev/gatefix/internal/agent"
	"github.com/gatefix-dev/gatefix/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Budgets: config.BudgetsConfig{
			MaxRounds:        10,
			MaxPatchAttempts: 3,
			MaxTestRuns:      2,
			MaxModelCalls:    50,
		},
		Gate: config.GateConfig{
			MaxFilesTouched:         2,
			MaxDiffLines:            100,
			ForbidTestModifications: true,
		},
		Exec: config.ExecConfig{
			TestTimeout:   30 * time.Second,
			SearchTimeout: 5 * time.Second,
			MaxFileBytes:  8192,
		},
	}
}

func stateInPhase(p agent.Phase) *agent.AgentState {
	s := agent.NewAgentState("task-1", agent.RepoFingerprint{ID: "repo-1", Workdir: "/tmp/w"}, "off-by-one in compare")
	s.Phase = p
	return s
}

func editProposal(files []string, diff string) agent.Proposal {
	return agent.NewEdit("fix", agent.EditInput{Diff: diff, Files: files})
}

const smallDiff = "--- a/core.py\n+++ b/core.py\n@@ -1,1 +1,1 @@\n-x = 1\n+x = 2\n"

func TestGate_Deterministic(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	state := stateInPhase(agent.PhasePlan)
	proposal := editProposal([]string{"core.py"}, smallDiff)

	first := agent.Gate(cfg, state, proposal)
	second := agent.Gate(cfg, state, proposal)
	assert.Equal(t, first, second)
	assert.True(t, first.Accept)
	assert.Equal(t, agent.GateAcceptReason, first.Reason)
}

func TestGate_PhaseLegality(t *testing.T) {
	t.Parallel()
	cfg := testConfig()

	tests := []struct {
		phase    agent.Phase
		proposal agent.Proposal
		accept   bool
	}{
		{agent.PhaseIngest, agent.NewInspect("read", agent.InspectInput{Files: []string{"a.py"}}), true},
		{agent.PhaseIngest, editProposal([]string{"a.py"}, smallDiff), false},
		{agent.PhaseLocalize, agent.NewSearch("find", "compare"), true},
		{agent.PhaseLocalize, agent.NewRunTests("run", "pytest"), false},
		{agent.PhasePlan, editProposal([]string{"a.py"}, smallDiff), true},
		{agent.PhaseTestStage, agent.NewRunTests("run", "pytest"), true},
		{agent.PhaseTestStage, agent.NewSearch("find", "x"), false},
		{agent.PhaseFinalize, agent.NewFinalize("done", agent.FinalizeInput{Summary: "s", Status: "complete"}), true},
		{agent.PhasePlan, agent.NewFinalize("done", agent.FinalizeInput{}), false},
		{agent.PhaseDone, agent.NewInspect("read", agent.InspectInput{}), false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.phase, tt.proposal.Kind), func(t *testing.T) {
			decision := agent.Gate(cfg, stateInPhase(tt.phase), tt.proposal)
			assert.Equal(t, tt.accept, decision.Accept, decision.Reason)
			if !tt.accept {
				assert.Contains(t, decision.Reason, "not allowed in phase")
			}
		})
	}
}

func TestGate_TestBudgetExhausted(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	state := stateInPhase(agent.PhaseTestStage)
	state.Budget.TestRuns = cfg.Budgets.MaxTestRuns

	decision := agent.Gate(cfg, state, agent.NewRunTests("run", "pytest"))
	require.False(t, decision.Accept)
	assert.Contains(t, decision.Reason, "Test budget exhausted")
}

func TestGate_PatchBudgetExhausted(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	state := stateInPhase(agent.PhasePatchCandidates)
	state.Budget.PatchAttempts = cfg.Budgets.MaxPatchAttempts

	decision := agent.Gate(cfg, state, editProposal([]string{"a.py"}, smallDiff))
	require.False(t, decision.Accept)
	assert.Contains(t, decision.Reason, "Patch budget exhausted")
}

func TestGate_TooManyFiles(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	state := stateInPhase(agent.PhasePlan)

	decision := agent.Gate(cfg, state, editProposal([]string{"a.py", "b.py", "c.py"}, smallDiff))
	require.False(t, decision.Accept)
	assert.Contains(t, decision.Reason, "Too many files")
}

func TestGate_ForbiddenDirectory(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	state := stateInPhase(agent.PhasePlan)

	tests := []struct {
		name string
		file string
	}{
		{"top-level vendor", "vendor/lib.py"},
		{"nested vendor", "src/vendor/lib.py"},
		{"node_modules", "node_modules/pkg/index.js"},
		{"dist", "dist/out.py"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := agent.Gate(cfg, state, editProposal([]string{tt.file}, smallDiff))
			require.False(t, decision.Accept)
			assert.Contains(t, decision.Reason, "forbidden directory")
		})
	}

	decision := agent.Gate(cfg, state, editProposal([]string{"vendor/lib.py"}, smallDiff))
	assert.Contains(t, decision.Reason, "vendor/")
}

func TestGate_DiffTooLarge(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Gate.MaxDiffLines = 2
	state := stateInPhase(agent.PhasePlan)

	var b strings.Builder
	b.WriteString("--- a/core.py\n+++ b/core.py\n@@ -1,3 +1,3 @@\n")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, "-old%d\n+new%d\n", i, i)
	}

	decision := agent.Gate(cfg, state, editProposal([]string{"core.py"}, b.String()))
	require.False(t, decision.Accept)
	assert.Contains(t, decision.Reason, "Diff too large")
}

func TestGate_TestModificationBan(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	state := stateInPhase(agent.PhasePlan)

	decision := agent.Gate(cfg, state, editProposal([]string{"tests/test_foo.py"}, smallDiff))
	require.False(t, decision.Accept)
	assert.Contains(t, decision.Reason, "tests/test_foo.py")

	// Case-insensitive match anywhere in the path.
	decision = agent.Gate(cfg, state, editProposal([]string{"src/TestHelpers.py"}, smallDiff))
	assert.False(t, decision.Accept)

	cfg.Gate.ForbidTestModifications = false
	decision = agent.Gate(cfg, state, editProposal([]string{"tests/test_foo.py"}, smallDiff))
	assert.True(t, decision.Accept)
}

func TestGate_TotalOnMalformedProposal(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	state := stateInPhase(agent.PhasePlan)

	// Edit kind with no payload must reject, never panic.
	decision := agent.Gate(cfg, state, agent.Proposal{Kind: agent.KindEdit, Rationale: "broken"})
	require.False(t, decision.Accept)
	assert.Contains(t, decision.Reason, "no edit payload")
}
