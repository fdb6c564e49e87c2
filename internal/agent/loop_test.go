// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gatefix-dev/gatefix/internal/agent"
	"github.com/gatefix-dev/gatefix/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// script replays a fixed proposal sequence, then fails.
type script struct {
	proposals []agent.Proposal
	errs      map[int]error // 0-based call index -> error instead of proposal
	panics    map[int]bool
	calls     int
}

func (s *script) propose(_ context.Context, _ config.Config, _ *agent.AgentState) (agent.Proposal, error) {
	idx := s.calls
	s.calls++
	if s.panics[idx] {
		panic("scripted panic")
	}
	if err, ok := s.errs[idx]; ok {
		return agent.Proposal{}, err
	}
	if idx >= len(s.proposals) {
		return agent.Proposal{}, errors.New("script exhausted")
	}
	return s.proposals[idx], nil
}

// stubExec returns canned results per kind and records invocations.
type stubExec struct {
	searchAddsHit bool
	testsPass     bool
	editFails     bool
	execErr       error
	execPanics    bool
	calls         []agent.Kind
}

func (e *stubExec) exec(_ context.Context, _ config.Config, state *agent.AgentState, p agent.Proposal) (agent.ExecResult, error) {
	e.calls = append(e.calls, p.Kind)
	if e.execPanics {
		panic("scripted exec panic")
	}
	if e.execErr != nil {
		return agent.ExecResult{}, e.execErr
	}

	switch p.Kind {
	case agent.KindSearch:
		if e.searchAddsHit {
			state.AddLocalizationHit("core.py", "match for 'compare'", "search")
		}
		return agent.ExecResult{Status: agent.StatusOK, Summary: "searched"}, nil
	case agent.KindEdit:
		if e.editFails {
			return agent.ExecResult{Status: agent.StatusFail, Summary: "apply failed"}, nil
		}
		return agent.ExecResult{Status: agent.StatusOK, Summary: "applied", Artifacts: p.EditFiles()}, nil
	case agent.KindRunTests:
		return agent.ExecResult{
			Status:     statusFor(e.testsPass),
			Summary:    "ran tests",
			TestResult: &agent.TestResult{Passed: e.testsPass},
		}, nil
	default:
		return agent.ExecResult{Status: agent.StatusOK, Summary: "ok"}, nil
	}
}

func statusFor(ok bool) agent.Status {
	if ok {
		return agent.StatusOK
	}
	return agent.StatusFail
}

func TestRunEpisode_MaxRoundsStops(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Budgets.MaxRounds = 4
	state := stateInPhase(agent.PhaseIngest)

	search := agent.NewSearch("look for the bug", "does_not_exist")
	sc := &script{proposals: []agent.Proposal{search, search, search, search}}
	ex := &stubExec{searchAddsHit: false}

	err := agent.RunEpisode(context.Background(), cfg, state, sc.propose, agent.Gate, ex.exec, nil)
	require.NoError(t, err)

	assert.Equal(t, agent.PhaseDone, state.Phase)
	assert.Equal(t, agent.StopReasonMaxRounds, state.Notes.StopReason)
	assert.Equal(t, 4, state.Budget.RoundIdx)
	assert.Equal(t, 4, state.Budget.ModelCalls)

	// Searching without hits never advances past Localize.
	require.Len(t, state.Ledger, 4)
	assert.Equal(t, agent.PhaseIngest, state.Ledger[0].Phase)
	for _, ev := range state.Ledger[1:] {
		assert.Equal(t, agent.PhaseLocalize, ev.Phase)
	}
}

func TestRunEpisode_FullRepairPath(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	state := stateInPhase(agent.PhaseIngest)

	sc := &script{proposals: []agent.Proposal{
		agent.NewInspect("read the problem", agent.InspectInput{Query: "problem_statement"}),
		agent.NewSearch("localize the bug", "compare"),
		agent.NewInspect("study the file", agent.InspectInput{Files: []string{"core.py"}}),
		agent.NewEdit("fix the comparison", agent.EditInput{Diff: smallDiff, Files: []string{"core.py"}}),
		agent.NewRunTests("verify", "pytest"),
		agent.NewEdit("drop a stray print", agent.EditInput{Diff: smallDiff, Files: []string{"core.py"}}),
		agent.NewFinalize("done", agent.FinalizeInput{Summary: "fixed compare", Status: "complete"}),
	}}
	ex := &stubExec{searchAddsHit: true, testsPass: true}

	err := agent.RunEpisode(context.Background(), cfg, state, sc.propose, agent.Gate, ex.exec, nil)
	require.NoError(t, err)

	assert.Equal(t, agent.PhaseDone, state.Phase)
	assert.Equal(t, agent.StopReasonFinalized, state.Notes.StopReason)

	assert.Equal(t, 7, state.Budget.RoundIdx)
	assert.Equal(t, 2, state.Budget.PatchAttempts)
	assert.Equal(t, 1, state.Budget.TestRuns)
	assert.Equal(t, 6, state.Budget.ModelCalls, "finalize is not a model call")
	assert.Equal(t, []string{"core.py"}, state.TouchedFiles)

	// Serial invariant: one event per round, strictly increasing by 1.
	require.Len(t, state.Ledger, 7)
	for i, ev := range state.Ledger {
		assert.Equal(t, i+1, ev.Round)
		assert.True(t, ev.Decision.Accept)
		assert.Equal(t, agent.GateAcceptReason, ev.Decision.Reason)
	}

	wantPhases := []agent.Phase{
		agent.PhaseIngest, agent.PhaseLocalize, agent.PhasePlan,
		agent.PhasePatchCandidates, agent.PhaseTestStage,
		agent.PhaseMinimize, agent.PhaseFinalize,
	}
	for i, ev := range state.Ledger {
		assert.Equal(t, wantPhases[i], ev.Phase)
	}
}

func TestRunEpisode_GateRejectSkipsExecutionAndReplans(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Budgets.MaxRounds = 2
	state := stateInPhase(agent.PhaseTestStage)

	// Edit is illegal in test_stage; the follow-up inspect in Plan is fine.
	sc := &script{proposals: []agent.Proposal{
		agent.NewEdit("sneaky edit", agent.EditInput{Diff: smallDiff, Files: []string{"core.py"}}),
		agent.NewInspect("replan", agent.InspectInput{Files: []string{"core.py"}}),
	}}
	ex := &stubExec{}

	err := agent.RunEpisode(context.Background(), cfg, state, sc.propose, agent.Gate, ex.exec, nil)
	require.NoError(t, err)

	require.Len(t, state.Ledger, 2)
	rejected := state.Ledger[0]
	assert.True(t, rejected.GateReject)
	assert.False(t, rejected.Decision.Accept)
	assert.Equal(t, "gate_reject", rejected.Result.Summary)

	// Execution was skipped entirely for the rejected round.
	assert.Equal(t, []agent.Kind{agent.KindInspect}, ex.calls)

	assert.Contains(t, state.Notes.LastGateReject, "not allowed in phase")
	require.NotNil(t, state.Notes.LastRejectedProposal)
	assert.Equal(t, agent.KindEdit, state.Notes.LastRejectedProposal.Kind)

	// Rejection in test_stage forces a replan.
	assert.Equal(t, agent.PhasePlan, state.Ledger[1].Phase)

	// Rejected rounds never consume budgets.
	assert.Equal(t, 0, state.Budget.PatchAttempts)
	assert.Equal(t, 1, state.Budget.ModelCalls)
}

func TestRunEpisode_GateRejectInDiagnoseStaysInDiagnose(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Budgets.MaxRounds = 1
	state := stateInPhase(agent.PhaseDiagnose)

	sc := &script{proposals: []agent.Proposal{
		agent.NewRunTests("premature test run", "pytest"),
	}}
	ex := &stubExec{}

	err := agent.RunEpisode(context.Background(), cfg, state, sc.propose, agent.Gate, ex.exec, nil)
	require.NoError(t, err)

	require.Len(t, state.Ledger, 1)
	assert.True(t, state.Ledger[0].GateReject)
	assert.Equal(t, agent.PhaseDiagnose, state.Ledger[0].Phase)
	assert.Empty(t, ex.calls)
}

func TestRunEpisode_ProposeFailureForcesDiagnose(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Budgets.MaxRounds = 2
	state := stateInPhase(agent.PhaseLocalize)

	sc := &script{
		proposals: []agent.Proposal{
			{}, // consumed by the error slot
			agent.NewInspect("recover", agent.InspectInput{Files: []string{"core.py"}}),
		},
		errs: map[int]error{0: errors.New("model unavailable")},
	}
	ex := &stubExec{}

	err := agent.RunEpisode(context.Background(), cfg, state, sc.propose, agent.Gate, ex.exec, nil)
	require.NoError(t, err)

	assert.Equal(t, "model unavailable", state.Notes.LastError)

	// The failed round produced no ledger event; the recovery round ran
	// in Diagnose.
	require.Len(t, state.Ledger, 1)
	assert.Equal(t, 2, state.Ledger[0].Round)
	assert.Equal(t, agent.PhaseDiagnose, state.Ledger[0].Phase)
}

func TestRunEpisode_ProposePanicRecovered(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Budgets.MaxRounds = 1
	state := stateInPhase(agent.PhaseLocalize)

	sc := &script{panics: map[int]bool{0: true}}
	ex := &stubExec{}

	err := agent.RunEpisode(context.Background(), cfg, state, sc.propose, agent.Gate, ex.exec, nil)
	require.NoError(t, err)

	assert.Contains(t, state.Notes.LastError, "propose panicked")
	assert.Equal(t, agent.PhaseDone, state.Phase)
	assert.Equal(t, agent.StopReasonMaxRounds, state.Notes.StopReason)
}

func TestRunEpisode_ExecErrorBecomesFailedResult(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Budgets.MaxRounds = 1
	state := stateInPhase(agent.PhasePatchCandidates)

	sc := &script{proposals: []agent.Proposal{
		agent.NewEdit("try a fix", agent.EditInput{Diff: smallDiff, Files: []string{"core.py"}}),
	}}
	ex := &stubExec{execErr: errors.New("disk full")}

	err := agent.RunEpisode(context.Background(), cfg, state, sc.propose, agent.Gate, ex.exec, nil)
	require.NoError(t, err)

	require.Len(t, state.Ledger, 1)
	result := state.Ledger[0].Result
	assert.Equal(t, agent.StatusFail, result.Status)
	assert.Contains(t, result.Summary, "Execution error")
	assert.Contains(t, result.Summary, "disk full")

	// A failed edit still consumed the patch attempt.
	assert.Equal(t, 1, state.Budget.PatchAttempts)
}

func TestRunEpisode_ExecPanicRecovered(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Budgets.MaxRounds = 1
	state := stateInPhase(agent.PhaseLocalize)

	sc := &script{proposals: []agent.Proposal{agent.NewSearch("look", "compare")}}
	ex := &stubExec{execPanics: true}

	err := agent.RunEpisode(context.Background(), cfg, state, sc.propose, agent.Gate, ex.exec, nil)
	require.NoError(t, err)

	require.Len(t, state.Ledger, 1)
	assert.Equal(t, agent.StatusFail, state.Ledger[0].Result.Status)
	assert.Contains(t, state.Ledger[0].Result.Summary, "exec panicked")
}

func TestRunEpisode_CancelledContext(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	state := stateInPhase(agent.PhaseIngest)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := &script{}
	ex := &stubExec{}

	err := agent.RunEpisode(ctx, cfg, state, sc.propose, agent.Gate, ex.exec, nil)
	require.Error(t, err)

	assert.Equal(t, agent.PhaseDone, state.Phase)
	assert.Equal(t, agent.StopReasonCancelled, state.Notes.StopReason)
	assert.Zero(t, state.Budget.RoundIdx)
	assert.Zero(t, sc.calls)
}
