// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package agent_test

import (
	"testing"

	"github.com/gatefix-dev/gatefix/internal/agent"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePhase(t *testing.T) {
	t.Parallel()

	p, err := agent.ParsePhase("patch_candidates")
	require.NoError(t, err)
	assert.Equal(t, agent.PhasePatchCandidates, p)

	_, err = agent.ParsePhase("no_such_phase")
	require.Error(t, err)
	assert.Equal(t, gferr.CodeAgentPhaseInvalid, gferr.CodeOf(err))
}

func TestAllowedKinds(t *testing.T) {
	t.Parallel()

	assert.ElementsMatch(t, []agent.Kind{agent.KindInspect, agent.KindSearch},
		agent.AllowedKinds(agent.PhaseIngest))
	assert.ElementsMatch(t, []agent.Kind{agent.KindRunTests, agent.KindInspect},
		agent.AllowedKinds(agent.PhaseTestStage))
	assert.ElementsMatch(t, []agent.Kind{agent.KindFinalize, agent.KindRunTests},
		agent.AllowedKinds(agent.PhaseFinalize))
	assert.Empty(t, agent.AllowedKinds(agent.PhaseDone))
}

func advanceFrom(p agent.Phase, proposal agent.Proposal, result agent.ExecResult, mutate func(*agent.AgentState)) agent.Phase {
	state := stateInPhase(p)
	if mutate != nil {
		mutate(state)
	}
	agent.AdvancePhase(state, proposal, result)
	return state.Phase
}

func TestAdvancePhase_DefaultTable(t *testing.T) {
	t.Parallel()

	ok := agent.ExecResult{Status: agent.StatusOK}
	fail := agent.ExecResult{Status: agent.StatusFail}
	inspect := agent.NewInspect("r", agent.InspectInput{})
	edit := editProposal([]string{"a.py"}, smallDiff)

	withHits := func(s *agent.AgentState) { s.AddLocalizationHit("a.py", "match", "search") }

	tests := []struct {
		name     string
		from     agent.Phase
		proposal agent.Proposal
		result   agent.ExecResult
		mutate   func(*agent.AgentState)
		want     agent.Phase
	}{
		{"ingest always advances", agent.PhaseIngest, inspect, ok, nil, agent.PhaseLocalize},
		{"localize retries without hits", agent.PhaseLocalize, agent.NewSearch("r", "q"), ok, nil, agent.PhaseLocalize},
		{"localize advances with hits", agent.PhaseLocalize, agent.NewSearch("r", "q"), ok, withHits, agent.PhasePlan},
		{"plan always advances", agent.PhasePlan, inspect, ok, nil, agent.PhasePatchCandidates},
		{"patch applied moves to testing", agent.PhasePatchCandidates, edit, ok, nil, agent.PhaseTestStage},
		{"patch failure replans", agent.PhasePatchCandidates, edit, fail, nil, agent.PhasePlan},
		{"non-edit stays in patch phase", agent.PhasePatchCandidates, inspect, ok, nil, agent.PhasePatchCandidates},
		{"passing tests minimize", agent.PhaseTestStage, agent.NewRunTests("r", "pytest"),
			agent.ExecResult{Status: agent.StatusOK, TestResult: &agent.TestResult{Passed: true}}, nil, agent.PhaseMinimize},
		{"failing tests diagnose", agent.PhaseTestStage, agent.NewRunTests("r", "pytest"),
			agent.ExecResult{Status: agent.StatusFail, TestResult: &agent.TestResult{Passed: false}}, nil, agent.PhaseDiagnose},
		{"test exec failure diagnoses", agent.PhaseTestStage, agent.NewRunTests("r", "pytest"), fail, nil, agent.PhaseDiagnose},
		{"diagnose replans", agent.PhaseDiagnose, inspect, ok, nil, agent.PhasePlan},
		{"minimize finalizes", agent.PhaseMinimize, edit, ok, nil, agent.PhaseFinalize},
		{"finalize waits for finalize proposal", agent.PhaseFinalize, agent.NewRunTests("r", "pytest"), ok, nil, agent.PhaseFinalize},
		{"finalize completes", agent.PhaseFinalize, agent.NewFinalize("r", agent.FinalizeInput{Status: "complete"}), ok, nil, agent.PhaseDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, advanceFrom(tt.from, tt.proposal, tt.result, tt.mutate))
		})
	}
}

func TestAdvancePhase_FinalizeSetsStopReason(t *testing.T) {
	t.Parallel()

	state := stateInPhase(agent.PhaseFinalize)
	agent.AdvancePhase(state, agent.NewFinalize("r", agent.FinalizeInput{Status: "complete"}), agent.ExecResult{Status: agent.StatusOK})
	assert.Equal(t, agent.PhaseDone, state.Phase)
	assert.Equal(t, agent.StopReasonFinalized, state.Notes.StopReason)
}

func TestAdvancePhase_ForcedOverrideIsOneShot(t *testing.T) {
	t.Parallel()

	state := stateInPhase(agent.PhaseIngest)
	state.Notes.NextPhase = agent.PhaseDiagnose

	inspect := agent.NewInspect("r", agent.InspectInput{})
	ok := agent.ExecResult{Status: agent.StatusOK}

	agent.AdvancePhase(state, inspect, ok)
	assert.Equal(t, agent.PhaseDiagnose, state.Phase)
	assert.Empty(t, state.Notes.NextPhase, "override must be consumed")

	// Next advancement follows the default table again.
	agent.AdvancePhase(state, inspect, ok)
	assert.Equal(t, agent.PhasePlan, state.Phase)
}
