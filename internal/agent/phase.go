// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package agent

import (
	"log/slog"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// Phase is a stage of the repair state machine. It governs which proposal
// kinds are legal this round.
type Phase string

const (
	PhaseIngest          Phase = "ingest"
	PhaseLocalize        Phase = "localize"
	PhasePlan            Phase = "plan"
	PhasePatchCandidates Phase = "patch_candidates"
	PhaseTestStage       Phase = "test_stage"
	PhaseDiagnose        Phase = "diagnose"
	PhaseMinimize        Phase = "minimize"
	PhaseFinalize        Phase = "finalize"
	PhaseDone            Phase = "done"
)

// Phases lists every phase in repair order.
func Phases() []Phase {
	return []Phase{
		PhaseIngest, PhaseLocalize, PhasePlan, PhasePatchCandidates,
		PhaseTestStage, PhaseDiagnose, PhaseMinimize, PhaseFinalize, PhaseDone,
	}
}

// ParsePhase validates a phase string.
func ParsePhase(s string) (Phase, error) {
	for _, p := range Phases() {
		if Phase(s) == p {
			return p, nil
		}
	}
	return "", gferr.New(gferr.CodeAgentPhaseInvalid, "unknown phase",
		gferr.Field("phase", s))
}

// AllowedKinds returns the proposal kinds legal in a phase. Done allows
// nothing; an unknown phase degrades to inspect-only rather than failing,
// so the gate stays total.
func AllowedKinds(p Phase) []Kind {
	switch p {
	case PhaseIngest, PhaseLocalize:
		return []Kind{KindInspect, KindSearch}
	case PhasePlan:
		return []Kind{KindInspect, KindSearch, KindEdit}
	case PhasePatchCandidates:
		return []Kind{KindEdit, KindInspect, KindSearch}
	case PhaseTestStage:
		return []Kind{KindRunTests, KindInspect}
	case PhaseDiagnose:
		return []Kind{KindInspect, KindSearch, KindEdit}
	case PhaseMinimize:
		return []Kind{KindEdit, KindInspect, KindRunTests}
	case PhaseFinalize:
		return []Kind{KindFinalize, KindRunTests}
	case PhaseDone:
		return nil
	default:
		return []Kind{KindInspect}
	}
}

// AdvancePhase moves the state to the next phase after an executed round.
// A pending Notes.NextPhase override wins over the transition table; the
// override is consumed and both the default and the forced phase are
// logged so forced transitions stay auditable.
func AdvancePhase(state *AgentState, proposal Proposal, result ExecResult) {
	next := defaultNextPhase(state, proposal, result)

	if forced, ok := state.Notes.TakeNextPhase(); ok {
		slog.Info("planner forced phase transition",
			"task_id", state.TaskID,
			"from", state.Phase,
			"default_next", next,
			"forced", forced,
		)
		state.Phase = forced
		return
	}

	if next == PhaseDone && state.Notes.StopReason == "" {
		state.Notes.StopReason = StopReasonFinalized
	}
	state.Phase = next
}

func defaultNextPhase(state *AgentState, proposal Proposal, result ExecResult) Phase {
	switch state.Phase {
	case PhaseIngest:
		return PhaseLocalize

	case PhaseLocalize:
		if len(state.LocalizationHits) > 0 {
			return PhasePlan
		}
		return PhaseLocalize

	case PhasePlan:
		return PhasePatchCandidates

	case PhasePatchCandidates:
		if proposal.Kind == KindEdit && result.Status == StatusOK {
			return PhaseTestStage
		}
		if proposal.Kind == KindEdit && result.Status == StatusFail {
			return PhasePlan
		}
		return PhasePatchCandidates

	case PhaseTestStage:
		if result.Status == StatusOK && result.TestResult != nil && result.TestResult.Passed {
			return PhaseMinimize
		}
		return PhaseDiagnose

	case PhaseDiagnose:
		return PhasePlan

	case PhaseMinimize:
		return PhaseFinalize

	case PhaseFinalize:
		if proposal.Kind == KindFinalize {
			return PhaseDone
		}
		return PhaseFinalize

	default:
		return state.Phase
	}
}
