// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

// Package agent implements the gated proposal/execution control loop.
//
// Serial authority: one proposal at a time, always gated. The loop drives
// propose -> gate -> execute -> log -> advance each round until the phase
// machine reaches done or a budget runs out.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatefix-dev/gatefix/internal/config"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// ProposeFn generates the next candidate action. It may fail or panic;
// the loop recovers and continues the episode.
type ProposeFn func(ctx context.Context, cfg config.Config, state *AgentState) (Proposal, error)

// GateFn validates a proposal. The default is Gate.
type GateFn func(cfg config.Config, state *AgentState, proposal Proposal) GateDecision

// ExecFn executes an accepted proposal. It may fail or panic; the loop
// converts both into a failed ExecResult.
type ExecFn func(ctx context.Context, cfg config.Config, state *AgentState, proposal Proposal) (ExecResult, error)

// RunEpisode drives one repair task from its current phase to done. The
// state is mutated in place; the returned error is non-nil only for
// cancellation — every subsystem failure is recovered into the episode
// itself. Cancellation is honored between rounds only: a started round
// always completes its propose/gate/execute/log/advance sequence.
func RunEpisode(ctx context.Context, cfg config.Config, state *AgentState, propose ProposeFn, gate GateFn, exec ExecFn, sink LedgerSink) error {
	slog.Info("Starting episode",
		"task_id", state.TaskID,
		"repo_id", state.Repo.ID,
		"max_rounds", cfg.Budgets.MaxRounds,
	)
	episodeStart := time.Now()

	for state.Phase != PhaseDone {
		if err := ctx.Err(); err != nil {
			state.Notes.StopReason = StopReasonCancelled
			state.Phase = PhaseDone
			return gferr.Wrap(err, gferr.CodeAgentExecTimeout, "episode cancelled",
				gferr.FieldTaskID(state.TaskID))
		}

		if state.Budget.RoundIdx >= cfg.Budgets.MaxRounds {
			slog.Warn("Max rounds reached",
				"rounds", state.Budget.RoundIdx,
				"max_rounds", cfg.Budgets.MaxRounds,
			)
			state.Notes.StopReason = StopReasonMaxRounds
			state.Phase = PhaseDone
			break
		}

		roundStart := time.Now()
		state.Budget.RoundIdx++

		slog.Info("Round start", "round", state.Budget.RoundIdx, "phase", state.Phase)

		proposal, err := safePropose(ctx, cfg, state, propose)
		if err != nil {
			slog.Error("Proposal generation failed", "error", err)
			state.Notes.LastError = err.Error()
			state.Phase = PhaseDiagnose
			continue
		}

		slog.Info("Proposal generated",
			"kind", proposal.Kind,
			"rationale", truncateForLog(proposal.Rationale, 100),
			"evidence_count", len(proposal.Evidence),
		)

		decision := gate(cfg, state, proposal)
		if !decision.Accept {
			slog.Warn("Gate rejected proposal", "reason", decision.Reason, "kind", proposal.Kind)

			appendEvent(state, sink, newLedgerEvent(state, proposal, decision,
				ExecResult{Status: StatusFail, Summary: "gate_reject"}, roundStart))

			state.Notes.LastGateReject = decision.Reason
			state.Notes.LastRejectedProposal = &RejectedProposal{
				Kind:      proposal.Kind,
				Rationale: proposal.Rationale,
			}

			// Force re-planning; a rejected diagnosis keeps diagnosing.
			if state.Phase != PhaseDiagnose {
				state.Phase = PhasePlan
			}
			continue
		}

		result, err := safeExec(ctx, cfg, state, proposal, exec)
		if err != nil {
			slog.Error("Execution failed", "error", err)
			result = ExecResult{
				Status:  StatusFail,
				Summary: fmt.Sprintf("Execution error: %v", err),
			}
		}

		slog.Info("Execution complete",
			"status", result.Status,
			"summary", truncateForLog(result.Summary, 100),
		)

		switch proposal.Kind {
		case KindRunTests:
			state.Budget.TestRuns++
		case KindEdit:
			state.Budget.PatchAttempts++
			state.MergeTouchedFiles(proposal.EditFiles())
		}
		switch proposal.Kind {
		case KindInspect, KindSearch, KindEdit, KindRunTests:
			state.Budget.ModelCalls++
		}

		appendEvent(state, sink, newLedgerEvent(state, proposal, decision, result, roundStart))

		AdvancePhase(state, proposal, result)

		slog.Info("Round complete",
			"round", state.Budget.RoundIdx,
			"next_phase", state.Phase,
		)
	}

	slog.Info("Episode complete",
		"task_id", state.TaskID,
		"rounds", state.Budget.RoundIdx,
		"duration", time.Since(episodeStart).Round(time.Millisecond),
		"stop_reason", state.Notes.StopReason,
	)
	return nil
}

func safePropose(ctx context.Context, cfg config.Config, state *AgentState, propose ProposeFn) (p Proposal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = gferr.New(gferr.CodeAgentProposalFailure, fmt.Sprintf("propose panicked: %v", r),
				gferr.FieldTaskID(state.TaskID))
		}
	}()
	return propose(ctx, cfg, state)
}

func safeExec(ctx context.Context, cfg config.Config, state *AgentState, proposal Proposal, exec ExecFn) (res ExecResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = gferr.New(gferr.CodeAgentExecFailure, fmt.Sprintf("exec panicked: %v", r),
				gferr.FieldTaskID(state.TaskID))
		}
	}()
	return exec(ctx, cfg, state, proposal)
}

func appendEvent(state *AgentState, sink LedgerSink, ev LedgerEvent) {
	state.Ledger = append(state.Ledger, ev)
	if sink == nil {
		return
	}
	if err := sink.Append(ev); err != nil {
		// A broken sink never stops the episode; the in-memory ledger
		// remains authoritative.
		slog.Warn("ledger sink append failed", "error", err, "task_id", ev.TaskID)
	}
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
