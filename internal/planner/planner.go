// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

// Package planner turns episode state into gate-ready proposals. It asks
// the configured generator for the next action, consults the learning
// layer for a patch strategy in planning phases, and degrades to
// phase-inferred defaults whenever the model output is unusable. Propose
// never returns an error: a planner that crashes the loop is worse than
// one that guesses.
package planner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gatefix-dev/gatefix/internal/agent"
	"github.com/gatefix-dev/gatefix/internal/config"
	"github.com/gatefix-dev/gatefix/internal/learning"
	"github.com/gatefix-dev/gatefix/internal/provider"
)

// MetaPlanner drives proposal generation for an episode.
type MetaPlanner struct {
	gen    provider.Generator
	bandit *learning.Bandit
	lane   *learning.Lane

	mu           sync.Mutex
	lastStrategy map[string]string // task ID -> last recommended strategy
	lastContext  map[string]string // task ID -> context key it was picked for
}

// New builds a planner around a generator. The bandit and lane are
// optional; without them every patch phase goes to the model unguided.
func New(gen provider.Generator, bandit *learning.Bandit, lane *learning.Lane) *MetaPlanner {
	return &MetaPlanner{
		gen:          gen,
		bandit:       bandit,
		lane:         lane,
		lastStrategy: make(map[string]string),
		lastContext:  make(map[string]string),
	}
}

// Propose implements agent.ProposeFn.
func (p *MetaPlanner) Propose(ctx context.Context, cfg config.Config, state *agent.AgentState) (agent.Proposal, error) {
	var directive *Directive
	if isPatchPhase(state.Phase) {
		directive = p.recommendStrategy(ctx, state)
	}

	prompt := buildPrompt(state, directive)
	resp, err := p.gen.Generate(ctx, provider.GenerateRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: cfg.Provider.Temperature,
	})
	if err != nil {
		slog.Warn("generator failed, falling back to inferred proposal",
			"task_id", state.TaskID, "phase", state.Phase, "error", err)
		return inferFromPhase(state, ""), nil
	}

	return responseToProposal(resp, state), nil
}

func isPatchPhase(p agent.Phase) bool {
	return p == agent.PhasePlan || p == agent.PhasePatchCandidates || p == agent.PhaseDiagnose
}

// recommendStrategy asks the bandit for a strategy, excluding quarantined
// arms, and renders it into a patch directive. Any learning-layer failure
// is logged and the round proceeds unguided.
func (p *MetaPlanner) recommendStrategy(ctx context.Context, state *agent.AgentState) *Directive {
	if p.bandit == nil {
		return nil
	}

	contextKey := ContextKey(state)

	var exclude map[string]bool
	if p.lane != nil {
		var err error
		exclude, err = p.lane.Quarantined(ctx, contextKey, learning.Names())
		if err != nil {
			slog.Warn("quarantine lookup failed", "task_id", state.TaskID, "error", err)
			exclude = nil
		}
	}

	strategy, err := p.bandit.Select(ctx, contextKey, exclude)
	if err != nil {
		slog.Warn("strategy selection failed", "task_id", state.TaskID, "error", err)
		return nil
	}

	p.mu.Lock()
	p.lastStrategy[state.TaskID] = strategy
	p.lastContext[state.TaskID] = contextKey
	p.mu.Unlock()

	tmpl, ok := TemplateFor(strategy)
	if !ok {
		return nil
	}
	d := tmpl(strategyTarget(state))
	slog.Debug("strategy recommended",
		"task_id", state.TaskID, "strategy", strategy, "context_key", contextKey)
	return &d
}

// ContextKey derives the learning context for an episode: the first
// failing test node when one is known, otherwise the repository identity.
func ContextKey(state *agent.AgentState) string {
	if len(state.LastFailures) > 0 && state.LastFailures[0].NodeID != "" {
		return state.LastFailures[0].NodeID
	}
	return "repo:" + state.Repo.ID
}

func strategyTarget(state *agent.AgentState) Target {
	t := Target{}
	if len(state.Notes.FilesRead) > 0 {
		t.File = state.Notes.FilesRead[0]
	} else if len(state.LocalizationHits) > 0 {
		t.File = state.LocalizationHits[0].File
	}
	if len(state.LastFailures) > 0 {
		t.ErrorText = state.LastFailures[0].Message
	}
	return t
}

// Observe reports the episode outcome for the strategy last recommended
// to this task, updating the bandit posterior and the quarantine lane.
// Tasks that never received a recommendation are a no-op.
func (p *MetaPlanner) Observe(ctx context.Context, taskID string, success, regression bool) error {
	p.mu.Lock()
	strategy, ok := p.lastStrategy[taskID]
	contextKey := p.lastContext[taskID]
	delete(p.lastStrategy, taskID)
	delete(p.lastContext, taskID)
	p.mu.Unlock()
	if !ok {
		return nil
	}

	if err := p.bandit.Update(ctx, contextKey, strategy, success, regression, 0); err != nil {
		return err
	}
	if p.lane != nil {
		newlyQuarantined, err := p.lane.RecordOutcome(ctx, strategy, contextKey, success, regression)
		if err != nil {
			return err
		}
		if newlyQuarantined {
			slog.Info("strategy quarantined", "strategy", strategy, "context_key", contextKey)
		}
	}
	return nil
}
