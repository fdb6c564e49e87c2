// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package agent

import (
	"sort"
)

// Stop reasons recorded in Notes.StopReason at episode end.
const (
	StopReasonMaxRounds = "max_rounds"
	StopReasonFinalized = "finalized"
	StopReasonCancelled = "cancelled"
)

// RepoFingerprint identifies the repository snapshot under repair.
type RepoFingerprint struct {
	ID       string `json:"id"`
	Commit   string `json:"commit,omitempty"`
	Workdir  string `json:"workdir"`
	Language string `json:"language,omitempty"`
}

// BudgetState holds the episode's resource counters. Each counter is
// monotonically non-decreasing within an episode and owned exclusively by
// the loop.
type BudgetState struct {
	RoundIdx      int `json:"round_idx"`
	PatchAttempts int `json:"patch_attempts"`
	TestRuns      int `json:"test_runs"`
	ModelCalls    int `json:"model_calls"`
}

// LocalizationHit is one candidate bug location.
type LocalizationHit struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
	Type   string `json:"type"`
}

// TestFailure is one failing test parsed from a test run.
type TestFailure struct {
	NodeID  string `json:"nodeid"`
	Message string `json:"message"`
}

// RejectedProposal summarizes the last gate rejection for the planner.
type RejectedProposal struct {
	Kind      Kind   `json:"kind"`
	Rationale string `json:"rationale"`
}

// Notes is the cross-round scratch space. Every field the loop, gate, and
// planner communicate through is named here, so episode state stays
// exhaustively enumerable.
type Notes struct {
	ProblemStatement     string            `json:"problem_statement"`
	ActionHistory        []string          `json:"action_history,omitempty"`
	LastError            string            `json:"last_error,omitempty"`
	LastGateReject       string            `json:"last_gate_reject,omitempty"`
	LastRejectedProposal *RejectedProposal `json:"last_rejected_proposal,omitempty"`
	FilesRead            []string          `json:"files_read,omitempty"`
	LastFileContents     map[string]string `json:"last_file_contents,omitempty"`
	StopReason           string            `json:"stop_reason,omitempty"`
	Solved               bool              `json:"solved,omitempty"`
	FinalSummary         string            `json:"final_summary,omitempty"`

	// NextPhase is the planner's one-shot phase override, consumed by
	// AdvancePhase.
	NextPhase Phase `json:"next_phase,omitempty"`
}

// Record appends an entry to the action history.
func (n *Notes) Record(action string) {
	n.ActionHistory = append(n.ActionHistory, action)
}

// MarkRead adds a file to the read set, keeping it sorted and unique.
func (n *Notes) MarkRead(file string) {
	for _, f := range n.FilesRead {
		if f == file {
			return
		}
	}
	n.FilesRead = append(n.FilesRead, file)
	sort.Strings(n.FilesRead)
}

// HasRead reports whether a file was read earlier this episode.
func (n *Notes) HasRead(file string) bool {
	for _, f := range n.FilesRead {
		if f == file {
			return true
		}
	}
	return false
}

// TakeNextPhase consumes a pending phase override, if any.
func (n *Notes) TakeNextPhase() (Phase, bool) {
	if n.NextPhase == "" {
		return "", false
	}
	p := n.NextPhase
	n.NextPhase = ""
	return p, true
}

// AgentState is the aggregate root of one episode. It is owned by exactly
// one episode and mutated only by the loop and the functions it invokes.
type AgentState struct {
	TaskID           string            `json:"task_id"`
	Repo             RepoFingerprint   `json:"repo"`
	Phase            Phase             `json:"phase"`
	Budget           BudgetState       `json:"budget"`
	Notes            Notes             `json:"notes"`
	LocalizationHits []LocalizationHit `json:"localization_hits,omitempty"`
	TouchedFiles     []string          `json:"touched_files,omitempty"`
	LastFailures     []TestFailure     `json:"last_failures,omitempty"`

	// Ledger is the episode's in-memory audit trail, appended once per
	// gated round.
	Ledger []LedgerEvent `json:"ledger,omitempty"`
}

// NewAgentState creates a fresh episode state starting in Ingest.
func NewAgentState(taskID string, repo RepoFingerprint, problemStatement string) *AgentState {
	return &AgentState{
		TaskID: taskID,
		Repo:   repo,
		Phase:  PhaseIngest,
		Notes:  Notes{ProblemStatement: problemStatement},
	}
}

// MergeTouchedFiles unions files into the touched set, kept sorted.
func (s *AgentState) MergeTouchedFiles(files []string) {
	seen := make(map[string]bool, len(s.TouchedFiles)+len(files))
	for _, f := range s.TouchedFiles {
		seen[f] = true
	}
	for _, f := range files {
		seen[f] = true
	}
	merged := make([]string, 0, len(seen))
	for f := range seen {
		merged = append(merged, f)
	}
	sort.Strings(merged)
	s.TouchedFiles = merged
}

// AddLocalizationHit appends a candidate bug location.
func (s *AgentState) AddLocalizationHit(file, reason, hitType string) {
	s.LocalizationHits = append(s.LocalizationHits, LocalizationHit{
		File: file, Reason: reason, Type: hitType,
	})
}
