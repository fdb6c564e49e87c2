// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package agent

import (
	"fmt"
	"strings"

	"github.com/gatefix-dev/gatefix/internal/config"
	"github.com/gatefix-dev/gatefix/internal/patch"
)

// GateAcceptReason is the reason string on every accepted decision.
const GateAcceptReason = "All constraints satisfied"

// forbiddenDirs are directories an edit may never touch.
var forbiddenDirs = []string{"vendor/", "node_modules/", ".venv/", "dist/", "build/", "target/"}

// GateDecision is the gate's verdict on one proposal.
type GateDecision struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason"`
}

func reject(format string, args ...any) GateDecision {
	return GateDecision{Accept: false, Reason: fmt.Sprintf(format, args...)}
}

// Gate validates a proposal against phase legality, budgets, file
// constraints, and the test-modification ban, in that order, short-circuiting
// on the first failure. It is pure with respect to state (reads only) and
// total: malformed proposals are rejected, never a panic.
func Gate(cfg config.Config, state *AgentState, proposal Proposal) GateDecision {
	allowed := AllowedKinds(state.Phase)
	if !kindAllowed(proposal.Kind, allowed) {
		return reject("Action '%s' not allowed in phase %s. Allowed: %s",
			proposal.Kind, state.Phase, kindList(allowed))
	}

	if proposal.Kind == KindRunTests && state.Budget.TestRuns >= cfg.Budgets.MaxTestRuns {
		return reject("Test budget exhausted (%d/%d)",
			state.Budget.TestRuns, cfg.Budgets.MaxTestRuns)
	}

	if proposal.Kind == KindEdit {
		if state.Budget.PatchAttempts >= cfg.Budgets.MaxPatchAttempts {
			return reject("Patch budget exhausted (%d/%d)",
				state.Budget.PatchAttempts, cfg.Budgets.MaxPatchAttempts)
		}

		if proposal.Edit == nil {
			return reject("Edit proposal carries no edit payload")
		}

		files := proposal.Edit.Files
		if len(files) > cfg.Gate.MaxFilesTouched {
			return reject("Too many files (%d > %d)", len(files), cfg.Gate.MaxFilesTouched)
		}

		for _, f := range files {
			if dir, hit := forbiddenDir(f); hit {
				return reject("Cannot edit forbidden directory: %s", dir)
			}
		}

		diffLines := patch.CountChangeLines(proposal.Edit.Diff)
		if diffLines > cfg.Gate.MaxDiffLines {
			return reject("Diff too large (%d > %d lines)", diffLines, cfg.Gate.MaxDiffLines)
		}

		if cfg.Gate.ForbidTestModifications {
			for _, f := range files {
				if isTestPath(f) {
					return reject("Test modification forbidden: %s", f)
				}
			}
		}
	}

	return GateDecision{Accept: true, Reason: GateAcceptReason}
}

func kindAllowed(kind Kind, allowed []Kind) bool {
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}

func kindList(kinds []Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// forbiddenDir reports whether the path starts with or contains a forbidden
// directory as a path segment.
func forbiddenDir(path string) (string, bool) {
	for _, dir := range forbiddenDirs {
		if strings.HasPrefix(path, dir) || strings.Contains(path, "/"+dir) {
			return dir, true
		}
	}
	return "", false
}

// isTestPath matches anything under tests/ or any path containing "test",
// case-insensitive.
func isTestPath(path string) bool {
	return strings.Contains(strings.ToLower(path), "test") || strings.HasPrefix(path, "tests/")
}
