// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gatefix-dev/gatefix/internal/agent"
	"github.com/gatefix-dev/gatefix/internal/patch"
	"github.com/gatefix-dev/gatefix/internal/provider"
)

const systemPrompt = `You are an automated code-repair agent working inside a gated control loop.
Every reply must be a single JSON object in one of three modes:
{"mode": "patch", "diff": "<unified diff>", "why": "<reason>"}
{"mode": "tool_request", "requests": [{"tool": "<name>", "args": {...}}], "why": "<reason>"}
{"mode": "feature_summary", "summary": "<what was fixed>", "completion_status": "complete|partial"}
Diffs use standard unified format with a/ and b/ path prefixes. Never modify test files.`

// phaseInstruction tells the model what class of action the gate will
// accept this round.
func phaseInstruction(p agent.Phase) string {
	switch p {
	case agent.PhaseIngest, agent.PhaseLocalize:
		return "Locate the faulty code. Request file reads (sandbox.read_file) or searches (sandbox.grep)."
	case agent.PhasePlan:
		return "Decide the fix. Read or search to confirm your hypothesis, or emit a patch if confident."
	case agent.PhasePatchCandidates:
		return "Emit a patch (mode patch) fixing the fault in the files you have read."
	case agent.PhaseTestStage:
		return "Verify the fix. Request a test run (sandbox.run_command)."
	case agent.PhaseDiagnose:
		return "The last attempt failed. Re-examine the failure output and the relevant files."
	case agent.PhaseMinimize:
		return "Reduce the patch to the minimal change that keeps the tests passing."
	case agent.PhaseFinalize:
		return "Summarize the fix (mode feature_summary) or run the tests one final time."
	default:
		return "Proceed with the repair."
	}
}

// buildPrompt assembles the per-round prompt from episode state.
func buildPrompt(state *agent.AgentState, directive *Directive) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PROBLEM:\n%s\n\n", state.Notes.ProblemStatement)
	fmt.Fprintf(&b, "PHASE: %s\n%s\n\n", state.Phase, phaseInstruction(state.Phase))

	if directive != nil {
		fmt.Fprintf(&b, "RECOMMENDED STRATEGY (%s): %s\n\n", directive.Strategy, directive.Instruction)
	}

	if state.Notes.LastGateReject != "" {
		fmt.Fprintf(&b, "PREVIOUS PROPOSAL REJECTED: %s\n\n", state.Notes.LastGateReject)
	}

	if len(state.LastFailures) > 0 {
		b.WriteString("FAILING TESTS:\n")
		for _, f := range state.LastFailures {
			fmt.Fprintf(&b, "- %s\n", f.Message)
		}
		b.WriteString("\n")
	}

	if len(state.Notes.LastFileContents) > 0 {
		b.WriteString("FILES READ:\n")
		for name, content := range state.Notes.LastFileContents {
			fmt.Fprintf(&b, "--- %s ---\n%s\n", name, clip(content, 4000))
		}
		b.WriteString("\n")
	}

	if n := len(state.Notes.ActionHistory); n > 0 {
		b.WriteString("RECENT ACTIONS:\n")
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, a := range state.Notes.ActionHistory[start:] {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	return b.String()
}

// responseToProposal maps a structured model response onto a gate-ready
// proposal, tracking the action in the episode history.
func responseToProposal(resp *provider.Response, state *agent.AgentState) agent.Proposal {
	why := resp.Why

	switch resp.Mode {
	case provider.ModePatch:
		files := patch.Files(resp.Diff)
		state.Notes.Record(fmt.Sprintf("Generated patch for %v", files))
		if why == "" {
			why = "Generated patch"
		}
		return agent.NewEdit(why, agent.EditInput{Diff: resp.Diff, Files: files})

	case provider.ModeToolRequest:
		if len(resp.Requests) == 0 {
			return inferFromPhase(state, why)
		}
		return toolRequestToProposal(resp.Requests[0], state, why)

	case provider.ModeFeatureSummary:
		state.Notes.Record("Finalize")
		if why == "" {
			why = "Task complete"
		}
		status := resp.CompletionStatus
		if status == "" {
			status = "complete"
		}
		return agent.NewFinalize(why, agent.FinalizeInput{Summary: resp.Summary, Status: status})
	}

	return inferFromPhase(state, why)
}

func toolRequestToProposal(req provider.ToolRequest, state *agent.AgentState, why string) agent.Proposal {
	tool := strings.ToLower(req.Tool)

	switch {
	case containsAny(tool, "grep", "search", "find", "rg"):
		query := argString(req.Args, "query", "pattern")
		state.Notes.Record("Search: " + query)
		if why == "" {
			why = "Search for: " + query
		}
		return agent.NewSearch(why, query)

	case containsAny(tool, "read", "cat", "view"):
		path := argString(req.Args, "path", "file")
		if state.Notes.HasRead(path) {
			return inferFromPhase(state, fmt.Sprintf("Already read %s, trying something else", path))
		}
		state.Notes.Record("Read: " + path)
		if why == "" {
			why = "Read file: " + path
		}
		return agent.NewInspect(why, agent.InspectInput{Files: []string{path}})

	case containsAny(tool, "test", "pytest", "run"):
		command := argString(req.Args, "command", "cmd")
		if command == "" {
			command = "pytest"
		}
		state.Notes.Record("Run: " + command)
		if why == "" {
			why = "Run tests: " + command
		}
		return agent.NewRunTests(why, command)
	}

	if path := argString(req.Args, "path"); path != "" {
		return agent.NewInspect("Read file: "+path, agent.InspectInput{Files: []string{path}})
	}
	return inferFromPhase(state, why)
}

// inferFromPhase produces a sensible proposal when the model gave nothing
// usable. This is the safe default that keeps the loop alive.
func inferFromPhase(state *agent.AgentState, why string) agent.Proposal {
	// With analyzed file contents in a patch phase, push toward an edit;
	// an empty diff fails execution and sends the loop back to planning,
	// which beats stalling here.
	if state.Phase == agent.PhasePatchCandidates &&
		len(state.Notes.LastFileContents) > 0 && len(state.Notes.FilesRead) > 0 {
		file := state.Notes.FilesRead[0]
		state.Notes.Record("Forcing edit for: " + file)
		return agent.NewEdit("Generating patch based on analyzed file contents",
			agent.EditInput{Files: []string{file}})
	}

	if state.Phase == agent.PhaseLocalize || state.Phase == agent.PhasePlan {
		if term := nextSearchTerm(state); term != "" {
			state.Notes.Record("Inferred search: " + term)
			if why == "" {
				why = "Search for code term: " + term
			}
			return agent.NewSearch(why, term)
		}
	}

	for _, hit := range state.LocalizationHits {
		if hit.File != "" && !state.Notes.HasRead(hit.File) {
			state.Notes.Record("Inferred read: " + hit.File)
			if why == "" {
				why = "Read localized file: " + hit.File
			}
			return agent.NewInspect(why, agent.InspectInput{Files: []string{hit.File}})
		}
	}

	if why == "" {
		why = "Re-reading problem statement"
	}
	return agent.NewInspect(why, agent.InspectInput{Query: "problem_statement"})
}

// nextSearchTerm picks the first code identifier from the problem
// statement not yet searched.
func nextSearchTerm(state *agent.AgentState) string {
	searched := make(map[string]bool)
	for _, a := range state.Notes.ActionHistory {
		if idx := strings.Index(a, "earch: "); idx >= 0 {
			searched[a[idx+len("earch: "):]] = true
		}
	}
	for _, term := range extractIdentifiers(state.Notes.ProblemStatement) {
		if !searched[term] {
			return term
		}
	}
	return ""
}

var (
	snakeCaseRe = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:_[a-z0-9]+)+\b`)
	camelCaseRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][a-z]+)+\b`)
	dottedRe    = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:\.[a-z][a-z0-9]*)+\b`)
	backtickRe  = regexp.MustCompile("`([^`]+)`")
)

// extractIdentifiers pulls likely code identifiers (snake_case, CamelCase,
// dotted paths, backticked fragments) out of problem text, deduplicated in
// order of appearance, capped at 20.
func extractIdentifiers(text string) []string {
	var candidates []string
	candidates = append(candidates, snakeCaseRe.FindAllString(text, -1)...)
	candidates = append(candidates, camelCaseRe.FindAllString(text, -1)...)
	candidates = append(candidates, dottedRe.FindAllString(text, -1)...)
	for _, m := range backtickRe.FindAllStringSubmatch(text, -1) {
		clean := strings.TrimSpace(m[1])
		if len(clean) > 3 && isIdentifierish(clean) {
			candidates = append(candidates, clean)
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, c := range candidates {
		if len(c) > 3 && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
		if len(out) >= 20 {
			break
		}
	}
	return out
}

func isIdentifierish(s string) bool {
	for _, r := range s {
		if !(r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func argString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
