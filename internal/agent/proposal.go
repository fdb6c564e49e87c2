// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package agent

import (
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// Kind is the action class of a proposal.
type Kind string

const (
	KindInspect  Kind = "inspect"
	KindSearch   Kind = "search"
	KindEdit     Kind = "edit"
	KindRunTests Kind = "run_tests"
	KindFinalize Kind = "finalize"
)

// InspectInput names files to read, or a well-known query such as
// "problem_statement".
type InspectInput struct {
	Files []string `json:"files,omitempty"`
	Query string   `json:"query,omitempty"`
}

// SearchInput is a repository text search.
type SearchInput struct {
	Query string `json:"query"`
}

// EditInput carries a unified diff and the files it touches.
type EditInput struct {
	Diff  string   `json:"diff"`
	Files []string `json:"files"`
}

// RunTestsInput is a test command to execute in the working tree.
type RunTestsInput struct {
	Command string `json:"command"`
}

// FinalizeInput declares the episode outcome.
type FinalizeInput struct {
	Summary string `json:"summary"`
	Status  string `json:"status"`
}

// Proposal is a single candidate action for one round. Exactly one payload
// field matches Kind; the rest are nil. Proposals are created once per
// round and never mutated.
type Proposal struct {
	Kind      Kind     `json:"kind"`
	Rationale string   `json:"rationale"`
	Evidence  []string `json:"evidence,omitempty"`

	Inspect  *InspectInput  `json:"inspect,omitempty"`
	Search   *SearchInput   `json:"search,omitempty"`
	Edit     *EditInput     `json:"edit,omitempty"`
	RunTests *RunTestsInput `json:"run_tests,omitempty"`
	Finalize *FinalizeInput `json:"finalize,omitempty"`
}

// NewInspect proposes reading files or a named query.
func NewInspect(rationale string, in InspectInput) Proposal {
	return Proposal{Kind: KindInspect, Rationale: rationale, Inspect: &in}
}

// NewSearch proposes a repository search.
func NewSearch(rationale, query string) Proposal {
	return Proposal{Kind: KindSearch, Rationale: rationale, Search: &SearchInput{Query: query}}
}

// NewEdit proposes applying a diff.
func NewEdit(rationale string, in EditInput) Proposal {
	return Proposal{Kind: KindEdit, Rationale: rationale, Edit: &in}
}

// NewRunTests proposes running the test command.
func NewRunTests(rationale, command string) Proposal {
	return Proposal{Kind: KindRunTests, Rationale: rationale, RunTests: &RunTestsInput{Command: command}}
}

// NewFinalize proposes ending the episode.
func NewFinalize(rationale string, in FinalizeInput) Proposal {
	return Proposal{Kind: KindFinalize, Rationale: rationale, Finalize: &in}
}

// Validate checks that exactly the payload matching Kind is set.
func (p Proposal) Validate() error {
	payloads := 0
	for _, set := range []bool{
		p.Inspect != nil, p.Search != nil, p.Edit != nil, p.RunTests != nil, p.Finalize != nil,
	} {
		if set {
			payloads++
		}
	}
	if payloads != 1 {
		return gferr.New(gferr.CodeAgentProposalInvalid, "proposal must carry exactly one payload",
			gferr.Field("kind", string(p.Kind)), gferr.Field("payloads", payloads))
	}

	ok := false
	switch p.Kind {
	case KindInspect:
		ok = p.Inspect != nil
	case KindSearch:
		ok = p.Search != nil
	case KindEdit:
		ok = p.Edit != nil
	case KindRunTests:
		ok = p.RunTests != nil
	case KindFinalize:
		ok = p.Finalize != nil
	default:
		return gferr.New(gferr.CodeAgentProposalInvalid, "unknown proposal kind",
			gferr.Field("kind", string(p.Kind)))
	}
	if !ok {
		return gferr.New(gferr.CodeAgentProposalInvalid, "payload does not match proposal kind",
			gferr.Field("kind", string(p.Kind)))
	}
	return nil
}

// EditFiles returns the edit target files, or nil for non-edit proposals.
func (p Proposal) EditFiles() []string {
	if p.Edit == nil {
		return nil
	}
	return p.Edit.Files
}

// Status is the outcome class of an execution.
type Status string

const (
	StatusOK   Status = "ok"
	StatusFail Status = "fail"
)

// TestResult is the typed payload of a run_tests execution.
type TestResult struct {
	Passed     bool   `json:"passed"`
	ReturnCode int    `json:"returncode"`
	StdoutTail string `json:"stdout_tail,omitempty"`
}

// ExecResult records the side effects of executing one proposal.
type ExecResult struct {
	Status     Status      `json:"status"`
	Summary    string      `json:"summary"`
	Artifacts  []string    `json:"artifacts,omitempty"`
	TestResult *TestResult `json:"test_result,omitempty"`
}
