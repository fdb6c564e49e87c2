// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package agent

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// LedgerEvent is one write-once audit record: the proposal, the gate's
// verdict, and the execution outcome of a single round.
type LedgerEvent struct {
	ID         string       `json:"id"`
	TaskID     string       `json:"task_id"`
	RepoID     string       `json:"repo_id"`
	Round      int          `json:"round"`
	Phase      Phase        `json:"phase"`
	Proposal   Proposal     `json:"proposal"`
	Decision   GateDecision `json:"gate_decision"`
	Result     ExecResult   `json:"exec_result"`
	GateReject bool         `json:"gate_reject,omitempty"`
	DurationMS int64        `json:"duration_ms"`
	Timestamp  time.Time    `json:"timestamp"`
}

func newLedgerEvent(state *AgentState, proposal Proposal, decision GateDecision, result ExecResult, started time.Time) LedgerEvent {
	now := time.Now().UTC()
	return LedgerEvent{
		ID:         uuid.NewString(),
		TaskID:     state.TaskID,
		RepoID:     state.Repo.ID,
		Round:      state.Budget.RoundIdx,
		Phase:      state.Phase,
		Proposal:   proposal,
		Decision:   decision,
		Result:     result,
		GateReject: !decision.Accept,
		DurationMS: now.Sub(started).Milliseconds(),
		Timestamp:  now,
	}
}

// LedgerSink receives ledger events as they are appended to the state,
// for post-hoc replay outside the process.
type LedgerSink interface {
	Append(ev LedgerEvent) error
	Close() error
}

// JSONLSink writes ledger events as JSON lines to a file.
type JSONLSink struct {
	mu sync.Mutex
	f  *os.File
}

var _ LedgerSink = (*JSONLSink)(nil)

// NewJSONLSink opens (appending) or creates the events file.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, gferr.Wrap(err, gferr.CodeAgentLedgerSinkFailure, "opening ledger file",
			gferr.Field("path", path))
	}
	return &JSONLSink{f: f}, nil
}

func (s *JSONLSink) Append(ev LedgerEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return gferr.Wrap(err, gferr.CodeAgentLedgerSinkFailure, "encoding ledger event",
			gferr.FieldTaskID(ev.TaskID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		return gferr.Wrap(err, gferr.CodeAgentLedgerSinkFailure, "writing ledger event",
			gferr.FieldTaskID(ev.TaskID))
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
