// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

// Package store defines the persistence layer for the learning subsystem.
// Bandit arm statistics and quarantine evidence survive process restarts
// through one of the registered backends (in-memory or SQLite).
package store

import (
	"context"
	"time"
)

// GlobalContext is the reserved context key for statistics aggregated
// across all fingerprint contexts.
const GlobalContext = "__global__"

// BanditArm holds the selection statistics for one (context, strategy) pair.
// Alpha and Beta are the Beta-distribution posterior parameters used by
// Thompson Sampling; both start at 1.0 and only grow.
type BanditArm struct {
	ContextKey  string
	Strategy    string
	Tries       int
	Wins        int
	Regressions int
	Alpha       float64
	Beta        float64
	TotalReward float64
	UpdatedAt   time.Time
}

// QuarantineRecord holds the safety evidence for one (context, strategy) pair.
type QuarantineRecord struct {
	ContextKey     string
	Strategy       string
	TotalTries     int
	Successes      int
	Regressions    int
	LastRegression time.Time
}

// LearningStore persists bandit arms and quarantine evidence. Implementations
// must make each upsert atomic per key: concurrent batch workers may write to
// the same store, and last-writer-wins per (context, strategy) is the only
// guarantee callers rely on.
type LearningStore interface {
	// GetArm returns the arm for (contextKey, strategy), or an error with
	// code store.key.get.not_found when no record exists.
	GetArm(ctx context.Context, contextKey, strategy string) (*BanditArm, error)
	// ListArms returns all arms recorded under contextKey.
	ListArms(ctx context.Context, contextKey string) ([]*BanditArm, error)
	// UpsertArm inserts or replaces the arm keyed by (ContextKey, Strategy).
	UpsertArm(ctx context.Context, arm *BanditArm) error

	// GetQuarantine returns the record for (contextKey, strategy), or an
	// error with code store.key.get.not_found when no record exists.
	GetQuarantine(ctx context.Context, contextKey, strategy string) (*QuarantineRecord, error)
	// ListQuarantine returns all records under contextKey.
	ListQuarantine(ctx context.Context, contextKey string) ([]*QuarantineRecord, error)
	// UpsertQuarantine inserts or replaces the record keyed by
	// (ContextKey, Strategy).
	UpsertQuarantine(ctx context.Context, rec *QuarantineRecord) error

	// GlobalQuarantine returns the strategies currently force-quarantined
	// across all contexts.
	GlobalQuarantine(ctx context.Context) ([]string, error)
	// SetGlobalQuarantine force-quarantines or releases a strategy globally.
	SetGlobalQuarantine(ctx context.Context, strategy string, quarantined bool) error

	Close() error
}
