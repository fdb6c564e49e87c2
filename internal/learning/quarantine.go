// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package learning

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gatefix-dev/gatefix/internal/store"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// QuarantinePolicy holds the evidence thresholds for quarantine decisions.
type QuarantinePolicy struct {
	// MinSuccesses is the minimum evidence threshold: a strategy with
	// fewer tries than this is quarantined until proven.
	MinSuccesses int
	// MaxRegressionRate quarantines a strategy whose regression rate
	// exceeds it, once MinTriesForRate tries have accumulated.
	MaxRegressionRate float64
	MinTriesForRate   int
}

// DefaultQuarantinePolicy mirrors the configuration defaults.
func DefaultQuarantinePolicy() QuarantinePolicy {
	return QuarantinePolicy{
		MinSuccesses:      2,
		MaxRegressionRate: 0.3,
		MinTriesForRate:   5,
	}
}

// Evaluate applies the quarantine decision rule to raw evidence: quarantined
// when tries are below the minimum evidence threshold, when there are zero
// wins, or when the regression rate exceeds the maximum once enough tries
// have accumulated. A never-tried strategy is therefore always quarantined.
func (p QuarantinePolicy) Evaluate(tries, wins, regressions int) bool {
	if tries < p.MinSuccesses {
		return true
	}
	if wins == 0 {
		return true
	}
	if tries >= p.MinTriesForRate {
		if float64(regressions)/float64(tries) > p.MaxRegressionRate {
			return true
		}
	}
	return false
}

// Lane tracks per-context and global strategy safety evidence and decides
// exclusion from bandit selection. This is the anti-regression mechanism
// that keeps learning from making the agent worse over time.
type Lane struct {
	mu     sync.Mutex
	store  store.LearningStore
	policy QuarantinePolicy
	now    func() time.Time
}

// NewLane creates a quarantine lane persisting evidence through st. A zero
// policy selects the defaults.
func NewLane(st store.LearningStore, policy QuarantinePolicy) *Lane {
	if policy == (QuarantinePolicy{}) {
		policy = DefaultQuarantinePolicy()
	}
	return &Lane{store: st, policy: policy, now: time.Now}
}

// IsQuarantined reports whether a strategy is excluded for a context.
// Global force-quarantine takes precedence over context evidence.
func (l *Lane) IsQuarantined(ctx context.Context, strategy, contextKey string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isQuarantinedLocked(ctx, strategy, contextKey)
}

func (l *Lane) isQuarantinedLocked(ctx context.Context, strategy, contextKey string) (bool, error) {
	global, err := l.store.GlobalQuarantine(ctx)
	if err != nil {
		return false, gferr.Wrap(err, gferr.CodeLearningPersistFailure, "loading global quarantine")
	}
	for _, name := range global {
		if name == strategy {
			return true, nil
		}
	}

	rec, err := l.store.GetQuarantine(ctx, contextKey, strategy)
	if err != nil {
		if gferr.IsNotFound(err) {
			// No evidence yet: quarantined until proven.
			return l.policy.Evaluate(0, 0, 0), nil
		}
		return false, gferr.Wrap(err, gferr.CodeLearningPersistFailure, "loading quarantine record",
			gferr.FieldContextKey(contextKey), gferr.FieldStrategy(strategy))
	}

	return l.policy.Evaluate(rec.TotalTries, rec.Successes, rec.Regressions), nil
}

// Quarantined returns the set of strategies excluded for a context, shaped
// for Bandit.Select's exclude argument.
func (l *Lane) Quarantined(ctx context.Context, contextKey string, strategies []string) (map[string]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	excluded := make(map[string]bool)
	for _, s := range strategies {
		quarantined, err := l.isQuarantinedLocked(ctx, s, contextKey)
		if err != nil {
			return nil, err
		}
		if quarantined {
			excluded[s] = true
		}
	}
	return excluded, nil
}

// RecordOutcome updates the evidence for a strategy in a context. It returns
// true iff this call caused a new quarantine transition, for logging and
// alerting.
func (l *Lane) RecordOutcome(ctx context.Context, strategy, contextKey string, success, regression bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	wasQuarantined, err := l.isQuarantinedLocked(ctx, strategy, contextKey)
	if err != nil {
		return false, err
	}

	rec, err := l.store.GetQuarantine(ctx, contextKey, strategy)
	if err != nil {
		if !gferr.IsNotFound(err) {
			return false, gferr.Wrap(err, gferr.CodeLearningPersistFailure, "loading quarantine record",
				gferr.FieldContextKey(contextKey), gferr.FieldStrategy(strategy))
		}
		rec = &store.QuarantineRecord{ContextKey: contextKey, Strategy: strategy}
	}

	rec.TotalTries++
	if success {
		rec.Successes++
	}
	if regression {
		rec.Regressions++
		rec.LastRegression = l.now()
	}

	if err := l.store.UpsertQuarantine(ctx, rec); err != nil {
		return false, gferr.Wrap(err, gferr.CodeLearningPersistFailure, "persisting quarantine record",
			gferr.FieldContextKey(contextKey), gferr.FieldStrategy(strategy))
	}

	nowQuarantined := l.policy.Evaluate(rec.TotalTries, rec.Successes, rec.Regressions)
	newTransition := nowQuarantined && !wasQuarantined
	if newTransition {
		slog.Warn("strategy quarantined",
			"strategy", strategy,
			"context_key", contextKey,
			"tries", rec.TotalTries,
			"wins", rec.Successes,
			"regressions", rec.Regressions,
		)
	}
	return newTransition, nil
}

// ForceQuarantine excludes a strategy globally, independent of evidence.
func (l *Lane) ForceQuarantine(ctx context.Context, strategy, reason string) error {
	slog.Info("force-quarantining strategy", "strategy", strategy, "reason", reason)
	if err := l.store.SetGlobalQuarantine(ctx, strategy, true); err != nil {
		return gferr.Wrap(err, gferr.CodeLearningPersistFailure, "setting global quarantine",
			gferr.FieldStrategy(strategy))
	}
	return nil
}

// Release removes a strategy from global quarantine. Context-level evidence
// still applies.
func (l *Lane) Release(ctx context.Context, strategy string) error {
	slog.Info("releasing strategy from quarantine", "strategy", strategy)
	if err := l.store.SetGlobalQuarantine(ctx, strategy, false); err != nil {
		return gferr.Wrap(err, gferr.CodeLearningPersistFailure, "releasing global quarantine",
			gferr.FieldStrategy(strategy))
	}
	return nil
}
