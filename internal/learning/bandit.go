// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package learning

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/gatefix-dev/gatefix/internal/store"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// Method selects the bandit's arm-scoring algorithm.
type Method string

const (
	MethodThompson      Method = "thompson"
	MethodUCB           Method = "ucb"
	MethodEpsilonGreedy Method = "epsilon_greedy"
)

const (
	rewardSuccess    = 1.0
	rewardRegression = -0.5
	ucbExploration   = 2.0
)

// Bandit is a contextual multi-armed bandit over repair strategies. Arms are
// strategy names, contexts are failure fingerprints, and rewards come from
// verified outcomes. It operates in proposal space only: it suggests which
// strategy to try, it executes nothing and it never modifies the gate.
type Bandit struct {
	mu         sync.Mutex
	store      store.LearningStore
	strategies []string
	method     Method
	epsilon    float64
	rng        *rand.Rand
	now        func() time.Time
}

// BanditOptions tunes a Bandit. Zero values select the defaults: the full
// registry catalog, Thompson Sampling, epsilon 0.1, and a time-seeded RNG.
type BanditOptions struct {
	Strategies []string
	Method     Method
	Epsilon    float64
	Rand       *rand.Rand
}

// NewBandit creates a bandit persisting its statistics through st.
func NewBandit(st store.LearningStore, opts BanditOptions) *Bandit {
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = Names()
	}
	method := opts.Method
	if method == "" {
		method = MethodThompson
	}
	epsilon := opts.Epsilon
	if epsilon == 0 {
		epsilon = 0.1
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Bandit{
		store:      st,
		strategies: strategies,
		method:     method,
		epsilon:    epsilon,
		rng:        rng,
		now:        time.Now,
	}
}

// Select picks a strategy for the given context. Excluded strategies
// (typically the quarantine set) are removed first; if that empties the
// candidate set, selection falls back to the full unrestricted set.
// Unexplored arms (tries == 0 in this context) are always preferred,
// uniformly at random, over any scoring method.
func (b *Bandit) Select(ctx context.Context, contextKey string, exclude map[string]bool) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	arms, err := b.loadArms(ctx, contextKey)
	if err != nil {
		return "", err
	}

	candidates := make([]string, 0, len(b.strategies))
	for _, s := range b.strategies {
		if !exclude[s] {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		slog.Warn("all strategies excluded, falling back to full set", "context_key", contextKey)
		candidates = b.strategies
	}

	var unexplored []string
	for _, s := range candidates {
		if arms[s].Tries == 0 {
			unexplored = append(unexplored, s)
		}
	}
	if len(unexplored) > 0 {
		choice := unexplored[b.rng.Intn(len(unexplored))]
		slog.Debug("selecting unexplored strategy", "strategy", choice, "context_key", contextKey)
		return choice, nil
	}

	switch b.method {
	case MethodUCB:
		totalPulls := 0
		for _, s := range b.strategies {
			totalPulls += arms[s].Tries
		}
		return argmax(candidates, func(s string) float64 {
			return ucbScore(arms[s], totalPulls)
		}), nil

	case MethodEpsilonGreedy:
		if b.rng.Float64() < b.epsilon {
			return candidates[b.rng.Intn(len(candidates))], nil
		}
		return argmax(candidates, func(s string) float64 {
			return meanReward(arms[s])
		}), nil

	default: // Thompson Sampling
		return argmax(candidates, func(s string) float64 {
			arm := arms[s]
			return sampleBeta(b.rng, arm.Alpha, arm.Beta)
		}), nil
	}
}

// Update records an observed outcome for a strategy in a context. Reward is
// +1.0 for success, -0.5 for a regression, else partialReward. Positive
// reward grows alpha, non-positive grows beta by its magnitude. Both the
// per-context and the global arm are updated and persisted.
func (b *Bandit) Update(ctx context.Context, contextKey, strategy string, success, regression bool, partialReward float64) error {
	if !b.knows(strategy) {
		return gferr.New(gferr.CodeLearningStrategyUnknown, "unknown strategy",
			gferr.FieldStrategy(strategy))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	reward := partialReward
	if success {
		reward = rewardSuccess
	} else if regression {
		reward = rewardRegression
	}

	for _, key := range []string{contextKey, store.GlobalContext} {
		arm, err := b.loadArm(ctx, key, strategy)
		if err != nil {
			return err
		}

		arm.Tries++
		if success {
			arm.Wins++
		} else if regression {
			arm.Regressions++
		}
		if reward > 0 {
			arm.Alpha += reward
		} else {
			arm.Beta += math.Abs(reward)
		}
		arm.TotalReward += reward
		arm.UpdatedAt = b.now()

		if err := b.store.UpsertArm(ctx, arm); err != nil {
			return gferr.Wrap(err, gferr.CodeLearningPersistFailure, "persisting bandit stats",
				gferr.FieldContextKey(key), gferr.FieldStrategy(strategy))
		}
	}

	return nil
}

// Snapshot returns the current arm statistics for every strategy in the
// given context, including zero-valued arms for strategies never tried.
func (b *Bandit) Snapshot(ctx context.Context, contextKey string) ([]store.BanditArm, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	arms, err := b.loadArms(ctx, contextKey)
	if err != nil {
		return nil, err
	}

	out := make([]store.BanditArm, 0, len(b.strategies))
	for _, s := range b.strategies {
		out = append(out, arms[s])
	}
	return out, nil
}

// BestStrategy returns the strategy with the highest posterior mean reward
// for the context.
func (b *Bandit) BestStrategy(ctx context.Context, contextKey string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	arms, err := b.loadArms(ctx, contextKey)
	if err != nil {
		return "", err
	}
	return argmax(b.strategies, func(s string) float64 {
		return meanReward(arms[s])
	}), nil
}

func (b *Bandit) knows(strategy string) bool {
	for _, s := range b.strategies {
		if s == strategy {
			return true
		}
	}
	return false
}

// loadArms returns an arm per known strategy, with fresh Beta(1,1) arms for
// strategies not yet recorded under this context.
func (b *Bandit) loadArms(ctx context.Context, contextKey string) (map[string]store.BanditArm, error) {
	recorded, err := b.store.ListArms(ctx, contextKey)
	if err != nil {
		return nil, gferr.Wrap(err, gferr.CodeLearningPersistFailure, "loading bandit stats",
			gferr.FieldContextKey(contextKey))
	}

	arms := make(map[string]store.BanditArm, len(b.strategies))
	for _, s := range b.strategies {
		arms[s] = store.BanditArm{ContextKey: contextKey, Strategy: s, Alpha: 1.0, Beta: 1.0}
	}
	for _, arm := range recorded {
		if _, ok := arms[arm.Strategy]; ok {
			arms[arm.Strategy] = *arm
		}
	}
	return arms, nil
}

func (b *Bandit) loadArm(ctx context.Context, contextKey, strategy string) (*store.BanditArm, error) {
	arm, err := b.store.GetArm(ctx, contextKey, strategy)
	if err == nil {
		return arm, nil
	}
	if gferr.IsNotFound(err) {
		return &store.BanditArm{ContextKey: contextKey, Strategy: strategy, Alpha: 1.0, Beta: 1.0}, nil
	}
	return nil, gferr.Wrap(err, gferr.CodeLearningPersistFailure, "loading bandit arm",
		gferr.FieldContextKey(contextKey), gferr.FieldStrategy(strategy))
}

func meanReward(arm store.BanditArm) float64 {
	return arm.Alpha / (arm.Alpha + arm.Beta)
}

func ucbScore(arm store.BanditArm, totalPulls int) float64 {
	if arm.Tries == 0 {
		return math.Inf(1)
	}
	exploitation := meanReward(arm)
	exploration := ucbExploration * math.Sqrt(math.Log(float64(totalPulls+1))/float64(arm.Tries))
	return exploitation + exploration
}

func argmax(candidates []string, score func(string) float64) string {
	best := candidates[0]
	bestScore := math.Inf(-1)
	for _, s := range candidates {
		if sc := score(s); sc > bestScore {
			bestScore = sc
			best = s
		}
	}
	return best
}

// sampleBeta draws from Beta(alpha, beta) via two Gamma draws.
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	x := sampleGamma(rng, alpha)
	y := sampleGamma(rng, beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using the Marsaglia-Tsang method,
// boosting shape < 1 through the standard u^(1/shape) transform.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
