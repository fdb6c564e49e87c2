// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package provider

import (
	"context"
	"sort"
	"sync"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// Config holds the settings needed to construct a Generator.
type Config struct {
	Model       string
	APIKey      string
	Endpoint    string // optional base URL override, useful against a mock server
	Temperature float64
}

// GenerateRequest is a single-shot completion request. Temperature is always
// sent as given; repair prompting runs deterministic at 0.0 by default.
type GenerateRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generator is the model boundary: one prompt in, one structured response
// out. Implementations are plain constructed clients, created per caller
// and safe for concurrent use.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*Response, error)
	Close() error
}

// Factory constructs a Generator from configuration.
type Factory func(cfg Config) (Generator, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a provider backend available under the given name.
// Backends call this from init.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Names returns the registered backend names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs a Generator for a registered backend name.
func New(name string, cfg Config) (Generator, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, gferr.New(gferr.CodeProviderNotFound, "unknown provider",
			gferr.Field("provider", name))
	}
	return f(cfg)
}
