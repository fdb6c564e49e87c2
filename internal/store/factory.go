// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package store

import (
	"sync"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// Factory creates a LearningStore from a backend-specific path. Backends
// that need no path (memory) ignore it.
type Factory func(path string) (LearningStore, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory function for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Open creates a LearningStore for the named backend, defaulting to "sqlite"
// when backend is empty.
func Open(backend, path string) (LearningStore, error) {
	if backend == "" {
		backend = "sqlite"
	}

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, gferr.Errorf(gferr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(path)
}
