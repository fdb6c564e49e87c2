// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package learning_test

import (
	"testing"

	"github.com/gatefix-dev/gatefix/internal/learning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogIsComplete(t *testing.T) {
	t.Parallel()

	names := learning.Names()
	assert.Len(t, names, 30)
	assert.Equal(t, len(names), len(learning.All()))

	// Spot-check a few well-known strategies.
	for _, name := range []string{"guard_none", "boundary_check", "fix_import", "fix_logic_error"} {
		def, ok := learning.Get(name)
		require.True(t, ok, "missing strategy %s", name)
		assert.Equal(t, name, def.Name)
		assert.NotEmpty(t, def.Description)
	}

	_, ok := learning.Get("no_such_strategy")
	assert.False(t, ok)
}

func TestMatchesError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		strategy  string
		errorType string
		want      bool
	}{
		{"category match", "guard_none", "AttributeError: 'NoneType' object has no attribute 'x'", true},
		{"keyword match", "fix_division_by_zero", "ZeroDivisionError: division by zero", true},
		{"keyword case-insensitive", "fix_import", "no module named 'foo'", true},
		{"no match", "fix_regex", "KeyError: 'missing'", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, ok := learning.Get(tt.strategy)
			require.True(t, ok)
			assert.Equal(t, tt.want, def.MatchesError(tt.errorType))
		})
	}
}

func TestForError_SortedByPriority(t *testing.T) {
	t.Parallel()

	matches := learning.ForError("KeyError: 'user_id'")
	require.NotEmpty(t, matches)

	// fix_key_error (1.5) outranks use_get_default (1.4).
	assert.Equal(t, "fix_key_error", matches[0].Name)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Priority, matches[i].Priority)
	}
}

func TestForError_NoMatches(t *testing.T) {
	t.Parallel()

	assert.Empty(t, learning.ForError("CompletelyUnrelatedThing"))
}

func TestDefensiveStrategiesCarryGuardType(t *testing.T) {
	t.Parallel()

	defensive := learning.Defensive()
	require.NotEmpty(t, defensive)
	for _, def := range defensive {
		assert.True(t, def.Defensive)
		assert.NotEmpty(t, def.GuardType, "defensive strategy %s has no guard type", def.Name)
	}
}
