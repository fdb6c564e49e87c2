// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package patch

import (
	"strings"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// Validate checks that a diff contains an actual change before any
// application attempt. It returns nil for a valid diff, or a coded error
// describing why the diff is trivial.
//
// The whitespace-only check compares removals and additions pairwise only
// up to the shorter list; a length mismatch always counts as a real change.
func Validate(diff string) error {
	if strings.TrimSpace(diff) == "" {
		return gferr.New(gferr.CodePatchValidateEmpty, "Empty diff")
	}

	removals, additions := changedLines(diff)

	if len(removals) == 0 && len(additions) == 0 {
		return gferr.New(gferr.CodePatchValidateNoChanges, "No changes in diff (no + or - lines)")
	}

	if equalLines(removals, additions) {
		return gferr.New(gferr.CodePatchValidateNoop, "No-op patch: removed lines identical to added lines")
	}

	hasRealChange := len(removals) != len(additions)
	if !hasRealChange {
		for i := range removals {
			if strings.TrimSpace(removals[i]) != strings.TrimSpace(additions[i]) {
				hasRealChange = true
				break
			}
		}
	}

	if !hasRealChange && len(removals) > 0 && len(additions) > 0 {
		return gferr.New(gferr.CodePatchValidateWhitespace, "No meaningful changes (only whitespace differences)")
	}

	return nil
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
