// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package patch_test

import (
	"testing"

	"github.com/gatefix-dev/gatefix/internal/patch"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_EmptyDiff(t *testing.T) {
	t.Parallel()

	for _, diff := range []string{"", "   ", "\n\n\t\n"} {
		err := patch.Validate(diff)
		require.Error(t, err)
		assert.Equal(t, gferr.CodePatchValidateEmpty, gferr.CodeOf(err))
		assert.Contains(t, err.Error(), "Empty diff")
	}
}

func TestValidate_HeadersOnly(t *testing.T) {
	t.Parallel()

	diff := "--- a/f.py\n+++ b/f.py\n@@ -1,1 +1,1 @@\n context only\n"
	err := patch.Validate(diff)
	require.Error(t, err)
	assert.Equal(t, gferr.CodePatchValidateNoChanges, gferr.CodeOf(err))
}

func TestValidate_NoopPatch(t *testing.T) {
	t.Parallel()

	diff := "--- a/f\n+++ b/f\n@@ -1,1 +1,1 @@\n-x\n+x\n"
	err := patch.Validate(diff)
	require.Error(t, err)
	assert.Equal(t, gferr.CodePatchValidateNoop, gferr.CodeOf(err))
	assert.Contains(t, err.Error(), "No-op")
}

func TestValidate_WhitespaceOnlyChange(t *testing.T) {
	t.Parallel()

	diff := "--- a/f.py\n+++ b/f.py\n@@ -1,1 +1,1 @@\n-  x = 1\n+x = 1  \n"
	err := patch.Validate(diff)
	require.Error(t, err)
	assert.Equal(t, gferr.CodePatchValidateWhitespace, gferr.CodeOf(err))
}

func TestValidate_LengthMismatchIsAlwaysRealChange(t *testing.T) {
	t.Parallel()

	// Pairwise the first lines only differ in whitespace, but the removal
	// list is longer than the addition list, which counts as a real change.
	diff := "--- a/f.py\n+++ b/f.py\n@@ -1,2 +1,1 @@\n-  x = 1\n-y = 2\n+x = 1\n"
	assert.NoError(t, patch.Validate(diff))
}

func TestValidate_RealChange(t *testing.T) {
	t.Parallel()

	diff := "--- a/f.py\n+++ b/f.py\n@@ -1,1 +1,1 @@\n-return x + 1\n+return x + 2\n"
	assert.NoError(t, patch.Validate(diff))
}

func TestValidate_PureAddition(t *testing.T) {
	t.Parallel()

	diff := "--- a/f.py\n+++ b/f.py\n@@ -1,1 +1,2 @@\n import os\n+import sys\n"
	assert.NoError(t, patch.Validate(diff))
}
