// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package errors_test

import (
	stderrors "errors"
	"testing"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := gferr.New(
		gferr.CodeAgentGateRejected,
		"edit touches forbidden directory",
		gferr.FieldTaskID("task-123"),
		gferr.Field("path", "vendor/lib.py"),
	)

	require.Error(t, err)
	assert.Equal(t, gferr.CodeAgentGateRejected, gferr.CodeOf(err))
	assert.True(t, gferr.HasCode(err, gferr.CodeAgentGateRejected))

	fields := gferr.FieldsOf(err)
	assert.Equal(t, "task-123", fields["task_id"])
	assert.Equal(t, "vendor/lib.py", fields["path"])
}

func TestNewWithNoFields(t *testing.T) {
	err := gferr.New(gferr.CodeStoreDatabaseFailure, "connection lost")
	require.Error(t, err)
	assert.Equal(t, gferr.CodeStoreDatabaseFailure, gferr.CodeOf(err))
	assert.Contains(t, err.Error(), "connection lost")
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := gferr.Errorf(gferr.CodePatchApplyFailure, "applying patch to %s: %d hunks failed", "core.py", 2)
	require.Error(t, err)
	assert.Equal(t, gferr.CodePatchApplyFailure, gferr.CodeOf(err))
	assert.Contains(t, err.Error(), "applying patch to core.py: 2 hunks failed")
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := gferr.Errorf(gferr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, gferr.CodeStoreDatabaseFailure, gferr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := gferr.Wrap(
		root,
		gferr.CodeStoreKeyNotFound,
		"loading bandit stats",
		gferr.FieldContextKey("fp-42"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, gferr.CodeStoreKeyNotFound, gferr.CodeOf(err))
	assert.True(t, gferr.IsNotFound(err))
	assert.Equal(t, "fp-42", gferr.FieldsOf(err)["context_key"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, gferr.Wrap(nil, gferr.CodeInternalFailure, "ignored"))
}

func TestWrapfNilReturnsNil(t *testing.T) {
	assert.NoError(t, gferr.Wrapf(nil, gferr.CodeInternalFailure, "ignored %s", "arg"))
}

func TestWrapfFormatsAndPreservesChain(t *testing.T) {
	root := stderrors.New("timeout")
	err := gferr.Wrapf(root, gferr.CodeProviderUpstreamFailure, "calling %s model %s", "anthropic", "claude")

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, gferr.CodeProviderUpstreamFailure, gferr.CodeOf(err))
	assert.Contains(t, err.Error(), "calling anthropic model claude")
}

// ---------------------------------------------------------------------------
// With
// ---------------------------------------------------------------------------

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := gferr.New(gferr.CodeLearningStrategyUnknown, "unknown strategy")
	withCtx := gferr.With(base, gferr.FieldStrategy("guard_none"))

	require.Error(t, withCtx)
	assert.Equal(t, gferr.CodeLearningStrategyUnknown, gferr.CodeOf(withCtx))
	assert.Equal(t, "guard_none", gferr.FieldsOf(withCtx)["strategy"])
}

func TestWithNilReturnsNil(t *testing.T) {
	assert.NoError(t, gferr.With(nil, gferr.FieldStrategy("x")))
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	plain := stderrors.New("something broke")
	enriched := gferr.With(plain, gferr.FieldRepoID("r-1"))

	require.Error(t, enriched)
	assert.Equal(t, gferr.CodeInternalFailure, gferr.CodeOf(enriched))
	assert.Equal(t, "r-1", gferr.FieldsOf(enriched)["repo_id"])
}

// ---------------------------------------------------------------------------
// HasCode / CodeOf
// ---------------------------------------------------------------------------

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code gferr.Code
		want bool
	}{
		{
			name: "matching code",
			err:  gferr.New(gferr.CodeStoreKeyNotFound, "gone"),
			code: gferr.CodeStoreKeyNotFound,
			want: true,
		},
		{
			name: "non-matching code",
			err:  gferr.New(gferr.CodeStoreKeyNotFound, "gone"),
			code: gferr.CodeStoreDatabaseFailure,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			code: gferr.CodeStoreKeyNotFound,
			want: false,
		},
		{
			name: "plain stdlib error has no code",
			err:  stderrors.New("plain"),
			code: gferr.CodeInternalFailure,
			want: false,
		},
		{
			name: "wrapped coded error returns innermost code",
			err: gferr.Wrap(
				gferr.New(gferr.CodeStoreDatabaseFailure, "inner"),
				gferr.CodeInternalFailure, "outer",
			),
			code: gferr.CodeStoreDatabaseFailure,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gferr.HasCode(tt.err, tt.code))
		})
	}
}

func TestCodeOfNil(t *testing.T) {
	assert.Equal(t, gferr.Code(""), gferr.CodeOf(nil))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, gferr.Code(""), gferr.CodeOf(stderrors.New("plain")))
}

// ---------------------------------------------------------------------------
// Reason-suffix predicates
// ---------------------------------------------------------------------------

func TestReasonPredicates(t *testing.T) {
	assert.True(t, gferr.IsInvalidInput(gferr.New(gferr.CodeAgentProposalInvalid, "bad payload")))
	assert.True(t, gferr.IsInvalidInput(gferr.New(gferr.CodeEvalManifestParse, "bad yaml")))
	assert.True(t, gferr.IsBudgetExceeded(gferr.New(gferr.CodeAgentBudgetExceeded, "out of rounds")))
	assert.True(t, gferr.IsTimeout(gferr.New(gferr.CodeAgentExecTimeout, "test run timed out")))
	assert.True(t, gferr.IsUpstreamFailure(gferr.New(gferr.CodeProviderUpstreamFailure, "503")))
	assert.False(t, gferr.IsTimeout(gferr.New(gferr.CodeAgentExecFailure, "boom")))
}

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := gferr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, gferr.CodeInternalFailure, gferr.CodeOf(joined))
}
