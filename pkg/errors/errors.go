// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeStoreKeyNotFound        Code = "store.key.get.not_found"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeAgentProposalInvalid   Code = "agent.proposal.invalid_input"
	CodeAgentProposalFailure   Code = "agent.proposal.generate.failure"
	CodeAgentGateRejected      Code = "agent.gate.rejected"
	CodeAgentExecFailure       Code = "agent.exec.failure"
	CodeAgentExecTimeout       Code = "agent.exec.timeout"
	CodeAgentBudgetExceeded    Code = "agent.budget.exceeded"
	CodeAgentPhaseInvalid      Code = "agent.phase.invalid_value"
	CodeAgentLedgerSinkFailure Code = "agent.ledger.sink.failure"

	CodePatchValidateEmpty      Code = "patch.validate.empty"
	CodePatchValidateNoChanges  Code = "patch.validate.no_changes"
	CodePatchValidateNoop       Code = "patch.validate.noop"
	CodePatchValidateWhitespace Code = "patch.validate.whitespace_only"
	CodePatchApplyFailure       Code = "patch.apply.failure"
	CodePatchParseInvalid       Code = "patch.parse.invalid_format"

	CodeLearningStrategyUnknown Code = "learning.strategy.not_found"
	CodeLearningPersistFailure  Code = "learning.persist.failure"

	CodeProviderRequestInvalid  Code = "provider.request.invalid"
	CodeProviderResponseInvalid Code = "provider.response.invalid"
	CodeProviderUpstreamFailure Code = "provider.upstream.failure"
	CodeProviderNotFound        Code = "provider.registry.not_found"

	CodeEvalTaskInvalid   Code = "eval.task.invalid_input"
	CodeEvalTaskTimeout   Code = "eval.task.timeout"
	CodeEvalBatchFailure  Code = "eval.batch.failure"
	CodeEvalManifestParse Code = "eval.manifest.invalid_format"

	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldTaskID(value string) Attr {
	return Field("task_id", value)
}

func FieldRepoID(value string) Attr {
	return Field("repo_id", value)
}

func FieldStrategy(value string) Attr {
	return Field("strategy", value)
}

func FieldContextKey(value string) Attr {
	return Field("context_key", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsBudgetExceeded(err error) bool {
	return reason(CodeOf(err)) == "exceeded"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func Join(errs ...error) error {
	return oops.Code(CodeInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
