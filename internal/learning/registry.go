// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

// Package learning implements the adaptive strategy layer: a static catalog
// of repair strategies, a contextual multi-armed bandit selecting among
// them, and a quarantine lane excluding unproven or regressing strategies.
package learning

import (
	"sort"
	"strings"
)

// ErrorCategory classifies the failure classes a strategy can address.
type ErrorCategory string

const (
	TypeError      ErrorCategory = "type_error"
	ValueError     ErrorCategory = "value_error"
	IndexError     ErrorCategory = "index_error"
	KeyError       ErrorCategory = "key_error"
	AttributeError ErrorCategory = "attribute_error"
	ImportError    ErrorCategory = "import_error"
	SyntaxError    ErrorCategory = "syntax_error"
	RuntimeError   ErrorCategory = "runtime_error"
	AssertionError ErrorCategory = "assertion_error"
	ResourceError  ErrorCategory = "resource_error"
	AsyncError     ErrorCategory = "async_error"
	LogicError     ErrorCategory = "logic_error"
)

// Definition describes one repair strategy and when it applies.
type Definition struct {
	Name             string
	Description      string
	ApplicableErrors []ErrorCategory
	// Priority orders candidates for the same error; higher is tried first.
	Priority float64
	// GuardType names the guard pattern for defensive strategies.
	GuardType string
	// Defensive marks strategies that add guards/checks rather than
	// changing existing logic.
	Defensive bool
	Keywords  []string
}

// MatchesError reports whether the strategy applies to an error type,
// matching either a category (underscores removed, substring of the
// lowercased error) or any keyword.
func (d Definition) MatchesError(errorType string) bool {
	errLower := strings.ToLower(errorType)
	for _, cat := range d.ApplicableErrors {
		if strings.Contains(errLower, strings.ReplaceAll(string(cat), "_", "")) {
			return true
		}
	}
	for _, kw := range d.Keywords {
		if strings.Contains(errLower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// catalog is the full strategy catalog, grouped by concern.
var catalog = []Definition{
	// Null/None handling.
	{
		Name:             "guard_none",
		Description:      "Add null/None check before attribute access",
		ApplicableErrors: []ErrorCategory{AttributeError, TypeError},
		Priority:         1.5,
		GuardType:        "none_check",
		Defensive:        true,
		Keywords:         []string{"NoneType", "has no attribute", "'None'"},
	},
	{
		Name:             "none_coalesce",
		Description:      "Use default value when None encountered",
		ApplicableErrors: []ErrorCategory{AttributeError, TypeError},
		Priority:         1.3,
		GuardType:        "none_check",
		Defensive:        true,
		Keywords:         []string{"NoneType", "None"},
	},
	// Boundary/index handling.
	{
		Name:             "boundary_check",
		Description:      "Add bounds validation before index access",
		ApplicableErrors: []ErrorCategory{IndexError},
		Priority:         1.5,
		GuardType:        "boundary_check",
		Defensive:        true,
		Keywords:         []string{"IndexError", "out of range", "index"},
	},
	{
		Name:             "fix_off_by_one",
		Description:      "Fix off-by-one error in loop or index",
		ApplicableErrors: []ErrorCategory{IndexError, AssertionError},
		Priority:         1.4,
		Keywords:         []string{"off by one", "fence post", "boundary"},
	},
	{
		Name:             "empty_case",
		Description:      "Handle empty collection case explicitly",
		ApplicableErrors: []ErrorCategory{IndexError, ValueError},
		Priority:         1.3,
		GuardType:        "empty_check",
		Defensive:        true,
		Keywords:         []string{"empty", "no elements", "length 0"},
	},
	// Type handling.
	{
		Name:             "type_check",
		Description:      "Add type validation before operation",
		ApplicableErrors: []ErrorCategory{TypeError},
		Priority:         1.4,
		GuardType:        "type_check",
		Defensive:        true,
		Keywords:         []string{"TypeError", "unsupported operand", "expected"},
	},
	{
		Name:             "fix_type_coercion",
		Description:      "Add explicit type conversion",
		ApplicableErrors: []ErrorCategory{TypeError},
		Priority:         1.2,
		Keywords:         []string{"cannot convert", "invalid literal", "type"},
	},
	{
		Name:             "fix_typing",
		Description:      "Fix type annotation or generic usage",
		ApplicableErrors: []ErrorCategory{TypeError, RuntimeError},
		Priority:         1.0,
		Keywords:         []string{"annotation", "generic", "typing"},
	},
	// Dictionary/key handling.
	{
		Name:             "fix_key_error",
		Description:      "Handle missing dictionary key",
		ApplicableErrors: []ErrorCategory{KeyError},
		Priority:         1.5,
		GuardType:        "key_check",
		Defensive:        true,
		Keywords:         []string{"KeyError", "key", "not found"},
	},
	{
		Name:             "use_get_default",
		Description:      "Use lookup with default instead of direct access",
		ApplicableErrors: []ErrorCategory{KeyError},
		Priority:         1.4,
		Keywords:         []string{"KeyError", "dictionary"},
	},
	// Arithmetic handling.
	{
		Name:             "fix_division_by_zero",
		Description:      "Guard against division by zero",
		ApplicableErrors: []ErrorCategory{RuntimeError, ValueError},
		Priority:         1.5,
		GuardType:        "zero_check",
		Defensive:        true,
		Keywords:         []string{"ZeroDivisionError", "division by zero", "divide"},
	},
	{
		Name:             "fix_overflow",
		Description:      "Handle numeric overflow",
		ApplicableErrors: []ErrorCategory{RuntimeError, ValueError},
		Priority:         1.1,
		Keywords:         []string{"OverflowError", "too large", "overflow"},
	},
	{
		Name:             "fix_precision",
		Description:      "Fix floating point precision issues",
		ApplicableErrors: []ErrorCategory{AssertionError, ValueError},
		Priority:         1.0,
		Keywords:         []string{"precision", "float", "decimal", "rounding"},
	},
	// String handling.
	{
		Name:             "fix_encoding",
		Description:      "Fix string encoding/decoding issues",
		ApplicableErrors: []ErrorCategory{ValueError, RuntimeError},
		Priority:         1.2,
		Keywords:         []string{"UnicodeDecodeError", "UnicodeEncodeError", "codec", "encoding"},
	},
	{
		Name:             "fix_format_string",
		Description:      "Fix string formatting issues",
		ApplicableErrors: []ErrorCategory{ValueError, TypeError},
		Priority:         1.1,
		Keywords:         []string{"format", "f-string", "%", "str.format"},
	},
	{
		Name:             "fix_regex",
		Description:      "Fix regular expression pattern",
		ApplicableErrors: []ErrorCategory{ValueError, RuntimeError},
		Priority:         1.0,
		Keywords:         []string{"regex", "re.", "pattern", "match"},
	},
	// Import/module handling.
	{
		Name:             "fix_import",
		Description:      "Fix import statement or path",
		ApplicableErrors: []ErrorCategory{ImportError},
		Priority:         1.5,
		Keywords:         []string{"ImportError", "ModuleNotFoundError", "No module named"},
	},
	{
		Name:             "fix_circular_import",
		Description:      "Break circular import dependency",
		ApplicableErrors: []ErrorCategory{ImportError},
		Priority:         1.3,
		Keywords:         []string{"circular", "import", "partially initialized"},
	},
	// Async/concurrency handling.
	{
		Name:             "fix_await_missing",
		Description:      "Add missing await keyword",
		ApplicableErrors: []ErrorCategory{AsyncError, RuntimeError},
		Priority:         1.4,
		Keywords:         []string{"coroutine", "await", "async", "was never awaited"},
	},
	{
		Name:             "fix_deadlock",
		Description:      "Fix potential deadlock in locking",
		ApplicableErrors: []ErrorCategory{AsyncError, RuntimeError},
		Priority:         1.2,
		Keywords:         []string{"deadlock", "lock", "timeout", "blocked"},
	},
	{
		Name:             "fix_race_condition",
		Description:      "Add synchronization to prevent race",
		ApplicableErrors: []ErrorCategory{AsyncError, RuntimeError},
		Priority:         1.1,
		Keywords:         []string{"race", "concurrent", "thread", "atomic"},
	},
	// Resource handling.
	{
		Name:             "fix_file_handle",
		Description:      "Ensure file handle is properly closed",
		ApplicableErrors: []ErrorCategory{ResourceError, RuntimeError},
		Priority:         1.3,
		Keywords:         []string{"file", "handle", "closed", "ResourceWarning"},
	},
	{
		Name:             "fix_connection_leak",
		Description:      "Fix connection/resource leak",
		ApplicableErrors: []ErrorCategory{ResourceError},
		Priority:         1.2,
		Keywords:         []string{"connection", "leak", "pool", "exhausted"},
	},
	{
		Name:             "fix_memory",
		Description:      "Fix memory-related issue",
		ApplicableErrors: []ErrorCategory{ResourceError, RuntimeError},
		Priority:         1.0,
		Keywords:         []string{"MemoryError", "memory", "allocation"},
	},
	// Logic/control flow.
	{
		Name:             "normalize_input",
		Description:      "Normalize input before processing",
		ApplicableErrors: []ErrorCategory{ValueError, LogicError},
		Priority:         1.2,
		Keywords:         []string{"normalize", "sanitize", "validate input"},
	},
	{
		Name:             "fallback_default",
		Description:      "Add fallback/default value for edge case",
		ApplicableErrors: []ErrorCategory{LogicError, ValueError},
		Priority:         1.1,
		Keywords:         []string{"default", "fallback", "edge case"},
	},
	{
		Name:             "return_shape_fix",
		Description:      "Fix return value shape or structure",
		ApplicableErrors: []ErrorCategory{AssertionError, TypeError},
		Priority:         1.1,
		Keywords:         []string{"return", "shape", "structure", "expected"},
	},
	{
		Name:             "fix_logic_error",
		Description:      "Generic logic fix for test failure",
		ApplicableErrors: []ErrorCategory{LogicError, AssertionError},
		// Lower priority, generic fallback.
		Priority: 0.8,
		Keywords: []string{"AssertionError", "assert", "expected", "actual"},
	},
	// Iteration handling.
	{
		Name:             "fix_iteration",
		Description:      "Fix iteration-related issue",
		ApplicableErrors: []ErrorCategory{RuntimeError, TypeError},
		Priority:         1.2,
		Keywords:         []string{"StopIteration", "iterator", "iterable", "for loop"},
	},
	{
		Name:             "fix_generator",
		Description:      "Fix generator/yield issue",
		ApplicableErrors: []ErrorCategory{RuntimeError},
		Priority:         1.0,
		Keywords:         []string{"generator", "yield", "next", "exhausted"},
	},
}

var catalogByName = func() map[string]Definition {
	byName := make(map[string]Definition, len(catalog))
	for _, def := range catalog {
		byName[def.Name] = def
	}
	return byName
}()

// All returns every strategy in catalog order.
func All() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Names returns every strategy name in catalog order. This is the default
// arm set for the bandit.
func Names() []string {
	names := make([]string, len(catalog))
	for i, def := range catalog {
		names[i] = def.Name
	}
	return names
}

// Get returns the definition for a strategy name.
func Get(name string) (Definition, bool) {
	def, ok := catalogByName[name]
	return def, ok
}

// ForError returns the strategies applicable to an error type, sorted by
// descending priority. Ties keep catalog order.
func ForError(errorType string) []Definition {
	var matches []Definition
	for _, def := range catalog {
		if def.MatchesError(errorType) {
			matches = append(matches, def)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Priority > matches[j].Priority
	})
	return matches
}

// Defensive returns the guard-adding strategies in catalog order.
func Defensive() []Definition {
	var out []Definition
	for _, def := range catalog {
		if def.Defensive {
			out = append(out, def)
		}
	}
	return out
}
