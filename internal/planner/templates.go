// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package planner

import (
	"fmt"

	"github.com/gatefix-dev/gatefix/internal/learning"
)

// Target is the suspected fault location a patch directive is built for.
type Target struct {
	File      string
	Symbol    string
	ErrorText string
}

// Directive is a concrete patch instruction derived from a strategy
// recommendation. It is injected into the generator prompt so the model
// produces a patch in the recommended shape.
type Directive struct {
	Strategy    string
	GuardType   string
	Instruction string
}

// TemplateFunc builds a Directive for a target.
type TemplateFunc func(Target) Directive

// templates maps every registry strategy to its directive constructor,
// derived from the strategy catalog: defensive strategies become guard
// insertions, the rest become targeted logic fixes.
var templates = buildTemplates()

func buildTemplates() map[string]TemplateFunc {
	out := make(map[string]TemplateFunc)
	for _, def := range learning.All() {
		out[def.Name] = templateFor(def)
	}
	return out
}

func templateFor(def learning.Definition) TemplateFunc {
	if def.Defensive && def.GuardType != "" {
		return func(t Target) Directive {
			return Directive{
				Strategy:  def.Name,
				GuardType: def.GuardType,
				Instruction: fmt.Sprintf("Add a %s guard in %s%s. %s.",
					def.GuardType, t.File, symbolSuffix(t), def.Description),
			}
		}
	}
	return func(t Target) Directive {
		instruction := fmt.Sprintf("Fix the fault in %s%s: %s.",
			t.File, symbolSuffix(t), def.Description)
		if t.ErrorText != "" {
			instruction += " Observed error: " + t.ErrorText
		}
		return Directive{Strategy: def.Name, Instruction: instruction}
	}
}

func symbolSuffix(t Target) string {
	if t.Symbol == "" {
		return ""
	}
	return " around " + t.Symbol
}

// TemplateFor looks up the directive constructor for a strategy.
func TemplateFor(strategy string) (TemplateFunc, bool) {
	f, ok := templates[strategy]
	return f, ok
}
