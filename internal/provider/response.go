// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package provider

import (
	"encoding/json"
	"strings"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// Mode discriminates the structured response union.
type Mode string

const (
	// ModePatch carries a unified diff ready for gating.
	ModePatch Mode = "patch"
	// ModeToolRequest asks for one or more read/search/test actions.
	ModeToolRequest Mode = "tool_request"
	// ModeFeatureSummary declares the task finished.
	ModeFeatureSummary Mode = "feature_summary"
)

// ToolRequest is a single requested action within a tool_request response.
type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Response is the structured model output. Exactly one mode's fields are
// meaningful: Diff/Why for patch, Requests/Why for tool_request,
// Summary/CompletionStatus for feature_summary.
type Response struct {
	Mode             Mode          `json:"mode"`
	Diff             string        `json:"diff,omitempty"`
	Why              string        `json:"why,omitempty"`
	Requests         []ToolRequest `json:"requests,omitempty"`
	Summary          string        `json:"summary,omitempty"`
	CompletionStatus string        `json:"completion_status,omitempty"`
}

// ParseResponse decodes model output into a Response. Models wrap JSON in
// markdown fences or prepend reasoning prose, so the decoder locates the
// JSON object rather than requiring clean output. A missing mode defaults
// to tool_request; an unknown mode is an error the caller degrades from
// instead of crashing the loop.
func ParseResponse(raw string) (*Response, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, gferr.New(gferr.CodeProviderResponseInvalid, "no JSON object in model output")
	}

	var resp Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, gferr.Wrap(err, gferr.CodeProviderResponseInvalid, "decoding model output")
	}

	switch resp.Mode {
	case ModePatch, ModeToolRequest, ModeFeatureSummary:
	case "":
		resp.Mode = ModeToolRequest
	default:
		return nil, gferr.New(gferr.CodeProviderResponseInvalid, "unknown response mode",
			gferr.Field("mode", string(resp.Mode)))
	}

	return &resp, nil
}

// extractJSON pulls the JSON object out of raw model text. Fenced code
// blocks are preferred; otherwise the outermost brace pair is taken.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	for _, fence := range []string{"```json", "```"} {
		if start := strings.Index(raw, fence); start >= 0 {
			body := raw[start+len(fence):]
			if end := strings.Index(body, "```"); end >= 0 {
				candidate := strings.TrimSpace(body[:end])
				if strings.HasPrefix(candidate, "{") {
					return candidate
				}
			}
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
