// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package anthropic

import (
	"context"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/gatefix-dev/gatefix/internal/provider"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

const defaultModel = "claude-sonnet-4-5"

func init() {
	provider.Register("anthropic", func(cfg provider.Config) (provider.Generator, error) {
		return New(cfg)
	})
}

// Generator produces structured responses through the Anthropic Messages API.
type Generator struct {
	client anthropicsdk.Client
	model  string
}

var _ provider.Generator = (*Generator)(nil)

// New creates an Anthropic generator. Returns an error if the API key is
// missing.
func New(cfg provider.Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, gferr.New(gferr.CodeProviderRequestInvalid, "missing api_key",
			gferr.Field("provider", "anthropic"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Generator{
		client: anthropicsdk.NewClient(opts...),
		model:  model,
	}, nil
}

func (g *Generator) Name() string { return "anthropic" }

// Generate sends one non-streaming message and decodes the structured
// response from the returned text blocks.
func (g *Generator) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.Response, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(g.model),
		MaxTokens: maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropicsdk.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: req.System},
		}
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, gferr.Wrap(err, gferr.CodeProviderUpstreamFailure, "anthropic message request",
			gferr.Field("model", g.model))
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return provider.ParseResponse(text.String())
}

func (g *Generator) Close() error { return nil }
