// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package openai

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/gatefix-dev/gatefix/internal/provider"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

const defaultModel = "gpt-4.1"

func init() {
	provider.Register("openai", func(cfg provider.Config) (provider.Generator, error) {
		return New(cfg)
	})
}

// Generator produces structured responses through the OpenAI Chat
// Completions API.
type Generator struct {
	client openaisdk.Client
	model  string
}

var _ provider.Generator = (*Generator)(nil)

// New creates an OpenAI generator. Returns an error if the API key is
// missing.
func New(cfg provider.Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, gferr.New(gferr.CodeProviderRequestInvalid, "missing api_key",
			gferr.Field("provider", "openai"))
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
		client: openaisdk.NewClient(opts...),
		model:  model,
	}, nil
}

func (g *Generator) Name() string { return "openai" }

// Generate sends one non-streaming chat completion and decodes the
// structured response from the first choice.
func (g *Generator) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.Response, error) {
	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.System))
	}
	msgs = append(msgs, openaisdk.UserMessage(req.Prompt))

	params := openaisdk.ChatCompletionNewParams{
		Model:       shared.ChatModel(g.model),
		Messages:    msgs,
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, gferr.Wrap(err, gferr.CodeProviderUpstreamFailure, "openai completion request",
			gferr.Field("model", g.model))
	}
	if len(completion.Choices) == 0 {
		return nil, gferr.New(gferr.CodeProviderResponseInvalid, "completion returned no choices",
			gferr.Field("model", g.model))
	}

	return provider.ParseResponse(completion.Choices[0].Message.Content)
}

func (g *Generator) Close() error { return nil }
