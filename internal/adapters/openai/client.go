/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package openai

import (
    "context"
    "errors"
    "strings"

    "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/openai/openai-go/v2/shared"
    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/config"
    "github.com/toantran292/datn-sub001/internal/risk"
)

// Client adapts the OpenAI chat completions API to risk.Reasoner.
type Client struct {
    key   string
    model string
    cli   openai.Client
    log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    model := cfg.OpenAIModel
    if strings.TrimSpace(model) == "" { model = "gpt-4o-mini" }
    cli := openai.NewClient(option.WithAPIKey(cfg.OpenAIKey), option.WithRequestTimeout(cfg.OpenAITimeout))
    return &Client{key: cfg.OpenAIKey, model: model, cli: cli, log: log}
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (*risk.Completion, error) {
    if strings.TrimSpace(c.key) == "" { return nil, errors.New("openai: missing key") }
    c.log.Debug().Str("model", c.model).Int("max_tokens", maxTokens).Msg("openai completion call")

    params := openai.ChatCompletionNewParams{
        Model: shared.ChatModel(c.model),
        Messages: []openai.ChatCompletionMessageParamUnion{
            openai.SystemMessage(systemPrompt),
            openai.UserMessage(userPrompt),
        },
        Temperature:         openai.Float(temperature),
        MaxCompletionTokens: openai.Int(int64(maxTokens)),
    }
    resp, err := c.cli.Chat.Completions.New(ctx, params)
    if err != nil { return nil, err }
    if len(resp.Choices) == 0 { return nil, errors.New("openai: no choices") }

    return &risk.Completion{
        Text:       resp.Choices[0].Message.Content,
        TokensUsed: int(resp.Usage.TotalTokens),
        Model:      resp.Model,
    }, nil
}
