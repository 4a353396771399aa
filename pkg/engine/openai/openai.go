// Package openai implements the engine's ModelCaller over the OpenAI Chat
// Completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// Options configures the OpenAI caller.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Caller wraps the OpenAI Chat Completions API.
type Caller struct {
	client *openai.Client
	opts   Options
}

// New creates a Caller using the official client, which reads OPENAI_API_KEY
// from the environment.
func New(optFns ...func(o *Options)) *Caller {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a Caller from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Caller {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Caller{client: client, opts: opts}
}

// Complete sends the prompt as a single user message and returns the first
// choice's content.
func (c *Caller) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               c.opts.Model,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxCompletionTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
