// Package llm talks to chat models. Each transport keeps per-session
// history and answers tool calls from a FunctionRegistry.
package llm

import (
	"context"
	"time"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/ports"
	"sorcerer/internal/shared/observability"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Options struct {
	Provider          string
	Model             string
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxToolRounds     int
	SystemPrompt      string
}

// Transport is a ChatTransport that knows its provider name.
type Transport interface {
	ports.ChatTransport
	Provider() string
}

// New builds the configured transport and installs it into tools.
func New(ctx context.Context, opts Options, tools *FunctionRegistry) (Transport, error) {
	if opts.APIKey == "" {
		return nil, errors.AddContext(errors.New(errors.CodeValidationError, "missing API key"), "provider", opts.Provider)
	}

	var (
		t   Transport
		err error
	)
	switch opts.Provider {
	case ProviderOpenAI, "":
		t = NewOpenAI(opts, tools)
	case ProviderGemini:
		t, err = NewGemini(ctx, opts, tools)
	default:
		return nil, errors.Newf(errors.CodeValidationError, "unknown LLM provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	tools.Install(t)
	return t, nil
}

func requestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func observe(provider string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
	observability.LLMRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

func toolRoundsExhausted(provider string, rounds int) error {
	return errors.AddContext(errors.Newf(errors.CodeExhausted, "model kept calling tools after %d rounds", rounds), "provider", provider)
}
