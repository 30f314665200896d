package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/shared/util"

	"github.com/sashabaranov/go-openai"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client        *openai.Client
	model         string
	timeout       time.Duration
	maxToolRounds int
	limiter       *util.Limiter
	tools         *FunctionRegistry
	sessions      *SessionStore[openai.ChatCompletionMessage]

	mu     sync.RWMutex
	system string
}

func NewOpenAI(opts Options, tools *FunctionRegistry) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	slog.Debug("initializing OpenAI client", "model", opts.Model, "base_url", cfg.BaseURL)
	return &OpenAI{
		client:        openai.NewClientWithConfig(cfg),
		model:         opts.Model,
		timeout:       opts.Timeout,
		maxToolRounds: opts.MaxToolRounds,
		limiter:       util.NewLimiter(opts.RequestsPerSecond, opts.Burst),
		tools:         tools,
		sessions:      NewSessionStore[openai.ChatCompletionMessage](),
		system:        opts.SystemPrompt,
	}
}

func (o *OpenAI) Provider() string { return ProviderOpenAI }

func (o *OpenAI) NewSession() model.SessionID { return o.sessions.New() }

func (o *OpenAI) SetSystemPrompt(prompt string) {
	o.mu.Lock()
	o.system = prompt
	o.mu.Unlock()
}

// Prompt sends text as the next user turn of session and returns the
// model's final answer after any tool calls. The session only records
// turns of prompts that succeed.
func (o *OpenAI) Prompt(ctx context.Context, session model.SessionID, text string) (string, error) {
	o.mu.RLock()
	system := o.system
	o.mu.RUnlock()

	history := o.sessions.Turns(session)
	history = append(history, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	for round := 0; ; round++ {
		msg, err := o.complete(ctx, system, history)
		if err != nil {
			return "", err
		}
		history = append(history, msg)

		if len(msg.ToolCalls) == 0 || o.tools.Len() == 0 {
			o.sessions.Set(session, history)
			return msg.Content, nil
		}
		if round >= o.maxToolRounds {
			return "", toolRoundsExhausted(ProviderOpenAI, round)
		}
		for _, call := range msg.ToolCalls {
			slog.Debug("model called function", "function", call.Function.Name)
			history = append(history, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    o.tools.DispatchJSON(ctx, call.Function.Name, call.Function.Arguments),
				ToolCallID: call.ID,
			})
		}
	}
}

func (o *OpenAI) complete(ctx context.Context, system string, history []openai.ChatCompletionMessage) (openai.ChatCompletionMessage, error) {
	if err := o.limiter.Wait(ctx, 1); err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	ctx, cancel := requestContext(ctx, o.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, history...)

	req := openai.ChatCompletionRequest{Model: o.model, Messages: messages, Tools: o.toolDefs()}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	observe(ProviderOpenAI, start, err)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return openai.ChatCompletionMessage{}, errors.Wrap(err, errors.CodeToolingError, "OpenAI API call failed")
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.New(errors.CodeToolingError, "OpenAI returned no choices")
	}
	slog.Debug("received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message, nil
}

func (o *OpenAI) toolDefs() []openai.Tool {
	funcs := o.tools.Functions()
	if len(funcs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(funcs))
	for _, f := range funcs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        f.Name(),
				Description: f.Description(),
				Parameters:  f.Parameters(),
			},
		})
	}
	return out
}
