package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/shared/util"

	"google.golang.org/genai"
)

// Gemini talks to the Gemini API through genai chats.
type Gemini struct {
	client        *genai.Client
	model         string
	timeout       time.Duration
	maxToolRounds int
	limiter       *util.Limiter
	tools         *FunctionRegistry
	sessions      *SessionStore[*genai.Content]

	mu     sync.RWMutex
	system string
}

func NewGemini(ctx context.Context, opts Options, tools *FunctionRegistry) (*Gemini, error) {
	cc := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = opts.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeToolingError, "create genai client")
	}
	slog.Debug("initializing Gemini client", "model", opts.Model)
	return &Gemini{
		client:        client,
		model:         opts.Model,
		timeout:       opts.Timeout,
		maxToolRounds: opts.MaxToolRounds,
		limiter:       util.NewLimiter(opts.RequestsPerSecond, opts.Burst),
		tools:         tools,
		sessions:      NewSessionStore[*genai.Content](),
		system:        opts.SystemPrompt,
	}, nil
}

func (g *Gemini) Provider() string { return ProviderGemini }

func (g *Gemini) NewSession() model.SessionID { return g.sessions.New() }

func (g *Gemini) SetSystemPrompt(prompt string) {
	g.mu.Lock()
	g.system = prompt
	g.mu.Unlock()
}

func (g *Gemini) Prompt(ctx context.Context, session model.SessionID, text string) (string, error) {
	chat, err := g.client.Chats.Create(ctx, g.model, g.config(), g.sessions.Turns(session))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeToolingError, "create Gemini chat")
	}

	parts := []genai.Part{*genai.NewPartFromText(text)}
	for round := 0; ; round++ {
		resp, err := g.send(ctx, chat, parts)
		if err != nil {
			return "", err
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 || g.tools.Len() == 0 {
			g.sessions.Set(session, chat.History(false))
			return resp.Text(), nil
		}
		if round >= g.maxToolRounds {
			return "", toolRoundsExhausted(ProviderGemini, round)
		}

		parts = make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			slog.Debug("model called function", "function", call.Name)
			out := g.tools.Dispatch(ctx, call.Name, call.Args)
			part := genai.NewPartFromFunctionResponse(call.Name, map[string]any{"output": out})
			part.FunctionResponse.ID = call.ID
			parts = append(parts, *part)
		}
	}
}

func (g *Gemini) send(ctx context.Context, chat *genai.Chat, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	if err := g.limiter.Wait(ctx, 1); err != nil {
		return nil, err
	}
	ctx, cancel := requestContext(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := chat.SendMessage(ctx, parts...)
	observe(ProviderGemini, start, err)
	if err != nil {
		slog.Error("Gemini API call failed", "error", err)
		return nil, errors.Wrap(err, errors.CodeToolingError, "Gemini API call failed")
	}
	return resp, nil
}

func (g *Gemini) config() *genai.GenerateContentConfig {
	g.mu.RLock()
	system := g.system
	g.mu.RUnlock()

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if funcs := g.tools.Functions(); len(funcs) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(funcs))
		for _, f := range funcs {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 f.Name(),
				Description:          f.Description(),
				ParametersJsonSchema: f.Parameters(),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}
