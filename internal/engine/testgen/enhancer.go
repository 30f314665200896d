package testgen

import (
	"context"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/core/ports"
	"sorcerer/internal/engine/prompt"
)

// Enhancer runs one improvement pass over a passing test file.
type Enhancer struct {
	service
}

var _ ports.Enhancer = (*Enhancer)(nil)

func NewEnhancer(chat ports.ChatTransport, opts Options) *Enhancer {
	return &Enhancer{service{chat: chat, opts: opts.withDefaults(), stage: "enhance"}}
}

func (e *Enhancer) Run(ctx context.Context, target model.Target, kind model.EnhancementKind, last *model.UnitTestGenerationResult) (*model.UnitTestGenerationResult, error) {
	if last == nil {
		return nil, errors.New(errors.CodeValidationError, "enhance needs a previous generation")
	}

	session, fresh := e.openSession(last)
	text, err := prompt.Enhance(prompt.EnhanceData{
		Context:     prompt.Context{Target: target, Analysis: last.Analysis, WithContext: fresh},
		Kind:        kind,
		CurrentTest: last.Response.FileContent,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "render enhance prompt")
	}

	resp, err := e.ask(ctx, session, text)
	if err != nil {
		return nil, errors.AddContext(err, "kind", string(kind))
	}
	return &model.UnitTestGenerationResult{Analysis: last.Analysis, Response: resp, Session: session}, nil
}
