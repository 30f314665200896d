package testgen

import (
	"context"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/core/ports"
	"sorcerer/internal/engine/prompt"
)

// Generator writes the first version of a test file in a new session.
type Generator struct {
	service
}

var _ ports.Generator = (*Generator)(nil)

func NewGenerator(chat ports.ChatTransport, opts Options) *Generator {
	return &Generator{service{chat: chat, opts: opts.withDefaults(), stage: "generate"}}
}

func (g *Generator) Run(ctx context.Context, target model.Target, analysis model.AnalysisResult) (*model.UnitTestGenerationResult, error) {
	text, err := prompt.Generate(target, analysis)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "render generate prompt")
	}

	session := g.chat.NewSession()
	resp, err := g.ask(ctx, session, text)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, target.SourcePath)
	}
	return &model.UnitTestGenerationResult{Analysis: analysis, Response: resp, Session: session}, nil
}
