package testgen

import (
	"context"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/core/ports"
	"sorcerer/internal/engine/prompt"
)

// Fixer asks the model to repair a test file from the failures of its last
// run, continuing the conversation that produced it.
type Fixer struct {
	service
}

var _ ports.Fixer = (*Fixer)(nil)

func NewFixer(chat ports.ChatTransport, opts Options) *Fixer {
	return &Fixer{service{chat: chat, opts: opts.withDefaults(), stage: "fix"}}
}

func (f *Fixer) Run(ctx context.Context, target model.Target, fix model.FixContext) (*model.UnitTestGenerationResult, error) {
	last := fix.LastGeneration
	if last == nil {
		return nil, errors.New(errors.CodeValidationError, "fix needs a previous generation")
	}

	session, fresh := f.openSession(last)
	resolver := prompt.ContextResolver{
		ProjectRoot: fix.ProjectRootPath,
		PackageDir:  target.PackageDir,
		Lines:       f.opts.ContextLines,
	}
	runError := fix.RunError
	if fix.LastRun == nil && runError == "" {
		runError = "no test results were produced"
	}

	text, err := prompt.Fix(prompt.FixData{
		Context:     prompt.Context{Target: target, Analysis: last.Analysis, WithContext: fresh},
		Attempt:     fix.Attempt,
		RunError:    runError,
		RepeatedFix: fix.RepeatedFix,
		Issues:      resolver.Issues(fix.LastRun),
		CurrentTest: last.Response.FileContent,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "render fix prompt")
	}

	resp, err := f.ask(ctx, session, text)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxAttempt, fix.Attempt)
	}
	return &model.UnitTestGenerationResult{Analysis: last.Analysis, Response: resp, Session: session}, nil
}
