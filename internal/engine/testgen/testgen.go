// Package testgen holds the three model-facing stages: generating a test
// file, repairing it after a failed run and improving it once it passes.
package testgen

import (
	"context"
	"log/slog"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/core/ports"
	"sorcerer/internal/engine/prompt"
	"sorcerer/internal/shared/observability"
)

const DefaultContextLines = 3

type Options struct {
	// MaxJSONRetries bounds the "answer again as JSON" turns sent after an
	// undecodable reply.
	MaxJSONRetries int
	// ContextLines is the number of source lines shown on each side of a
	// diagnostic location in fix prompts.
	ContextLines int
	// Redactor, when set, masks credentials in every prompt before it is
	// sent.
	Redactor Redactor
}

type Redactor interface {
	Redact(text string) (string, int)
}

func (o Options) withDefaults() Options {
	if o.MaxJSONRetries < 0 {
		o.MaxJSONRetries = 0
	}
	if o.ContextLines <= 0 {
		o.ContextLines = DefaultContextLines
	}
	return o
}

type service struct {
	chat  ports.ChatTransport
	opts  Options
	stage string
}

// openSession reuses the session of last, or opens a new one when last has
// none. fresh reports whether the model has not seen the context yet.
func (s service) openSession(last *model.UnitTestGenerationResult) (session model.SessionID, fresh bool) {
	if last != nil && last.Session != "" {
		return last.Session, false
	}
	return s.chat.NewSession(), true
}

// ask sends text and decodes the reply, asking the model to repeat itself
// as JSON up to MaxJSONRetries times.
func (s service) ask(ctx context.Context, session model.SessionID, text string) (model.AIResponse, error) {
	reply, err := s.chat.Prompt(ctx, session, s.redact(text))
	for attempt := 0; ; attempt++ {
		if err != nil {
			var de *errors.DomainError
			if !errors.As(err, &de) {
				err = errors.Wrap(err, errors.CodeToolingError, "model request failed")
			}
			return model.AIResponse{}, errors.AddContext(errors.AddContext(err, errors.CtxStage, s.stage), errors.CtxSession, string(session))
		}

		resp, decodeErr := prompt.DecodeResponse(reply)
		if decodeErr == nil {
			return resp, nil
		}
		if attempt >= s.opts.MaxJSONRetries {
			return model.AIResponse{}, errors.AddContext(errors.AddContext(decodeErr, errors.CtxStage, s.stage), errors.CtxAttempt, attempt)
		}

		observability.JSONRetriesTotal.Inc()
		slog.Debug("reply was not valid JSON, asking again", "stage", s.stage, "attempt", attempt+1, "error", decodeErr)
		reply, err = s.chat.Prompt(ctx, session, prompt.JSONRetry(decodeErr))
	}
}

func (s service) redact(text string) string {
	if s.opts.Redactor == nil {
		return text
	}
	out, n := s.opts.Redactor.Redact(text)
	if n > 0 {
		observability.RedactionsTotal.Add(float64(n))
		slog.Debug("masked credentials in prompt", "stage", s.stage, "count", n)
	}
	return out
}
