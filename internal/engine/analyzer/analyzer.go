package analyzer

import (
	"context"
	"log/slog"
	"os"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
)

// Test worthiness thresholds, in total lines of context shown to the model.
const (
	ExcellentMaxLoc = 500
	OkayMaxLoc      = 1000
)

// Rule attaches the fake Type next to every definition named Symbol.
type Rule struct {
	Symbol string
	Type   string
	Reason string
}

// ClassFinder looks a single type up by name.
type ClassFinder interface {
	FindSingleClassDefinition(ctx context.Context, filePath, className string) (*model.DefinitionResult, error)
}

type Analyzer struct {
	finder ClassFinder
	rules  map[string]Rule
}

func New(finder ClassFinder, rules []Rule) *Analyzer {
	a := &Analyzer{finder: finder, rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		a.rules[r.Symbol] = r
	}
	return a
}

// Analyze merges crawl results, injects supplements and sizes the context
// for the file under test.
func (a *Analyzer) Analyze(ctx context.Context, results []*model.DefinitionResult, uutFilePath string) (model.AnalysisResult, error) {
	source, err := os.ReadFile(uutFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return model.AnalysisResult{}, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "file under test not found"), errors.CtxPath, uutFilePath)
		}
		return model.AnalysisResult{}, errors.Wrap(err, errors.CodeToolingError, "read file under test")
	}

	out := model.AnalysisResult{File: uutFilePath}
	seen := map[string]bool{}
	for _, result := range results {
		if result == nil {
			continue
		}
		for _, def := range result.Definitions() {
			if seen[def.FullName()] {
				continue
			}
			seen[def.FullName()] = true

			if rule, ok := a.rules[def.Symbol]; ok {
				if supplement := a.lookup(ctx, uutFilePath, rule); supplement != nil {
					def.Supplement = supplement
					out.Supplements++
				}
			}
			if !def.InTarget {
				out.ContextLoc += def.LineCount()
			}
			out.Definitions = append(out.Definitions, def)
		}
	}

	out.TotalLoc = out.ContextLoc + model.CountLines(string(source))
	out.TestWorthiness = Classify(out.TotalLoc)
	return out, nil
}

func (a *Analyzer) lookup(ctx context.Context, uutFilePath string, rule Rule) *model.Supplement {
	if a.finder == nil || rule.Type == "" {
		return nil
	}
	result, err := a.finder.FindSingleClassDefinition(ctx, uutFilePath, rule.Type)
	if err != nil || result.Len() == 0 {
		slog.Debug("supplement not available", "symbol", rule.Symbol, "type", rule.Type, "error", err)
		return nil
	}
	return &model.Supplement{Definition: result.Definitions()[0], Reason: rule.Reason}
}

func Classify(totalLoc int) model.TestWorthiness {
	switch {
	case totalLoc <= ExcellentMaxLoc:
		return model.WorthinessExcellent
	case totalLoc <= OkayMaxLoc:
		return model.WorthinessOkay
	default:
		return model.WorthinessPoor
	}
}
