package ports

import (
	"context"

	"sorcerer/internal/core/model"
	"sorcerer/internal/data/history"
)

// DefinitionFinder discovers the type context of a source file.
type DefinitionFinder interface {
	FindDefinitions(ctx context.Context, filePath string, maxDepth int) ([]*model.DefinitionResult, error)
	FindSingleClassDefinition(ctx context.Context, filePath, className string) (*model.DefinitionResult, error)
}

// ProjectLocator finds the package a source file belongs to.
type ProjectLocator interface {
	LocateProject(ctx context.Context, filePath string) (model.Project, error)
}

// DefinitionAnalyzer turns crawl results into the context passed to the model.
type DefinitionAnalyzer interface {
	Analyze(ctx context.Context, results []*model.DefinitionResult, uutFilePath string) (model.AnalysisResult, error)
}

// TestRunner compiles and runs tests. A nil error from RunTests means the
// run happened; failures are reported in the result.
type TestRunner interface {
	Name() string
	Prepare(ctx context.Context, target string) error
	RunTests(ctx context.Context, projectPath, filter string) (*model.TestRunResult, error)
	RunFailures(ctx context.Context, projectPath string, previous *model.TestRunResult) (*model.TestRunResult, error)
}

// ChatTransport is a multi-turn conversation with a language model.
type ChatTransport interface {
	NewSession() model.SessionID
	SetSystemPrompt(prompt string)
	Prompt(ctx context.Context, session model.SessionID, text string) (string, error)
}

type Generator interface {
	Run(ctx context.Context, target model.Target, analysis model.AnalysisResult) (*model.UnitTestGenerationResult, error)
}

type Fixer interface {
	Run(ctx context.Context, target model.Target, fix model.FixContext) (*model.UnitTestGenerationResult, error)
}

type Enhancer interface {
	Run(ctx context.Context, target model.Target, kind model.EnhancementKind, last *model.UnitTestGenerationResult) (*model.UnitTestGenerationResult, error)
}

// ProgressListener receives free-text progress and one terminal signal.
type ProgressListener interface {
	Progress(stage, message string)
	Done(success bool)
}

// RunRecorder persists finished orchestrator runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run history.Run) (int64, error)
}
