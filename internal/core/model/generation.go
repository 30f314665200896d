package model

// SessionID is an opaque handle to accumulated conversation turns.
type SessionID string

type TestFix struct {
	TestName string `json:"test_name"`
	Fix      string `json:"fix"`
}

// AIResponse is the JSON object the model answers with. Only file_content
// is required; the remaining fields appear depending on the stage.
type AIResponse struct {
	FileName     string    `json:"file_name,omitempty"`
	FileContent  string    `json:"file_content"`
	Notes        string    `json:"notes,omitempty"`
	GeneralFix   *string   `json:"general_fix,omitempty"`
	TestFixes    []TestFix `json:"test_fixes,omitempty"`
	Improvements []string  `json:"improvements,omitempty"`
}

type UnitTestGenerationResult struct {
	Analysis AnalysisResult
	Response AIResponse
	Session  SessionID
}

// FixContext is the input of one repair attempt. LastRun is nil when the
// previous run could not be executed at all; RunError then says why.
type FixContext struct {
	Attempt         int
	LastRun         *TestRunResult
	RunError        string
	LastGeneration  *UnitTestGenerationResult
	ProjectRootPath string
	RepeatedFix     bool
}

type EnhancementKind string

const (
	EnhanceGeneral       EnhancementKind = "general"
	EnhanceCoverage      EnhancementKind = "coverage"
	EnhanceRefactor      EnhancementKind = "refactor"
	EnhanceDocumentation EnhancementKind = "documentation"
	EnhanceBugSquash     EnhancementKind = "bugsquash"
	EnhanceCleanup       EnhancementKind = "cleanup"
	EnhanceVerify        EnhancementKind = "verify"
)

var EnhancementKinds = []EnhancementKind{
	EnhanceGeneral,
	EnhanceCoverage,
	EnhanceRefactor,
	EnhanceDocumentation,
	EnhanceBugSquash,
	EnhanceCleanup,
	EnhanceVerify,
}

func ParseEnhancementKind(s string) (EnhancementKind, bool) {
	for _, k := range EnhancementKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}
