package model

type TestWorthiness string

const (
	WorthinessExcellent TestWorthiness = "Excellent"
	WorthinessOkay      TestWorthiness = "Okay"
	WorthinessPoor      TestWorthiness = "Poor"
)

// AnalysisResult is the crawl output after supplement injection and sizing.
type AnalysisResult struct {
	File           string
	Definitions    []Definition
	Supplements    int
	ContextLoc     int
	TotalLoc       int
	TestWorthiness TestWorthiness
}
