package history

import "time"

const SchemaVersion = 2

// Run is one finished orchestrator invocation.
type Run struct {
	ID             int64
	Target         string
	StartedAt      time.Time
	FinishedAt     time.Time
	Success        bool
	Stage          string
	FixAttempts    int
	TestFile       string
	Passed         int
	Failed         int
	BuildErrors    int
	TestWorthiness string
	TotalLoc       int
	Provider       string
}

func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stats summarizes a series of runs.
type Stats struct {
	Runs           int
	Successes      int
	SuccessRate    float64
	AvgFixAttempts float64
	AvgDuration    time.Duration
	LastSuccess    time.Time
}

func Summarize(runs []Run) Stats {
	var s Stats
	if len(runs) == 0 {
		return s
	}
	var fixes int
	var total time.Duration
	for _, r := range runs {
		s.Runs++
		fixes += r.FixAttempts
		total += r.Duration()
		if r.Success {
			s.Successes++
			if r.FinishedAt.After(s.LastSuccess) {
				s.LastSuccess = r.FinishedAt
			}
		}
	}
	s.SuccessRate = float64(s.Successes) / float64(s.Runs) * 100
	s.AvgFixAttempts = float64(fixes) / float64(s.Runs)
	s.AvgDuration = total / time.Duration(s.Runs)
	return s
}
