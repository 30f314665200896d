package app

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// HealthService reports the state of the runtime's collaborators and of
// the most recent run.
type HealthService struct {
	mu         sync.RWMutex
	components map[string]string
	degraded   map[string]bool
}

func NewHealthService() *HealthService {
	return &HealthService{
		components: make(map[string]string),
		degraded:   make(map[string]bool),
	}
}

// Set records the state of component. A component that is not ok marks
// the whole service degraded.
func (s *HealthService) Set(component, state string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[component] = state
	s.degraded[component] = !ok
}

// Observe records the outcome of a finished run. Failed runs do not
// degrade the service.
func (s *HealthService) Observe(o Outcome) {
	state := fmt.Sprintf("success (%d fix attempts)", o.FixAttempts)
	if !o.Success {
		state = fmt.Sprintf("failed at %s (%d fix attempts)", o.Stage, o.FixAttempts)
	}
	s.Set("last_run", state, true)
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string, len(s.components)),
	}
	for name, state := range s.components {
		status.Components[name] = state
		if s.degraded[name] {
			status.Status = "degraded"
		}
	}
	return status
}
