package pipeline

import (
	"sync"
	"time"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// reported are the states a summary counts.
var reported = map[lead.State]struct{}{
	lead.StateRejected:   {},
	lead.StateDuplicate:  {},
	lead.StateUnresolved: {},
	lead.StateSkipped:    {},
	lead.StateHeld:       {},
	lead.StateSent:       {},
	lead.StateFailed:     {},
	lead.StateDrafted:    {},
	lead.StateMalformed:  {},
}

// Summary is what a run reports when it ends.
type Summary struct {
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Fetched    int                `json:"fetched"`
	Counts     map[lead.State]int `json:"counts"`
	Errors     []string           `json:"errors,omitempty"`
	Aborted    bool               `json:"aborted,omitempty"`

	mu        sync.Mutex
	maxErrors int
}

func newSummary(runID string, started time.Time, maxErrors int) *Summary {
	return &Summary{
		RunID:     runID,
		StartedAt: started,
		Counts:    make(map[lead.State]int),
		maxErrors: maxErrors,
	}
}

// Count returns how many items reached the state during the run.
func (s *Summary) Count(state lead.State) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Counts[state]
}

func (s *Summary) count(state lead.State) {
	if _, ok := reported[state]; !ok {
		return
	}
	s.mu.Lock()
	s.Counts[state]++
	s.mu.Unlock()
}

// addError keeps the first maxErrors errors.
func (s *Summary) addError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Errors) < s.maxErrors {
		s.Errors = append(s.Errors, err.Error())
	}
}
