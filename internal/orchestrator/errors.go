package orchestrator

import (
	"fmt"

	"github.com/aristath/riskflow/internal/domain"
)

// StepError is the fatal failure of one step. It carries the originating step and
// capability and wraps the agent's error unchanged, so errors.As and domain.KindOf
// reach the typed error.
type StepError struct {
	RunID      string
	PatternID  string
	StepID     string
	Capability string
	Kind       domain.ErrorKind
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pattern %s step %s (%s) failed with %s error: %v",
		e.PatternID, e.StepID, e.Capability, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
