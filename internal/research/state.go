package research

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusCreated      Status = "created"
	StatusDecomposing  Status = "decomposing"
	StatusResearching  Status = "researching"
	StatusRefining     Status = "refining"
	StatusSynthesizing Status = "synthesizing"
	StatusReviewing    Status = "reviewing"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// transitions lists the forward edges of the job state machine. Failed is
// reachable from every non-terminal state and is handled separately.
var transitions = map[Status][]Status{
	StatusCreated:      {StatusDecomposing},
	StatusDecomposing:  {StatusResearching},
	StatusResearching:  {StatusRefining, StatusSynthesizing},
	StatusRefining:     {StatusResearching},
	StatusSynthesizing: {StatusReviewing},
	StatusReviewing:    {StatusDone},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the job to the given state and records it in History.
func (j *Job) Transition(to Status) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	now := time.Now().UTC()
	j.History = append(j.History, Transition{From: j.Status, To: to, At: now})
	j.Status = to
	j.UpdatedAt = now
	return nil
}

// Fail moves the job to the failed state and records the cause. Calling Fail
// on a terminal job is a no-op.
func (j *Job) Fail(cause error) {
	if j.Status.IsTerminal() {
		return
	}
	_ = j.Transition(StatusFailed)
	if cause != nil {
		j.Err = cause.Error()
	}
}
