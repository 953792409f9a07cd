package orchestrator

import (
	"fmt"
	"sync"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// ProgressEvent is emitted while a job runs.
type ProgressEvent struct {
	JobID    string
	Stage    research.Status
	Subtopic string // empty for stage-level events
	Round    int
	Status   ProgressStatus
	Message  string
}

// ProgressStatus is the state of a stage or subtopic task.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// ProgressReporter emits progress events through a buffered channel.
type ProgressReporter struct {
	mu     sync.Mutex
	ch     chan ProgressEvent
	closed bool
}

// NewProgressReporter creates a ProgressReporter with a buffered channel of size 64.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{
		ch: make(chan ProgressEvent, 64),
	}
}

// Emit sends a progress event in a non-blocking fashion.
// If the channel is full or closed, the event is dropped.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.closed {
		return
	}
	select {
	case pr.ch <- event:
	default:
	}
}

// Subscribe returns a read-only channel for consuming progress events.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Close closes the progress event channel. It is safe to call more than once.
func (pr *ProgressReporter) Close() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.closed {
		return
	}
	pr.closed = true
	close(pr.ch)
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	name := event.Subtopic
	if name == "" {
		name = string(event.Stage)
	}
	switch event.Status {
	case ProgressPending:
		return fmt.Sprintf("  ○ %s (pending)", name)
	case ProgressWorking:
		return fmt.Sprintf("  ● %s...", name)
	case ProgressComplete:
		if event.Message != "" {
			return fmt.Sprintf("  ✓ %s complete (%s)", name, event.Message)
		}
		return fmt.Sprintf("  ✓ %s complete", name)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", name, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", name)
	}
}

// FormatStageHeader formats a stage header for display.
// Returns: "[{topic}] {stage}" or "[{topic}] {stage} (round {N})".
func FormatStageHeader(topic string, stage research.Status, round int) string {
	if round > 0 {
		return fmt.Sprintf("[%s] %s (round %d)", topic, stage, round)
	}
	return fmt.Sprintf("[%s] %s", topic, stage)
}
