package labtests

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending         Status = "pending"
	StatusSampleCollected Status = "sample_collected"
	StatusProcessing      Status = "processing"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusSampleCollected,
	StatusProcessing,
	StatusCompleted,
	StatusCancelled,
}

var statusLabels = map[Status]string{
	StatusPending:         "Pending",
	StatusSampleCollected: "Sample Collected",
	StatusProcessing:      "Processing",
	StatusCompleted:       "Completed",
	StatusCancelled:       "Cancelled",
}

// transitions lists the statuses reachable from each state. Re-applying the
// current status is allowed separately for non-terminal states.
var transitions = map[Status][]Status{
	StatusPending:         {StatusSampleCollected, StatusCancelled},
	StatusSampleCollected: {StatusProcessing, StatusCancelled},
	StatusProcessing:      {StatusCompleted, StatusCancelled},
	StatusCompleted:       nil,
	StatusCancelled:       nil,
}

// ParseStatus validates a wire value.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// AcceptsReport reports whether a result report may be attached. Attaching
// completes the appointment from any open state; an appointment completed
// through the status endpoint still awaits its report.
func (s Status) AcceptsReport() bool {
	return s.Valid() && s != StatusCancelled
}

// Label is the human-readable status name.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// CanTransitionTo reports whether an appointment in s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return s.Valid() && !s.Terminal()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
