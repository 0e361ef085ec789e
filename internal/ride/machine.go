// Package ride validates status transitions for rides and deliveries.
package ride

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type Status string

const (
	StatusRequested     Status = "requested"
	StatusMatched       Status = "matched"
	StatusDriverArrived Status = "driver_arrived"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// transitions lists the statuses reachable in one step from each status.
// completed and cancelled are terminal and deliberately absent.
var transitions = map[Status][]Status{
	StatusRequested:     {StatusMatched, StatusCancelled},
	StatusMatched:       {StatusDriverArrived, StatusInProgress, StatusCancelled},
	StatusDriverArrived: {StatusInProgress, StatusCancelled},
	StatusInProgress:    {StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status.
func Valid(s Status) bool {
	switch s {
	case StatusRequested, StatusMatched, StatusDriverArrived, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether a status accepts no further transitions.
func Terminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Transition checks that moving from cur to next is allowed. A rejected
// transition is reported, never coerced to the nearest legal one.
func Transition(cur, next Status) error {
	if !Valid(cur) {
		return fmt.Errorf("%w: unknown current status %q", ErrInvalidTransition, cur)
	}
	if !Valid(next) {
		return fmt.Errorf("%w: unknown requested status %q", ErrInvalidTransition, next)
	}
	for _, s := range transitions[cur] {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
}
