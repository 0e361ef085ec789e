package ride

import (
	"errors"
	"testing"
)

func TestTransition_HappyPath(t *testing.T) {
	path := []Status{StatusRequested, StatusMatched, StatusDriverArrived, StatusInProgress, StatusCompleted}
	for i := 1; i < len(path); i++ {
		if err := Transition(path[i-1], path[i]); err != nil {
			t.Errorf("Transition(%s, %s) rejected: %v", path[i-1], path[i], err)
		}
	}

	// matched -> in_progress without the arrival sub-state is also legal
	if err := Transition(StatusMatched, StatusInProgress); err != nil {
		t.Errorf("Transition(matched, in_progress) rejected: %v", err)
	}
}

func TestTransition_Cancellation(t *testing.T) {
	for _, from := range []Status{StatusRequested, StatusMatched, StatusDriverArrived, StatusInProgress} {
		if err := Transition(from, StatusCancelled); err != nil {
			t.Errorf("Transition(%s, cancelled) rejected: %v", from, err)
		}
	}

	if err := Transition(StatusCompleted, StatusCancelled); err == nil {
		t.Error("Transition(completed, cancelled) accepted, want rejection")
	}
}

func TestTransition_Rejections(t *testing.T) {
	cases := []struct{ from, to Status }{
		{StatusRequested, StatusCompleted},
		{StatusRequested, StatusInProgress},
		{StatusRequested, StatusDriverArrived},
		{StatusMatched, StatusCompleted},
		{StatusCompleted, StatusRequested},
		{StatusCompleted, StatusInProgress},
		{StatusCancelled, StatusRequested},
		{StatusCancelled, StatusMatched},
		{StatusInProgress, StatusMatched},
	}

	for _, c := range cases {
		err := Transition(c.from, c.to)
		if err == nil {
			t.Errorf("Transition(%s, %s) accepted, want rejection", c.from, c.to)
			continue
		}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Transition(%s, %s) error is not ErrInvalidTransition: %v", c.from, c.to, err)
		}
	}
}

func TestTransition_UnknownStatus(t *testing.T) {
	if err := Transition("teleporting", StatusMatched); err == nil {
		t.Error("unknown current status accepted")
	}
	if err := Transition(StatusRequested, "teleporting"); err == nil {
		t.Error("unknown requested status accepted")
	}
}

func TestTerminal(t *testing.T) {
	if !Terminal(StatusCompleted) || !Terminal(StatusCancelled) {
		t.Error("completed and cancelled must be terminal")
	}
	if Terminal(StatusInProgress) || Terminal(StatusDriverArrived) {
		t.Error("non-terminal status reported terminal")
	}
}
