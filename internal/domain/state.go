package domain

import "time"

type State string

const (
	StateDraft      State = "DRAFT"
	StateValidating State = "VALIDATING"
	StateHeld       State = "HELD"
	StatePaying     State = "PAYING"
	StateConfirmed  State = "CONFIRMED"
	StateExpired    State = "EXPIRED"
	StateConflicted State = "CONFLICTED"
	StateCanceled   State = "CANCELED"
)

// A self edge persists a state the record already has, such as an extended
// hold or a lapse recorded by the sweeper.
var transitions = map[State][]State{
	StateDraft:      {StateValidating},
	StateValidating: {StateDraft, StateHeld, StateConfirmed},
	StateHeld:       {StateHeld, StatePaying, StateConfirmed, StateExpired, StateConflicted, StateCanceled},
	StatePaying:     {StatePaying, StateConfirmed, StateExpired, StateConflicted, StateCanceled},
	StateExpired:    {StateExpired},
}

func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	switch s {
	case StateConfirmed, StateExpired, StateConflicted, StateCanceled:
		return true
	}
	return false
}

// TransitionError rejects a change the reservation's current state does not
// allow.
type TransitionError struct {
	Code string
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return "reservation " + e.Code + " cannot move from " + string(e.From) + " to " + string(e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrConflict
}

// CheckTransition reports whether r may move to state to at now. Unpaid cash
// bookings are CONFIRMED but may still leave that state for a cancellation.
func (r Reservation) CheckTransition(to State, now time.Time) error {
	from := r.State(now)
	if CanTransition(from, to) {
		return nil
	}
	if r.settlesAtProperty() {
		switch to {
		case StateCanceled, StateConflicted, StateExpired:
			return nil
		}
	}
	return &TransitionError{Code: r.Code, From: from, To: to}
}

// CancelState is the state a cancellation with code c leaves behind.
func CancelState(c CancelCode) State {
	switch c {
	case CancelExpired, CancelDeparted:
		return StateExpired
	case CancelConflict:
		return StateConflicted
	default:
		return StateCanceled
	}
}
