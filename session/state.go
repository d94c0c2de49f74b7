package session

import "fmt"

// State is the position of a session in its state machine.
type State int

const (
	Anonymous State = iota
	MfaPending
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case MfaPending:
		return "mfa_pending"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is the non-error result of a login.
type Outcome int

const (
	// OutcomeNone accompanies every Login error.
	OutcomeNone Outcome = iota
	// OutcomeAuthenticated means a token pair was issued.
	OutcomeAuthenticated
	// OutcomeStepUpRequired means the server asked for a second factor; call VerifyMfa.
	OutcomeStepUpRequired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeStepUpRequired:
		return "step_up_required"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}
