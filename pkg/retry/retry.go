package retry

import (
	"fmt"
	"net/http"

	"collectordl/pkg/models"
)

// DefaultRetries is the retry budget of a fresh target: one initial
// attempt plus three retries, the last of them on the alternate mirror.
const DefaultRetries = 3

// Status is the lifecycle position of a target
type Status int

const (
	StatusPending Status = iota
	StatusAttempting
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAttempting:
		return "attempting"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further attempts will be made
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Outcome classifies a single attempt
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "failure"
	}
}

// Action tells the caller what to do after an attempt
type Action int

const (
	// ActionSucceed: the target is done
	ActionSucceed Action = iota
	// ActionRequeue: resubmit the same state once the throttle allows
	ActionRequeue
	// ActionRetry: resubmit the next state
	ActionRetry
	// ActionFail: the budget is spent, record the target as failed
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionSucceed:
		return "succeed"
	case ActionRequeue:
		return "requeue"
	case ActionRetry:
		return "retry"
	default:
		return "fail"
	}
}

// AttemptState is the retry position of one target. It is a value: every
// transition returns a new state and leaves the receiver untouched.
type AttemptState struct {
	Target             models.Target
	Status             Status
	RetriesRemaining   int
	UseAlternateSource bool
	// Attempt counts non-rate-limited attempts, starting at 1
	Attempt int
}

// Initial returns the starting state with the default budget
func Initial(target models.Target) AttemptState {
	return NewState(target, DefaultRetries)
}

// NewState returns a pending state with the given retry budget
func NewState(target models.Target, retries int) AttemptState {
	if retries < 0 {
		retries = 0
	}
	return AttemptState{
		Target:             target,
		Status:             StatusPending,
		RetriesRemaining:   retries,
		UseAlternateSource: retries == 0,
		Attempt:            1,
	}
}

// Begin moves a pending state to attempting
func (s AttemptState) Begin() AttemptState {
	if s.Status == StatusPending {
		s.Status = StatusAttempting
	}
	return s
}

// Decision is the result of applying an outcome to a state
type Decision struct {
	Action Action
	Next   AttemptState
}

// Next applies the outcome of the current attempt.
//
// A rate-limited attempt keeps its budget and is requeued unchanged. A failed
// attempt spends one retry; the retry that leaves the budget at zero goes to
// the alternate mirror. A failure with no budget left is terminal.
func (s AttemptState) Next(outcome Outcome) Decision {
	switch outcome {
	case OutcomeSuccess:
		s.Status = StatusSucceeded
		return Decision{Action: ActionSucceed, Next: s}

	case OutcomeRateLimited:
		s.Status = StatusAttempting
		return Decision{Action: ActionRequeue, Next: s}

	default:
		if s.RetriesRemaining > 0 {
			next := AttemptState{
				Target:             s.Target,
				Status:             StatusAttempting,
				RetriesRemaining:   s.RetriesRemaining - 1,
				UseAlternateSource: s.RetriesRemaining-1 == 0,
				Attempt:            s.Attempt + 1,
			}
			return Decision{Action: ActionRetry, Next: next}
		}
		s.Status = StatusFailed
		return Decision{Action: ActionFail, Next: s}
	}
}

// Classify maps a mirror response to an outcome. A transport error, any
// status other than 200 and 429, or a 200 without a body are failures.
func Classify(statusCode int, hasBody bool, err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case statusCode == http.StatusOK && hasBody:
		return OutcomeSuccess
	default:
		return OutcomeFailure
	}
}
