package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors forming the error taxonomy. Call sites wrap them with
// fmt.Errorf("%w: ...") so callers can dispatch with errors.Is while still
// seeing the offending identifier in the message.
var (
	// ErrAgentNotFound indicates that no agent is registered under the
	// requested id.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrSessionNotFound indicates that the referenced session does not
	// exist in the store. Appending a run never creates one implicitly.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRunNotFound indicates that the referenced run does not exist
	// within the given session.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidConfig covers duplicate registrations, conflicting or
	// missing references and invalid per-run tool allow-lists.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrExecutionTimedOut indicates that a policy timeout fired before
	// the model interaction completed. Use errors.Is against it;
	// errors.As with *TimeoutError recovers the budget that fired.
	ErrExecutionTimedOut = errors.New("execution timed out")
)

// TimeoutError reports that a turn exceeded its ExecutionPolicy timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.Timeout)
}

// Is matches ErrExecutionTimedOut so callers can test with errors.Is
// without knowing the concrete type.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrExecutionTimedOut
}
