package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStageTimeout marks a stage that failed to settle within its
	// configured timeout.
	ErrStageTimeout = errors.New("stage timed out")

	// ErrReorderInvalid marks a reorder whose name list is not an exact
	// permutation of the configured stage names.
	ErrReorderInvalid = errors.New("invalid stage order")

	// ErrInvalidStage marks a stage descriptor that cannot be registered.
	ErrInvalidStage = errors.New("invalid stage")

	// ErrDuplicateStage marks a second registration of an existing stage
	// name.
	ErrDuplicateStage = errors.New("duplicate stage name")
)

// stageTimeout renders the canonical failure for a missed stage deadline.
// Consumers match on ErrStageTimeout; the text carries the configured value.
func stageTimeout(timeout time.Duration) error {
	return fmt.Errorf("%w after %dms", ErrStageTimeout, timeout.Milliseconds())
}
