package bracket

import "errors"

// Error taxonomy shared by the engine. Wrap with fmt.Errorf("%w: ...") and test
// with errors.Is.
var (
	// Bad precondition or malformed input. Reported before any mutation.
	ErrValidation = errors.New("validation failed")

	// Fixture or playoff already generated, or the state moved under the caller.
	ErrConflict = errors.New("conflict")

	// Referenced tournament, round, match or event is missing.
	ErrNotFound = errors.New("not found")

	// A multi-step write failed after rows were written and could not be rolled back.
	ErrPartialFailure = errors.New("partial failure")
)
