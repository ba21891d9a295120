package runtime

import "fmt"

// StageError reports a stage (or its routing) failing with an infrastructure error.
// The state returned alongside it is the last successfully merged one.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage '%s' failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// CheckpointError reports a failure to persist the state after a stage.
type CheckpointError struct {
	Stage string
	Err   error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint after '%s' failed: %v", e.Stage, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}
