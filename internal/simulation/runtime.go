package simulation

import (
	"errors"
	"fmt"
	"os/exec"
)

// RuntimeError reports an external engine that cannot be located or run.
type RuntimeError struct {
	msg string
	err error
}

func NewRuntimeError(msg string, err error) *RuntimeError {
	return &RuntimeError{msg: msg, err: err}
}

func (e *RuntimeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.err)
	}
	return e.msg
}

func (e *RuntimeError) Unwrap() error {
	return e.err
}

// FindRuntime resolves the external engine binary in PATH.
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", NewRuntimeError(fmt.Sprintf("simulation: `%s` not found in PATH", runtime), err)
		}
		return "", NewRuntimeError("simulation: failed to locate engine binary", err)
	}

	return binPath, nil
}
