package verify

import "errors"

// terminalError marks a failure that must stop verification permanently.
// Anything else is a transient failure of a single poll cycle: the next
// tick retries and the transfer status is left untouched.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }

func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps err so the verifier treats it as a permanent failure.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err carries a permanent-failure mark.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
