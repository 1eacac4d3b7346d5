package bridge

import (
	"errors"
	"fmt"
)

// ErrRequestInFlight is returned by Authenticate while another request is
// still waiting for its terminal event. Both requests would otherwise
// listen on the same event names.
var ErrRequestInFlight = errors.New("an authentication request is already in flight")

// LinkingError means the native module is not registered with the host.
// It indicates a packaging defect and is not recoverable at runtime.
type LinkingError struct {
	Module string
}

func (e *LinkingError) Error() string {
	return fmt.Sprintf("native module %q doesn't seem to be linked: make sure it is registered and the host was rebuilt", e.Module)
}

// AuthError carries the message of an error event from the native module.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }
