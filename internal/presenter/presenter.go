// Package presenter is the credential-collection surface the native module
// presents. The terminal form is the default implementation.
package presenter

import (
	"context"
	"errors"

	"github.com/benaskins/voiceauth/internal/authconfig"
)

// ErrCanceled is returned when the user dismisses the form.
var ErrCanceled = errors.New("authentication was canceled by the user")

// Submission holds the field values entered by the user. Fields hidden by
// the config are empty.
type Submission struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
}

// Presenter shows the form described by cfg and blocks until the user
// submits or cancels. A submission has already passed Validate.
type Presenter interface {
	Present(ctx context.Context, cfg authconfig.Config) (Submission, error)
}

// Func adapts a function to the Presenter interface.
type Func func(ctx context.Context, cfg authconfig.Config) (Submission, error)

// Present calls f.
func (f Func) Present(ctx context.Context, cfg authconfig.Config) (Submission, error) {
	return f(ctx, cfg)
}
