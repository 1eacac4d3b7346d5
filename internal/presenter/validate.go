package presenter

import (
	"fmt"
	"regexp"
	"unicode"
)

// emailPattern follows the common platform email address matcher.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9+._%\-]{1,256}@[a-zA-Z0-9][a-zA-Z0-9\-]{0,64}(\.[a-zA-Z0-9][a-zA-Z0-9\-]{0,25})+$`)

// EmailInvalid reports whether a non-empty email is malformed.
func EmailInvalid(email string) bool {
	return email != "" && !emailPattern.MatchString(email)
}

// PasswordInvalid reports whether password is shorter than 8 characters or
// lacks a letter, a digit or a symbol.
func PasswordInvalid(password string) bool {
	var letter, digit, special bool
	n := 0
	for _, r := range password {
		n++
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	return n < 8 || !letter || !digit || !special
}

// UsernameInvalid reports whether username contains anything other than
// letters, digits, '_' and '.'.
func UsernameInvalid(username string) bool {
	for _, r := range username {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.') {
			return true
		}
	}
	return false
}

// FormValid reports whether the submission may be sent. An entirely empty
// form is allowed; otherwise each non-empty field must be valid.
func FormValid(s Submission) bool {
	return Validate(s) == nil
}

// FieldError names the first field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate returns a *FieldError for the first invalid field, or nil.
func Validate(s Submission) error {
	if s.Email == "" && s.Password == "" && s.Username == "" {
		return nil
	}
	if EmailInvalid(s.Email) {
		return &FieldError{Field: "email", Reason: "Invalid email format"}
	}
	if s.Password != "" && PasswordInvalid(s.Password) {
		return &FieldError{Field: "password", Reason: "Password must be at least 8 characters with a letter, a digit and a symbol"}
	}
	if s.Username != "" && UsernameInvalid(s.Username) {
		return &FieldError{Field: "username", Reason: "Username must not contain spaces or special characters"}
	}
	return nil
}
