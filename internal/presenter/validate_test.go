package presenter

import (
	"errors"
	"testing"
)

func TestEmailInvalid(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"":                     false,
		"alice@example.com":    false,
		"a.b+c@sub.example.co": false,
		"alice":                true,
		"alice@":               true,
		"@example.com":         true,
		"alice@example":        true,
		"al ice@example.com":   true,
	}
	for email, want := range cases {
		if got := EmailInvalid(email); got != want {
			t.Errorf("EmailInvalid(%q) = %v, want %v", email, got, want)
		}
	}
}

func TestPasswordInvalid(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"abc123!x":    false,
		"Päss word 9": false,
		"short1!":     true,
		"abcdefgh":    true,
		"abcdefg1":    true,
		"12345678!":   true,
		"":            true,
	}
	for pw, want := range cases {
		if got := PasswordInvalid(pw); got != want {
			t.Errorf("PasswordInvalid(%q) = %v, want %v", pw, got, want)
		}
	}
}

func TestUsernameInvalid(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"alice":      false,
		"alice_b.99": false,
		"":           false,
		"alice b":    true,
		"alice-b":    true,
		"alice@b":    true,
	}
	for u, want := range cases {
		if got := UsernameInvalid(u); got != want {
			t.Errorf("UsernameInvalid(%q) = %v, want %v", u, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		sub   Submission
		field string
	}{
		{"empty form allowed", Submission{}, ""},
		{"names only allowed", Submission{FirstName: "Ada"}, ""},
		{"valid", Submission{Email: "a@b.co", Password: "abc123!x", Username: "ada"}, ""},
		{"bad email", Submission{Email: "nope", Username: "ada"}, "email"},
		{"weak password", Submission{Password: "password"}, "password"},
		{"bad username", Submission{Username: "a b"}, "username"},
	}
	for _, tt := range tests {
		err := Validate(tt.sub)
		if tt.field == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tt.name, err)
			}
			continue
		}
		var fe *FieldError
		if !errors.As(err, &fe) || fe.Field != tt.field {
			t.Errorf("%s: expected FieldError on %s, got %v", tt.name, tt.field, err)
		}
		if FormValid(tt.sub) {
			t.Errorf("%s: FormValid should be false", tt.name)
		}
	}
}
