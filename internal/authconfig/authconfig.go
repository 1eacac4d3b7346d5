// Package authconfig describes how the credential-collection screen is
// presented and fills caller-supplied partial configuration from a
// default table.
//
// Known fields are typed. Keys the SDK does not recognise are kept in an
// extension bag and passed through to the presentation layer untouched.
package authconfig

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"strings"
)

var hexColorRe = regexp.MustCompile(`^(?:[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// Config is a fully-populated presentation configuration.
type Config struct {
	Title              string `json:"title" yaml:"title"`
	BackgroundColor    string `json:"backgroundColor" yaml:"backgroundColor"`
	ButtonColor        string `json:"buttonColor" yaml:"buttonColor"`
	ButtonTextColor    string `json:"buttonTextColor" yaml:"buttonTextColor"`
	TextColor          string `json:"textColor" yaml:"textColor"`
	ShowEmailField     bool   `json:"showEmailField" yaml:"showEmailField"`
	ShowPasswordField  bool   `json:"showPasswordField" yaml:"showPasswordField"`
	ShowUsernameField  bool   `json:"showUsernameField" yaml:"showUsernameField"`
	ShowFirstNameField bool   `json:"showFirstNameField" yaml:"showFirstNameField"`
	ShowLastNameField  bool   `json:"showLastNameField" yaml:"showLastNameField"`
	SubmitButtonText   string `json:"submitButtonText" yaml:"submitButtonText"`
	EmailLabel         string `json:"emailLabel" yaml:"emailLabel"`
	PasswordLabel      string `json:"passwordLabel" yaml:"passwordLabel"`
	UsernameLabel      string `json:"usernameLabel" yaml:"usernameLabel"`
	FirstNameLabel     string `json:"firstNameLabel" yaml:"firstNameLabel"`
	LastNameLabel      string `json:"lastNameLabel" yaml:"lastNameLabel"`

	// Extra holds keys outside the documented set.
	Extra map[string]any `json:"-" yaml:"-"`
}

// Defaults returns the default table.
func Defaults() Config {
	return Config{
		Title:              "Voice Authentication",
		BackgroundColor:    "FFFFFF",
		ButtonColor:        "007BFF",
		ButtonTextColor:    "FFFFFF",
		TextColor:          "000000",
		ShowEmailField:     true,
		ShowPasswordField:  true,
		ShowUsernameField:  true,
		ShowFirstNameField: true,
		ShowLastNameField:  true,
		SubmitButtonText:   "Authenticate",
		EmailLabel:         "Email",
		PasswordLabel:      "Password",
		UsernameLabel:      "Username",
		FirstNameLabel:     "First Name",
		LastNameLabel:      "Last Name",
	}
}

// Normalize fills every unset field of p from the default table.
func Normalize(p Partial) Config {
	return NormalizeWith(p, Defaults())
}

// NormalizeWith fills every unset field of p from defaults. Fields set in
// p win. Extra keys from defaults and p are merged, p winning on conflict.
func NormalizeWith(p Partial, defaults Config) Config {
	c := defaults
	c.Extra = nil

	setString(&c.Title, p.Title)
	setString(&c.BackgroundColor, p.BackgroundColor)
	setString(&c.ButtonColor, p.ButtonColor)
	setString(&c.ButtonTextColor, p.ButtonTextColor)
	setString(&c.TextColor, p.TextColor)
	setBool(&c.ShowEmailField, p.ShowEmailField)
	setBool(&c.ShowPasswordField, p.ShowPasswordField)
	setBool(&c.ShowUsernameField, p.ShowUsernameField)
	setBool(&c.ShowFirstNameField, p.ShowFirstNameField)
	setBool(&c.ShowLastNameField, p.ShowLastNameField)
	setString(&c.SubmitButtonText, p.SubmitButtonText)
	setString(&c.EmailLabel, p.EmailLabel)
	setString(&c.PasswordLabel, p.PasswordLabel)
	setString(&c.UsernameLabel, p.UsernameLabel)
	setString(&c.FirstNameLabel, p.FirstNameLabel)
	setString(&c.LastNameLabel, p.LastNameLabel)

	if len(defaults.Extra) > 0 || len(p.Extra) > 0 {
		c.Extra = make(map[string]any, len(defaults.Extra)+len(p.Extra))
		maps.Copy(c.Extra, defaults.Extra)
		maps.Copy(c.Extra, p.Extra)
	}
	return c
}

// ApplySecurityDefaults is applied by the native module before the screen
// is shown: the title carries "Voice" and the username and password fields
// are always visible.
func ApplySecurityDefaults(c Config) Config {
	if !strings.Contains(strings.ToLower(c.Title), "voice") {
		c.Title = "Voice " + c.Title
	}
	c.ShowUsernameField = true
	c.ShowPasswordField = true
	return c
}

// Validate reports colour fields that are not 6 or 8 hex digits.
func (c Config) Validate() error {
	for name, v := range map[string]string{
		"backgroundColor": c.BackgroundColor,
		"buttonColor":     c.ButtonColor,
		"buttonTextColor": c.ButtonTextColor,
		"textColor":       c.TextColor,
	} {
		if !hexColorRe.MatchString(strings.TrimPrefix(v, "#")) {
			return fmt.Errorf("%s: invalid hex colour %q", name, v)
		}
	}
	return nil
}

// MarshalJSON writes known fields and Extra as one flat object.
func (c Config) MarshalJSON() ([]byte, error) {
	type known Config
	raw, err := json.Marshal(known(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return raw, nil
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if _, ok := flat[k]; !ok {
			flat[k] = v
		}
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads a flat object, keeping unknown keys in Extra.
func (c *Config) UnmarshalJSON(data []byte) error {
	var p Partial
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = NormalizeWith(p, Config{})
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
