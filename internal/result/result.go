// Package result defines the payload delivered to the caller when an
// authentication succeeds.
package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TokenTTL is the fixed lifetime of an issued token.
const TokenTTL = 3600 * time.Second

// PlaceholderVoiceMatch is the simulated voice match score. No voice
// processing takes place.
const PlaceholderVoiceMatch = 0.95

// Result is the success payload.
type Result struct {
	UserID     string   `json:"userId"`
	Token      string   `json:"token"`
	ExpiresAt  int64    `json:"expiresAt"`
	VoiceMatch *float64 `json:"voiceMatch,omitempty"`
	Email      string   `json:"email,omitempty"`
	Username   string   `json:"username,omitempty"`
	FirstName  string   `json:"firstName,omitempty"`
	LastName   string   `json:"lastName,omitempty"`

	// Extra holds any additional keys the native side attached.
	Extra map[string]any `json:"-"`
}

var knownKeys = map[string]struct{}{
	"userId": {}, "token": {}, "expiresAt": {}, "voiceMatch": {},
	"email": {}, "username": {}, "firstName": {}, "lastName": {},
}

var errNotObject = errors.New("payload is not a JSON object")

// MalformedResultError is returned when a success payload is not a valid
// result object.
type MalformedResultError struct {
	Err error
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("failed to parse authentication result: %v", e.Err)
}

func (e *MalformedResultError) Unwrap() error { return e.Err }

// ExpiresFrom returns the expiry timestamp for a token issued at now.
func ExpiresFrom(now time.Time) int64 {
	return now.Add(TokenTTL).Unix()
}

// Decode parses a success payload.
func Decode(payload string) (*Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, &MalformedResultError{Err: err}
	}
	if fields == nil {
		return nil, &MalformedResultError{Err: errNotObject}
	}
	var r Result
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, &MalformedResultError{Err: err}
	}
	return &r, nil
}

// Encode serialises r as the success event payload.
func (r *Result) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MarshalJSON writes known fields and Extra as one flat object.
func (r Result) MarshalJSON() ([]byte, error) {
	type known Result
	raw, err := json.Marshal(known(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return raw, nil
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, ok := knownKeys[k]; !ok {
			flat[k] = v
		}
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads known fields and keeps everything else in Extra.
func (r *Result) UnmarshalJSON(data []byte) error {
	type known Result
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*r = Result(k)
	for key, raw := range all {
		if _, ok := knownKeys[key]; ok {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[key] = v
	}
	return nil
}
