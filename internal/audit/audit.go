// Package audit provides append-only structured logging for credential and
// vault key operations.
//
// Every credential access (store, read, delete) and every key provisioning
// event is recorded to ~/.voiceauth/audit.log as newline-delimited JSON.
// Entries name the identifier only. Secrets, key material and nonces are
// never written.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Action describes what happened.
type Action string

const (
	ActionCredentialStore  Action = "credential_store"
	ActionCredentialRead   Action = "credential_read"
	ActionCredentialDelete Action = "credential_delete"
	ActionKeyGenerate      Action = "key_generate"
	ActionKeyLoad          Action = "key_load"
)

// Entry is a single audit log record.
type Entry struct {
	Timestamp  time.Time `json:"ts"`
	Action     Action    `json:"action"`
	Identifier string    `json:"identifier,omitempty"`
	Alias      string    `json:"alias,omitempty"`   // vault key alias
	Actor      string    `json:"actor,omitempty"`   // "cli", "native", "bridge-host"
	Outcome    string    `json:"outcome,omitempty"` // "ok", "absent", "corrupt"
	Error      string    `json:"error,omitempty"`
}

// Logger writes audit entries to an append-only file.
// A nil *Logger discards entries.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogger creates or opens an audit log file for appending.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{file: f, path: path}, nil
}

// Log writes an audit entry.
func (l *Logger) Log(entry Entry) error {
	if l == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
