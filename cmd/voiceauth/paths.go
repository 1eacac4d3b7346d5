package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/benaskins/voiceauth/internal/config"
)

// voiceauthHome returns the state directory (~/.voiceauth), creating it.
func voiceauthHome() (string, error) {
	dir := config.DefaultDir()
	if dir == "" {
		return "", errors.New("cannot determine home directory")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func defaultSocketPath() string {
	dir := config.DefaultDir()
	if dir == "" {
		return "/tmp/voiceauth.sock"
	}
	return filepath.Join(dir, "voiceauth.sock")
}
