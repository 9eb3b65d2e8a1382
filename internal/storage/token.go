package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoToken is returned when no bearer credential has been stored yet.
var ErrNoToken = errors.New("no access token stored")

// SaveAccessToken writes the bearer credential to path with restrictive
// permissions, creating the parent directory if needed.
func SaveAccessToken(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty access token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// LoadAccessToken reads the bearer credential stored at path.
func LoadAccessToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// TokenSource returns a function that re-reads the token file on every call,
// so a token replaced on disk is picked up by the next handshake.
func TokenSource(path string) func() (string, error) {
	return func() (string, error) {
		return LoadAccessToken(path)
	}
}
