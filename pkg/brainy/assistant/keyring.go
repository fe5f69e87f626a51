// Package assistant – keyring.go provides secure credential storage using the
// operating system's native keyring (Linux: Secret Service/GNOME Keyring,
// macOS: Keychain, Windows: Credential Manager).
//
// Priority for resolving the API key:
//  1. OS keyring (encrypted by the OS, requires user session)
//  2. Environment variable (GOOGLE_API_KEY)
//  3. .env file (loaded by godotenv)
//  4. config.yaml value (least secure, plaintext on disk)
package assistant

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "brainy"

	// keyringAPIKey is the key name for the completion API key.
	keyringAPIKey = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__brainy_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveAPIKey resolves the completion API key using the priority chain:
// keyring, then environment, then the config value. Updates the config
// in-place, including the embedding key when it is unset.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	if val := GetKeyring(keyringAPIKey); val != "" {
		cfg.API.APIKey = val
		logger.Debug("API key loaded from OS keyring")
	} else if cfg.API.APIKey == "" || isEnvReference(cfg.API.APIKey) {
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			cfg.API.APIKey = key
			logger.Debug("API key loaded from environment")
		}
	}

	if cfg.API.APIKey == "" || isEnvReference(cfg.API.APIKey) {
		cfg.API.APIKey = ""
		logger.Warn("no API key found. Set one with: brainy setup")
	}

	// Embeddings share the completion key unless configured separately.
	if cfg.Memory.Embedding.APIKey == "" || isEnvReference(cfg.Memory.Embedding.APIKey) {
		cfg.Memory.Embedding.APIKey = cfg.API.APIKey
	}
}

// ReadSecret prompts for a secret without echoing it to the terminal.
func ReadSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
