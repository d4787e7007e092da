// Package secrets resolves credentials from files, environment variables or
// inline configuration values.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNotConfigured = errors.New("not configured")

// Source describes where a secret may come from. The first non-empty of File,
// Value and Env wins.
type Source struct {
	// Name is used in error messages.
	Name string
	// File points to a file holding the secret.
	File string
	// Value is an inline secret from configuration or flags.
	Value string
	// Env names an environment variable consulted last.
	Env string
}

// Load returns the trimmed secret, or ErrNotConfigured when no source holds one.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("%s is not configured (set %s): %w", name, env, ErrNotConfigured)
	}

	return "", fmt.Errorf("%s is not configured: %w", name, ErrNotConfigured)
}

// Optional is Load for secrets that may be absent; a missing secret is "".
func Optional(src Source) (string, error) {
	secret, err := Load(src)
	if errors.Is(err, ErrNotConfigured) {
		return "", nil
	}
	return secret, err
}
