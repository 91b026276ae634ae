// Package credentials resolves API keys from the environment or a local
// key=value file.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

var ErrMissingKey = errors.New("api key not configured")

// Lookup returns the value of envKey from the process environment, falling back
// to the same key in file. A missing file is not an error.
func Lookup(envKey, file string) (string, error) {
	if envKey == "" {
		return "", fmt.Errorf("%w: no variable name configured", ErrMissingKey)
	}
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v, nil
	}
	if file != "" {
		values, err := godotenv.Read(file)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read credentials file: %w", err)
		}
		if v := strings.TrimSpace(values[envKey]); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: set %s in the environment or in %s", ErrMissingKey, envKey, displayFile(file))
}

func displayFile(file string) string {
	if file == "" {
		return "a credentials file"
	}
	return file
}
