// Package sqlitepath resolves the local ledger database shared by the CLI
// commands.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvVar overrides the default location when no flag is given.
const EnvVar = "FINVISOR_SQLITE"

// ResolveSQLitePath picks the database path from the flag, then $FINVISOR_SQLITE,
// then ~/.finvisor/ledger.db, and makes sure its directory exists.
func ResolveSQLitePath(flagValue string) (string, error) {
	path := flagValue
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not find home directory: %w", err)
		}
		path = filepath.Join(home, ".finvisor", "ledger.db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("could not create %s: %w", filepath.Dir(path), err)
	}
	return path, nil
}
