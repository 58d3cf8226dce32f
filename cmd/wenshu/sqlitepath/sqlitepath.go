// Package sqlitepath locates an existing wenshu SQLite history database for
// commands that read it directly.
package sqlitepath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolveSQLitePath returns override when set, then WENSHU_SQLITE or
// WENSHU_STORAGE_SQLITE_PATH, then the first database file found among the
// well known locations.
func ResolveSQLitePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	for _, name := range []string{"WENSHU_SQLITE", "WENSHU_STORAGE_SQLITE_PATH"} {
		if envPath := strings.TrimSpace(os.Getenv(name)); envPath != "" {
			return envPath, nil
		}
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", errors.New("could not find wenshu SQLite database; pass --sqlite")
}

func sqliteCandidates() []string {
	candidates := []string{
		"wenshu.db",
		filepath.Join(".wenshu", "wenshu.db"),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".wenshu", "wenshu.db"))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append(candidates, filepath.Join(xdgHome, "wenshu", "wenshu.db"))
	}

	return candidates
}
