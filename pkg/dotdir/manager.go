// Package dotdir manages the .wenshu/ and ~/.wenshu directories.
//
// Besides config.toml and credentials.toml the directory holds the
// conversation state of the CLI: the Dify conversation the next
// "wenshu ask --continue" joins.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName = ".wenshu"

	// HomeEnv names a wenshu directory that wins over ./.wenshu and
	// ~/.wenshu. Containers set it to a mounted volume.
	HomeEnv = "WENSHU_HOME"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target resolves and creates the wenshu directory, picking the first of:
//  1. overrideDir (--config-dir)
//  2. $WENSHU_HOME
//  3. ./.wenshu when it already exists
//  4. ~/.wenshu
func (m *Manager) Target(overrideDir string) (string, error) {
	dir, err := m.resolve(overrideDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating wenshu directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

func (m *Manager) resolve(overrideDir string) (string, error) {
	if overrideDir != "" {
		return overrideDir, nil
	}
	if env := os.Getenv(HomeEnv); env != "" {
		return env, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	local := filepath.Join(cwd, dirName)
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}
