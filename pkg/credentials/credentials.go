// Package credentials stores Dify application API keys in the
// credentials.toml file of the .wenshu/ directory.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/wenshu/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0

	// DefaultApp is the app name used when none is configured.
	DefaultApp = "default"
)

// EnvVars are checked, in order, before credentials.toml when resolving a key.
var EnvVars = []string{"WENSHU_DIFY_API_KEY", "DIFY_API_KEY"}

// Manager manages reading and writing credentials.toml in the .wenshu/ directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .wenshu/ directory; otherwise the standard dotdir resolution applies.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version: currentVersion,
				Apps:    make(map[string]AppCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Apps == nil {
		creds.Apps = make(map[string]AppCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetKey stores an API key for the given app.
func (m *Manager) SetKey(app, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cannot store empty api key")
	}

	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Apps[appName(app)] = AppCredential{APIKey: key}

	return m.Save(creds)
}

// GetKey returns the stored API key for the given app.
// Returns an empty string if no key is stored.
func (m *Manager) GetKey(app string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Apps[appName(app)].APIKey, nil
}

// ResolveKey returns the key from the first set variable of EnvVars, falling
// back to the stored key of app.
func (m *Manager) ResolveKey(app string) (string, error) {
	for _, name := range EnvVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}
	return m.GetKey(app)
}

// RemoveKey deletes the stored credential for an app.
func (m *Manager) RemoveKey(app string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Apps, appName(app))

	return m.Save(creds)
}

// ListApps returns the names of apps that have stored credentials.
func (m *Manager) ListApps() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	apps := make([]string, 0, len(creds.Apps))
	for name := range creds.Apps {
		apps = append(apps, name)
	}

	sort.Strings(apps)

	return apps, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

func appName(app string) string {
	if app == "" {
		return DefaultApp
	}
	return app
}
