package credentials

// Credentials represents the stored API credentials in credentials.toml.
type Credentials struct {
	Version int                      `toml:"version"`
	Apps    map[string]AppCredential `toml:"apps"`
}

// AppCredential holds the API key of a single Dify application.
type AppCredential struct {
	APIKey string `toml:"api_key"`
}
