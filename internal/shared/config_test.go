package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Server.Port != 5000 {
			t.Errorf("expected server port 5000, got %d", config.Server.Port)
		}
		if config.Store.Driver != "memory" {
			t.Errorf("expected memory store driver, got %s", config.Store.Driver)
		}
		if config.Auth.ExpirySkew != 60*time.Second {
			t.Errorf("expected 60s expiry skew, got %v", config.Auth.ExpirySkew)
		}
		if config.Auth.ExchangeTimeout != 10*time.Second {
			t.Errorf("expected 10s exchange timeout, got %v", config.Auth.ExchangeTimeout)
		}
		if len(config.Credentials.Spotify.Scopes) != 5 {
			t.Errorf("expected 5 default scopes, got %v", config.Credentials.Spotify.Scopes)
		}
		if !config.Credentials.Spotify.ShowDialog {
			t.Error("expected show_dialog to default to true")
		}
		if config.Server.Addr() != "127.0.0.1:5000" {
			t.Errorf("expected addr 127.0.0.1:5000, got %s", config.Server.Addr())
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}
		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
redirect_uri = "http://localhost:5000/callback"

[server]
port = 8080

[auth]
expiry_skew = "2m"

[store]
driver = "sqlite"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Credentials.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected spotify client_id test_client_id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}
		if config.Auth.ExpirySkew != 2*time.Minute {
			t.Errorf("expected 2m skew, got %v", config.Auth.ExpirySkew)
		}
		if config.Auth.ExchangeTimeout != 10*time.Second {
			t.Errorf("expected default exchange timeout to survive, got %v", config.Auth.ExchangeTimeout)
		}
		if config.Credentials.Spotify.TokenURL != "https://accounts.spotify.com/api/token" {
			t.Errorf("expected default token url, got %s", config.Credentials.Spotify.TokenURL)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		t.Setenv(EnvClientID, "env_id")
		t.Setenv(EnvClientSecret, "env_secret")
		t.Setenv(EnvStoreDriver, "REDIS")
		t.Setenv(EnvRedisURL, "redis://cache:6379/1")

		config := DefaultConfig()
		config.ApplyEnv()

		if config.Credentials.Spotify.ClientID != "env_id" {
			t.Errorf("expected env client id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Credentials.Spotify.ClientSecret != "env_secret" {
			t.Errorf("expected env client secret, got %s", config.Credentials.Spotify.ClientSecret)
		}
		if config.Store.Driver != "redis" {
			t.Errorf("expected redis driver, got %s", config.Store.Driver)
		}
		if config.Store.RedisURL != "redis://cache:6379/1" {
			t.Errorf("expected env redis url, got %s", config.Store.RedisURL)
		}
	})

	t.Run("LoadEnv", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(envPath, []byte("SPOTIFY_REDIRECT_URI=http://example.test/callback\n"), 0600); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Setenv(EnvRedirectURI, "")
		os.Unsetenv(EnvRedirectURI)

		if err := LoadEnv(envPath); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := os.Getenv(EnvRedirectURI); got != "http://example.test/callback" {
			t.Errorf("expected redirect uri from env file, got %q", got)
		}

		if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
			t.Errorf("missing env file should be ignored, got %v", err)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		valid := func() *Config {
			c := DefaultConfig()
			c.Credentials.Spotify.ClientID = "id"
			c.Credentials.Spotify.ClientSecret = "secret"
			return c
		}

		tc := []struct {
			name    string
			mutate  func(c *Config)
			wantErr error
		}{
			{name: "valid", mutate: func(c *Config) {}},
			{name: "example client id", mutate: func(c *Config) { c.Credentials.Spotify.ClientID = "your_spotify_client_id" }, wantErr: ErrMissingCredentials},
			{name: "missing secret", mutate: func(c *Config) { c.Credentials.Spotify.ClientSecret = "" }, wantErr: ErrMissingCredentials},
			{name: "missing redirect", mutate: func(c *Config) { c.Credentials.Spotify.RedirectURI = "" }, wantErr: ErrInvalidConfig},
			{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "etcd" }, wantErr: ErrUnsupportedStore},
			{name: "redis without url", mutate: func(c *Config) { c.Store.Driver = "redis"; c.Store.RedisURL = "" }, wantErr: ErrInvalidConfig},
			{name: "zero exchange timeout", mutate: func(c *Config) { c.Auth.ExchangeTimeout = 0 }, wantErr: ErrInvalidConfig},
			{name: "missing frontend", mutate: func(c *Config) { c.Frontend.NextURL = "" }, wantErr: ErrInvalidConfig},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				c := valid()
				tt.mutate(c)
				err := c.Validate()

				if tt.wantErr == nil {
					if err != nil {
						t.Errorf("expected no error, got %v", err)
					}
					return
				}
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			})
		}
	})
}
