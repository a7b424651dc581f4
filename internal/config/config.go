package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	MinPollingInterval      = 1
	MaxPollingInterval      = 3600
	MinDownloadWorkers      = 1
	MaxDownloadWorkers      = 100
	MinOrchestrationWorkers = 1
	MaxOrchestrationWorkers = 100

	// EnvPrefix prefixes every environment override, e.g. GODEBRID_LOGLEVEL.
	EnvPrefix = "GODEBRID"
	// DefaultSessionKey is the Redis key holding the shared session.
	DefaultSessionKey = "godebrid:session"
)

// Config represents the main application configuration
type Config struct {
	BindAddress          string             `toml:"bind_address" envconfig:"BIND_ADDRESS"`
	DownloadDirectory    string             `toml:"download_directory" envconfig:"DOWNLOAD_DIRECTORY"`
	DownloadWorkers      int                `toml:"download_workers" envconfig:"DOWNLOAD_WORKERS"`
	Loglevel             string             `toml:"loglevel" envconfig:"LOGLEVEL"`
	OrchestrationWorkers int                `toml:"orchestration_workers" envconfig:"ORCHESTRATION_WORKERS"`
	Password             string             `toml:"password" envconfig:"PASSWORD"`
	PollingInterval      int                `toml:"polling_interval" envconfig:"POLLING_INTERVAL"`
	Port                 int                `toml:"port" envconfig:"PORT"`
	SkipDirectories      []string           `toml:"skip_directories" envconfig:"SKIP_DIRECTORIES"`
	UID                  int                `toml:"uid" envconfig:"UID"`
	Username             string             `toml:"username" envconfig:"USERNAME"`
	RealDebrid           RealDebridConfig   `toml:"realdebrid" envconfig:"REALDEBRID"`
	SessionStore         SessionStoreConfig `toml:"session_store" envconfig:"SESSION_STORE"`
	Sonarr               *ArrConfig         `toml:"sonarr,omitempty" ignored:"true"`
	Radarr               *ArrConfig         `toml:"radarr,omitempty" ignored:"true"`
	Whisparr             *ArrConfig         `toml:"whisparr,omitempty" ignored:"true"`
}

// RealDebridConfig holds Real-Debrid credentials. Either APIKey or the
// OAuth2 fields written by `godebrid auth` are used.
type RealDebridConfig struct {
	APIKey       string    `toml:"api_key,omitempty" envconfig:"API_KEY"`
	ClientID     string    `toml:"client_id,omitempty" envconfig:"CLIENT_ID"`
	ClientSecret string    `toml:"client_secret,omitempty" envconfig:"CLIENT_SECRET"`
	RefreshToken string    `toml:"refresh_token,omitempty" envconfig:"REFRESH_TOKEN"`
	AccessToken  string    `toml:"access_token,omitempty" envconfig:"ACCESS_TOKEN"`
	TokenType    string    `toml:"token_type,omitempty" envconfig:"TOKEN_TYPE"`
	IssuedAt     time.Time `toml:"issued_at,omitempty" envconfig:"ISSUED_AT"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `toml:"expires_in,omitempty" envconfig:"EXPIRES_IN"`
}

// HasOAuth reports whether a refreshable credential set is configured.
func (r RealDebridConfig) HasOAuth() bool {
	return r.ClientID != "" && r.ClientSecret != "" && r.RefreshToken != ""
}

// SessionStoreConfig selects where rotated OAuth2 sessions are kept.
// With an empty RedisURL they are written back to the config file.
type SessionStoreConfig struct {
	RedisURL string `toml:"redis_url,omitempty" envconfig:"REDIS_URL"`
	Key      string `toml:"key,omitempty" envconfig:"KEY"`
}

// ArrConfig holds sonarr/radarr/whisparr configuration
type ArrConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// ArrService is one configured arr instance.
type ArrService struct {
	Name   string
	URL    string
	APIKey string
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		BindAddress:          "0.0.0.0",
		DownloadWorkers:      4,
		OrchestrationWorkers: 10,
		Loglevel:             "info",
		PollingInterval:      10,
		Port:                 9091,
		UID:                  1000,
		SkipDirectories:      []string{"sample", "extras"},
		SessionStore:         SessionStoreConfig{Key: DefaultSessionKey},
	}
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "godebrid")

	return filepath.Join(configDir, "config.toml"), nil
}

// Load loads configuration from a TOML file, then applies GODEBRID_*
// environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault is like Load but starts from DefaultConfig when the file
// does not exist yet.
func LoadOrDefault(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// Save atomically replaces the file at path with cfg, readable by the owner
// only.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := f.Chmod(0600); err != nil {
		f.Close()
		return fmt.Errorf("setting config file mode: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encoding config file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// UpdateFile rewrites the config file at path with mutate applied to its
// current content. Environment overrides are not applied, so secrets that
// only live in the environment never reach the disk. A missing file starts
// from DefaultConfig.
func UpdateFile(path string, mutate func(*Config)) error {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to read config file: %w", err)
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	mutate(cfg)
	return Save(path, cfg)
}

// ValidateCredentials checks that Real-Debrid can be authenticated against.
func (c *Config) ValidateCredentials() error {
	rd := c.RealDebrid
	if rd.APIKey == "" && !rd.HasOAuth() {
		return fmt.Errorf("realdebrid.api_key or an oauth credential set is required (run `godebrid auth`)")
	}
	if rd.APIKey == "" && rd.ExpiresIn < 0 {
		return fmt.Errorf("realdebrid.expires_in must not be negative")
	}

	if c.SessionStore.RedisURL != "" {
		u, err := url.Parse(c.SessionStore.RedisURL)
		if err != nil {
			return fmt.Errorf("session_store.redis_url is invalid: %v", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("session_store.redis_url must use the redis:// or rediss:// scheme")
		}
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}
	if c.DownloadDirectory == "" {
		return fmt.Errorf("download_directory is required")
	}

	info, err := os.Stat(c.DownloadDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("download_directory does not exist: %s", c.DownloadDirectory)
		}
		return fmt.Errorf("unable to stat download_directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("download_directory is not a directory: %s", c.DownloadDirectory)
	}
	tmpFile, err := os.CreateTemp(c.DownloadDirectory, ".godebrid-perm-*")
	if err != nil {
		return fmt.Errorf("download_directory is not writable: %w", err)
	}
	tmpFile.Close()
	os.Remove(tmpFile.Name())

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if _, err := logrus.ParseLevel(c.Loglevel); err != nil {
		return fmt.Errorf("loglevel must be one of: panic, fatal, error, warn, info, debug, trace")
	}

	if err := c.ValidateCredentials(); err != nil {
		return err
	}
	if c.Sonarr == nil && c.Radarr == nil && c.Whisparr == nil {
		return fmt.Errorf("at least one of sonarr, radarr, or whisparr must be configured")
	}

	validateArr := func(name string, cfg *ArrConfig) error {
		if cfg.URL == "" {
			return fmt.Errorf("%s.url is required", name)
		}
		if _, err := url.ParseRequestURI(cfg.URL); err != nil {
			return fmt.Errorf("%s.url is invalid: %v", name, err)
		}
		if cfg.APIKey == "" {
			return fmt.Errorf("%s.api_key is required", name)
		}
		return nil
	}

	for _, svc := range []struct {
		name string
		cfg  *ArrConfig
	}{{"sonarr", c.Sonarr}, {"radarr", c.Radarr}, {"whisparr", c.Whisparr}} {
		if svc.cfg == nil {
			continue
		}
		if err := validateArr(svc.name, svc.cfg); err != nil {
			return err
		}
	}

	if c.PollingInterval < MinPollingInterval || c.PollingInterval > MaxPollingInterval {
		return fmt.Errorf("polling_interval must be between %d and %d seconds", MinPollingInterval, MaxPollingInterval)
	}
	if c.DownloadWorkers < MinDownloadWorkers || c.DownloadWorkers > MaxDownloadWorkers {
		return fmt.Errorf("download_workers must be between %d and %d", MinDownloadWorkers, MaxDownloadWorkers)
	}
	if c.OrchestrationWorkers < MinOrchestrationWorkers || c.OrchestrationWorkers > MaxOrchestrationWorkers {
		return fmt.Errorf("orchestration_workers must be between %d and %d", MinOrchestrationWorkers, MaxOrchestrationWorkers)
	}

	return nil
}

// GetArrConfigs returns a list of configured arr services
func (c *Config) GetArrConfigs() []ArrService {
	var configs []ArrService

	if c.Sonarr != nil {
		configs = append(configs, ArrService{"Sonarr", c.Sonarr.URL, c.Sonarr.APIKey})
	}
	if c.Radarr != nil {
		configs = append(configs, ArrService{"Radarr", c.Radarr.URL, c.Radarr.APIKey})
	}
	if c.Whisparr != nil {
		configs = append(configs, ArrService{"Whisparr", c.Whisparr.URL, c.Whisparr.APIKey})
	}

	return configs
}
