package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file is expected when --config is not given.
const DefaultPath = "/app/eti-config.yaml"

// defaultWorkers bounds the per-phase worker pool when the config file
// does not set sync_workers. A negative value disables the bound.
const defaultWorkers = 8

// Auth holds the basic-auth credentials for the Resilio control API.
type Auth struct {
	User     string `yaml:"user" env:"RESILIO_USER"`
	Password string `yaml:"password" env:"RESILIO_PASSWORD"`
}

// Games holds the game-specific settings, currently only the denylist of
// folder ids that must never be synced.
type Games struct {
	Denylist []string `yaml:"denylist"`
}

// Duration wraps time.Duration so it can be written as "500ms" or "1s"
// in the YAML config file.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all settings for one reconciliation run. It is immutable
// after Load returns and is safe to share across concurrent workers.
type Config struct {
	// Host is the Resilio Sync host:port.
	Host string `yaml:"resilio_host" env:"RESILIO_HOST"`

	// Auth is the basic-auth credential pair for the control API.
	Auth Auth `yaml:"resilio_auth"`

	// SyncDir is the root directory under which folder mirrors live.
	SyncDir string `yaml:"resilio_sync_dir"`

	// SyncOptions is an opaque query-string fragment appended verbatim
	// to every folder API call.
	SyncOptions string `yaml:"resilio_sync_options"`

	// DataDir holds the local copy of the game catalog database.
	DataDir string `yaml:"data_dir"`

	// Workers caps concurrent in-flight folder operations per phase.
	// Zero means the default, negative means unbounded.
	Workers int `yaml:"sync_workers"`

	// CallDelay is an optional pacing delay between consecutive remote
	// calls, for Resilio instances that rate-limit the control API.
	CallDelay Duration `yaml:"sync_call_delay"`

	Games   Games       `yaml:"games"`
	Folders FolderTable `yaml:"folders"`

	// Environment controls log format. Not part of the config file.
	Environment string `yaml:"-" env:"PETI_ENVIRONMENT" envDefault:"development"`

	// KeepDiscarded skips the removal phase entirely. Set from the CLI
	// flag, never from the file.
	KeepDiscarded bool `yaml:"-"`
}

// Load reads the YAML config file at path and applies env-var overrides.
// A .env file is loaded first if present, matching how the service is
// deployed in containers.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Env vars win over the file for host and credentials.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env overrides: %w", err)
	}

	if cfg.Host == "" {
		cfg.Host = "localhost:8888"
	}

	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve directories to absolute paths at startup. Mirror cleanup
	// joins folder ids onto SyncDir; relative paths would silently
	// depend on the process working directory.
	if cfg.SyncDir, err = filepath.Abs(cfg.SyncDir); err != nil {
		return nil, fmt.Errorf("resolving sync dir to absolute path: %w", err)
	}

	if cfg.DataDir, err = filepath.Abs(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("resolving data dir to absolute path: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.SyncDir == "" {
		return fmt.Errorf("resilio_sync_dir is required")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.CallDelay < 0 {
		return fmt.Errorf("sync_call_delay must not be negative")
	}

	return nil
}

// DeniedIDs returns the games denylist as a set keyed by folder id.
func (c *Config) DeniedIDs() map[string]struct{} {
	denied := make(map[string]struct{}, len(c.Games.Denylist))
	for _, id := range c.Games.Denylist {
		denied[id] = struct{}{}
	}

	return denied
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
