package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendAzure  = "azure"
	BackendS3     = "s3"

	DefaultLeaseDuration = 15 * time.Second
	MinLeaseDuration     = 15 * time.Second
	MaxLeaseDuration     = 60 * time.Second
	DefaultServerAddr    = "127.0.0.1:7420"

	EnvAzureAccountKey = "PHOTOSTORE_AZURE_ACCOUNT_KEY"
	EnvAzureSASToken   = "PHOTOSTORE_AZURE_SAS_TOKEN"
)

type Config struct {
	Store  StoreConfig  `toml:"store"`
	Azure  AzureConfig  `toml:"azure"`
	S3     S3Config     `toml:"s3"`
	Lease  LeaseConfig  `toml:"lease"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

type StoreConfig struct {
	Backend string `toml:"backend"`
	// LocalDir is the root for the local backend. Empty means the app
	// directory's store folder.
	LocalDir string `toml:"local_dir"`
}

type AzureConfig struct {
	ConnectionString string `toml:"connection_string"`
	Account          string `toml:"account"`
	AccountKey       string `toml:"account_key"`
	Endpoint         string `toml:"endpoint"`
	SASToken         string `toml:"sas_token"`
}

type S3Config struct {
	Endpoint     string `toml:"endpoint"`
	Region       string `toml:"region"`
	BucketPrefix string `toml:"bucket_prefix"`
	UsePathStyle bool   `toml:"use_path_style"`
}

type LeaseConfig struct {
	Duration Duration `toml:"duration"`
	// Release is a pointer so an explicit false survives ApplyDefaults.
	Release *bool `toml:"release"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration decodes TOML strings such as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func DefaultConfig() *Config {
	release := true
	return &Config{
		Store: StoreConfig{Backend: BackendLocal},
		Lease: LeaseConfig{
			Duration: Duration{DefaultLeaseDuration},
			Release:  &release,
		},
		Server: ServerConfig{Addr: DefaultServerAddr},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv fills secrets the file left empty from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.Azure.AccountKey == "" {
		c.Azure.AccountKey = getenv(EnvAzureAccountKey)
	}
	if c.Azure.SASToken == "" {
		c.Azure.SASToken = getenv(EnvAzureSASToken)
	}
}

func (c *Config) ApplyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendLocal
	}
	if c.Lease.Duration.Duration == 0 {
		c.Lease.Duration = Duration{DefaultLeaseDuration}
	}
	if c.Lease.Release == nil {
		release := true
		c.Lease.Release = &release
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Normalize() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Store.LocalDir = strings.TrimSpace(c.Store.LocalDir)
	c.Azure.Account = strings.TrimSpace(c.Azure.Account)
	c.Azure.Endpoint = strings.TrimSpace(c.Azure.Endpoint)
	c.Azure.SASToken = strings.TrimPrefix(strings.TrimSpace(c.Azure.SASToken), "?")
	c.S3.Endpoint = strings.TrimSpace(c.S3.Endpoint)
	c.S3.Region = strings.TrimSpace(c.S3.Region)
	c.S3.BucketPrefix = strings.TrimSpace(c.S3.BucketPrefix)
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendLocal, BackendMemory:
	case BackendAzure:
		if c.Azure.ConnectionString == "" && c.Azure.Account == "" && c.Azure.Endpoint == "" {
			return errors.New("azure backend requires connection_string, account or endpoint")
		}
		if c.Azure.ConnectionString == "" && c.Azure.AccountKey == "" && c.Azure.SASToken == "" {
			return errors.New("azure backend requires connection_string, account_key or sas_token")
		}
	case BackendS3:
		if c.S3.Region == "" {
			return errors.New("s3 backend requires region")
		}
	default:
		return fmt.Errorf("store.backend must be local, memory, azure, or s3: got %q", c.Store.Backend)
	}

	if d := c.Lease.Duration.Duration; d < MinLeaseDuration || d > MaxLeaseDuration {
		return fmt.Errorf("lease.duration must be between %s and %s: got %s", MinLeaseDuration, MaxLeaseDuration, d)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error: got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json: got %q", c.Log.Format)
	}
	return nil
}

// ReleaseLease reports whether lease-guarded writes release their lease
// once the write finishes.
func (c *Config) ReleaseLease() bool {
	return c.Lease.Release == nil || *c.Lease.Release
}
