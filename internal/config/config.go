package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the default config file name inside a workspace.
const FileName = "devhub.yml"

// Config models devhub.yml.
type Config struct {
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Auth     AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Log      LogConfig       `yaml:"log" mapstructure:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" mapstructure:"webhooks"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	BasePath string `yaml:"base_path" mapstructure:"base_path"`
}

type DatabaseConfig struct {
	// Driver is one of sqlite, postgres, mysql.
	Driver string `yaml:"driver" mapstructure:"driver"`
	// DSN is used by postgres and mysql.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
	// Path is the sqlite database file.
	Path         string `yaml:"path" mapstructure:"path"`
	MaxOpenConns int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
}

type AuthConfig struct {
	JWTSecret              string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header" mapstructure:"allow_legacy_actor_header"`
	EnforcePermissions     bool   `yaml:"enforce_permissions" mapstructure:"enforce_permissions"`
	DevLogin               bool   `yaml:"dev_login" mapstructure:"dev_login"`
}

type LogConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode"`
}

// WebhookConfig forwards audit events to an HTTP endpoint. Events lists
// "module:action" or "module:*" selectors; empty means every event.
type WebhookConfig struct {
	URL            string   `yaml:"url" mapstructure:"url"`
	Events         []string `yaml:"events,omitempty" mapstructure:"events"`
	Secret         string   `yaml:"secret,omitempty" mapstructure:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" mapstructure:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled,omitempty" mapstructure:"enabled"`
}

// Active reports whether the webhook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return strings.TrimSpace(w.URL) != "" && (w.Enabled == nil || *w.Enabled)
}

var drivers = map[string]bool{"sqlite": true, "postgres": true, "mysql": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if !drivers[c.Database.Driver] {
		return fmt.Errorf("config.database.driver must be one of sqlite, postgres, mysql")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("config.database.path is required for sqlite")
		}
	default:
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for %s", c.Database.Driver)
		}
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("config.database.max_open_conns must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Default returns the default Config for a workspace.
func Default(workspace string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(workspace)), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return fmt.Sprintf(defaultTemplate, filepath.ToSlash(filepath.Join(workspace, ".devhub", "devhub.db")))
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the config file at path through viper, applying DEVHUB_* environment
// overrides on top of the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default(filepath.Dir(path)))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DEVHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write stores the config as YAML, refusing to overwrite an existing file.
func Write(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.allow_legacy_actor_header", d.Auth.AllowLegacyActorHeader)
	v.SetDefault("auth.enforce_permissions", d.Auth.EnforcePermissions)
	v.SetDefault("auth.dev_login", d.Auth.DevLogin)
	v.SetDefault("log.mode", d.Log.Mode)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api

database:
  driver: sqlite
  path: %s
  dsn: ""
  max_open_conns: 0

auth:
  jwt_secret: ""
  allow_legacy_actor_header: true
  enforce_permissions: false
  dev_login: false

log:
  mode: development
`
