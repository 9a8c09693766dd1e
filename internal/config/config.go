package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for deskpilot.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Executor ExecutorConfig `yaml:"executor"`
	Tools    ToolsConfig    `yaml:"tools"`
	Security SecurityConfig `yaml:"security"`
	Audit    AuditConfig    `yaml:"audit"`
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	File  string `yaml:"file,omitempty"`
}

// ExecutorConfig configures the script interpreter. The interpreter must read
// its program from stdin given Args.
type ExecutorConfig struct {
	Interpreter    string   `yaml:"interpreter"`
	Args           []string `yaml:"args"`
	TimeoutSeconds int      `yaml:"timeoutSeconds"` // 0 = no deadline
}

// Timeout returns the executor deadline; zero disables it.
func (e ExecutorConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

type ToolsConfig struct {
	MaxResultChars int           `yaml:"maxResultChars"` // 0 = no truncation
	MessageCount   int           `yaml:"messageCount"`   // default for read_messages_from_imessage
	Disabled       []string      `yaml:"disabled,omitempty"`
	Browser        BrowserConfig `yaml:"browser"`
}

type BrowserConfig struct {
	Backend    string `yaml:"backend"` // applescript | chromedp
	Headless   bool   `yaml:"headless"`
	ProfileDir string `yaml:"profileDir,omitempty"`
}

type SecurityConfig struct {
	DefaultPolicy   string          `yaml:"defaultPolicy"` // allow | deny | ask
	Blacklist       []string        `yaml:"blacklist"`
	Whitelist       []string        `yaml:"whitelist"`
	ConfirmPatterns []string        `yaml:"confirmPatterns"`
	ConfirmTools    []string        `yaml:"confirmTools"`
	AuditLog        bool            `yaml:"auditLog"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig throttles tool calls; PerMinute 0 disables it.
type RateLimitConfig struct {
	PerMinute float64 `yaml:"perMinute"`
	Burst     int     `yaml:"burst"`
}

type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"dbPath"`
	RetentionDays int    `yaml:"retentionDays"`
	PruneSchedule string `yaml:"pruneSchedule,omitempty"` // cron spec used by serve; empty = prune at startup only
}

// ServerConfig configures the MCP transport.
type ServerConfig struct {
	Transport string `yaml:"transport"` // stdio | http
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"authToken,omitempty"` // bearer token required on http
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.deskpilot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deskpilot"
	}
	return filepath.Join(home, ".deskpilot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	cfg.Log.File = ExpandPath(cfg.Log.File)
	cfg.Tools.Browser.ProfileDir = ExpandPath(cfg.Tools.Browser.ProfileDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}

	if cfg.Executor.Interpreter == "" {
		errs = append(errs, "executor.interpreter is required")
	}
	if cfg.Executor.TimeoutSeconds < 0 {
		errs = append(errs, "executor.timeoutSeconds must be >= 0")
	}

	if cfg.Tools.MaxResultChars < 0 {
		errs = append(errs, "tools.maxResultChars must be >= 0")
	}
	if cfg.Tools.MessageCount < 1 {
		errs = append(errs, "tools.messageCount must be >= 1")
	}
	switch cfg.Tools.Browser.Backend {
	case "applescript", "chromedp":
	default:
		errs = append(errs, "tools.browser.backend must be one of: applescript, chromedp")
	}

	switch cfg.Security.DefaultPolicy {
	case "allow", "deny", "ask":
	default:
		errs = append(errs, "security.defaultPolicy must be one of: allow, deny, ask")
	}

	if cfg.Security.RateLimit.PerMinute < 0 {
		errs = append(errs, "security.rateLimit.perMinute must be >= 0")
	}

	if cfg.Audit.Enabled {
		if cfg.Audit.DBPath == "" {
			errs = append(errs, "audit.dbPath is required when audit is enabled")
		}
		if cfg.Audit.RetentionDays < 1 {
			errs = append(errs, "audit.retentionDays must be >= 1")
		}
		if cfg.Audit.PruneSchedule != "" {
			if _, err := cron.ParseStandard(cfg.Audit.PruneSchedule); err != nil {
				errs = append(errs, fmt.Sprintf("audit.pruneSchedule: %v", err))
			}
		}
	}

	switch cfg.Server.Transport {
	case "stdio":
	case "http":
		if cfg.Server.Addr == "" {
			errs = append(errs, "server.addr is required for http transport")
		}
	default:
		errs = append(errs, "server.transport must be one of: stdio, http")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
