package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvBaseURL        = "PRESENCE_API_URL"
	EnvToken          = "PRESENCE_API_TOKEN"
	EnvDefaultCommand = "PRESENCE_DEFAULT_COMMAND"
	EnvHTTPTimeout    = "PRESENCE_HTTP_TIMEOUT"
)

// Config is built once at startup and passed by value into each
// component; nothing mutates it afterwards.
type Config struct {
	BaseURL        string
	Token          string
	DefaultCommand string

	// HTTPTimeout bounds each presence API request. Zero means no
	// timeout: the watcher may block indefinitely on network I/O
	// rather than drop an update.
	HTTPTimeout time.Duration

	// RestartDelay is the pause before relaunching the signal
	// monitor after it exits.
	RestartDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		RestartDelay: 5 * time.Second,
	}
}

type fileConfig struct {
	APIURL         string `yaml:"api_url"`
	APIToken       string `yaml:"api_token"`
	DefaultCommand string `yaml:"default_command"`
	HTTPTimeout    string `yaml:"http_timeout"`
}

// Load reads configuration from ~/.config/presencewatch/config.yaml
// (if present) and the environment, with the environment winning. A
// .env file in the working directory is folded into the environment
// first. Both required values must resolve or Load fails before any
// network activity happens.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(defaultFilePath(), os.Getenv)
}

func load(filePath string, getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	if filePath != "" {
		raw, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			var fc fileConfig
			if err := yaml.Unmarshal(raw, &fc); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", filePath, err)
			}
			cfg.BaseURL = strings.TrimSpace(fc.APIURL)
			cfg.Token = strings.TrimSpace(fc.APIToken)
			cfg.DefaultCommand = strings.TrimSpace(fc.DefaultCommand)
			if v := strings.TrimSpace(fc.HTTPTimeout); v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return Config{}, fmt.Errorf("parse %s http_timeout: %w", filePath, err)
				}
				cfg.HTTPTimeout = d
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read %s: %w", filePath, err)
		}
	}

	if v := strings.TrimSpace(getenv(EnvBaseURL)); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(getenv(EnvToken)); v != "" {
		cfg.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvDefaultCommand)); v != "" {
		cfg.DefaultCommand = v
	}
	if v := strings.TrimSpace(getenv(EnvHTTPTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", EnvHTTPTimeout, err)
		}
		cfg.HTTPTimeout = d
	}

	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", EnvBaseURL)
	}
	if cfg.Token == "" {
		return Config{}, fmt.Errorf("%s is required", EnvToken)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

func defaultFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "presencewatch", "config.yaml")
}
