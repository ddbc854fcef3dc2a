// Package config loads askstream settings from a YAML file and the
// environment, and watches the file for changes.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devsecrin/askstream/pkg/ask"
	"github.com/devsecrin/askstream/pkg/types"
)

const (
	// DefaultBaseURL is the backend API root of a local development stack.
	DefaultBaseURL = "http://localhost:8000/api/v1"
	// DefaultListen is the relay's default listen address.
	DefaultListen = "127.0.0.1:8090"
	// DefaultFile is the config file looked up in the working directory.
	DefaultFile = "askstream.yaml"
)

// Environment variables that override the file.
const (
	EnvBaseURL = "ASKSTREAM_BASE_URL"
	EnvAPIURL  = "ASKSTREAM_API_URL" // same as EnvBaseURL; EnvBaseURL wins
	EnvListen  = "ASKSTREAM_LISTEN"
)

// Config is the root of askstream.yaml.
type Config struct {
	Backend  Backend  `yaml:"backend"`
	Defaults Defaults `yaml:"defaults"`
	Relay    Relay    `yaml:"relay"`
}

// Backend describes how to reach the ask endpoint.
type Backend struct {
	BaseURL string            `yaml:"base_url"`
	Path    string            `yaml:"path"`
	Headers map[string]string `yaml:"headers"`
	// Timeout bounds the wait for response headers. Streams themselves are
	// not limited.
	Timeout time.Duration `yaml:"timeout"`
	Retry   Retry         `yaml:"retry"`
}

// Retry opts into retries of connection establishment.
type Retry struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// Defaults are applied to questions that do not set their own values.
type Defaults struct {
	Agent        types.AgentType  `yaml:"agent"`
	SearchType   types.SearchType `yaml:"search_type"`
	ContextLimit int              `yaml:"context_limit"`
}

// Relay configures the relay server.
type Relay struct {
	Listen         string   `yaml:"listen"`
	OriginPatterns []string `yaml:"origin_patterns"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: Backend{
			BaseURL: DefaultBaseURL,
			Path:    ask.DefaultPath,
			Timeout: 30 * time.Second,
		},
		Defaults: Defaults{
			Agent:        types.AgentPathfinder,
			SearchType:   types.SearchHybrid,
			ContextLimit: ask.DefaultContextLimit,
		},
		Relay: Relay{
			Listen: DefaultListen,
		},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path skips the file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// LoadDefault loads DefaultFile when it exists and the built-in defaults
// otherwise, with environment overrides either way.
func LoadDefault() (*Config, string, error) {
	if _, err := os.Stat(DefaultFile); err == nil {
		cfg, err := Load(DefaultFile)
		return cfg, DefaultFile, err
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("config: %w", err)
	}
	cfg, err := Load("")
	return cfg, "", err
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvAPIURL); v != "" {
		c.Backend.BaseURL = v
	}
	if v := getenv(EnvBaseURL); v != "" {
		c.Backend.BaseURL = v
	}
	if v := getenv(EnvListen); v != "" {
		c.Relay.Listen = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Backend.BaseURL)
	switch {
	case c.Backend.BaseURL == "":
		errs = append(errs, errors.New("backend.base_url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("backend.base_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("backend.base_url: scheme must be http or https, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("backend.base_url: missing host"))
	}
	if c.Backend.Timeout < 0 {
		errs = append(errs, errors.New("backend.timeout must not be negative"))
	}
	if r := c.Backend.Retry; r.MaxRetries < 0 || r.InitialBackoff < 0 || r.MaxBackoff < 0 {
		errs = append(errs, errors.New("backend.retry values must not be negative"))
	}

	if !c.Defaults.Agent.Valid() {
		errs = append(errs, fmt.Errorf("defaults.agent: unknown agent type %q", c.Defaults.Agent))
	}
	if !c.Defaults.SearchType.Valid() {
		errs = append(errs, fmt.Errorf("defaults.search_type: unknown search type %q", c.Defaults.SearchType))
	}
	if n := c.Defaults.ContextLimit; n < 0 || n > ask.MaxContextLimit {
		errs = append(errs, fmt.Errorf("defaults.context_limit: %d out of range [0, %d]", n, ask.MaxContextLimit))
	}

	if _, _, err := net.SplitHostPort(c.Relay.Listen); err != nil {
		errs = append(errs, fmt.Errorf("relay.listen: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ClientConfig converts the backend section for ask.NewClient.
func (c *Config) ClientConfig(logger *slog.Logger) ask.ClientConfig {
	cc := ask.ClientConfig{
		BaseURL: strings.TrimSpace(c.Backend.BaseURL),
		Path:    c.Backend.Path,
		Headers: c.Backend.Headers,
		Logger:  logger,
	}

	if c.Backend.Timeout > 0 {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = c.Backend.Timeout
		cc.HTTPClient = &http.Client{Transport: transport}
	}

	if r := c.Backend.Retry; r.MaxRetries > 0 {
		cc.Retry = ask.DefaultRetryConfig()
		cc.Retry.MaxRetries = r.MaxRetries
		if r.InitialBackoff > 0 {
			cc.Retry.InitialBackoff = r.InitialBackoff
		}
		if r.MaxBackoff > 0 {
			cc.Retry.MaxBackoff = r.MaxBackoff
		}
	}
	return cc
}

// RequestOptions returns the request defaults as options for ask.NewStreamRequest.
func (c *Config) RequestOptions() []ask.RequestOption {
	return []ask.RequestOption{
		ask.WithSearchType(c.Defaults.SearchType),
		ask.WithContextLimit(c.Defaults.ContextLimit),
	}
}
