// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development against a backend on localhost.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// ContextPlaceholder is replaced by the call or conversation context
// identifier in channel URLs.
const ContextPlaceholder = "{context}"

// Config is the master configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// API configures the backend REST collaborators (credential,
	// history, upload, file recovery).
	API APIConfig `yaml:"api"`

	// Media configures how file references are resolved and recovered.
	Media MediaConfig `yaml:"media"`

	// Signaling configures the call signaling channel.
	Signaling ChannelConfig `yaml:"signaling"`

	// Chat configures the conversation channel.
	Chat ChannelConfig `yaml:"chat"`

	// Reconnect is the retry policy shared by both channels.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// ICE lists the STUN/TURN servers used for peer connections.
	ICE ICEConfig `yaml:"ice"`

	// EnvFile is a dotenv file, relative to the config file, whose
	// values fill ${VAR} references the process environment leaves
	// unset. Optional.
	EnvFile string `yaml:"env_file,omitempty"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	API       *APIConfig       `yaml:"api,omitempty"`
	Media     *MediaConfig     `yaml:"media,omitempty"`
	Signaling *ChannelConfig   `yaml:"signaling,omitempty"`
	Chat      *ChannelConfig   `yaml:"chat,omitempty"`
	Reconnect *ReconnectConfig `yaml:"reconnect,omitempty"`
	ICE       *ICEConfig       `yaml:"ice,omitempty"`
}

// APIConfig configures the backend HTTP API.
type APIConfig struct {
	// BaseURL is the backend origin, e.g. "https://api.example.com".
	BaseURL string `yaml:"base_url"`

	// SessionToken authenticates REST calls (bearer). It is normally
	// "${RENDEZVOUS_SESSION_TOKEN}" so the secret stays out of the file.
	SessionToken string `yaml:"session_token"`

	// RequestTimeout bounds every REST call, including credential
	// fetches. Default: 10s
	RequestTimeout string `yaml:"request_timeout"`
}

// MediaConfig configures file reference handling.
type MediaConfig struct {
	// BaseURL is where relative file references are rooted. Defaults
	// to the API base URL when empty.
	BaseURL string `yaml:"base_url"`

	// Prefix is the path under which the backend serves uploads.
	// Default: /media/
	Prefix string `yaml:"prefix"`

	// RecoveryCeiling is the maximum number of recovery requests per
	// message before the file is marked unavailable. Default: 3
	RecoveryCeiling int `yaml:"recovery_ceiling"`

	// UnavailablePlaceholder is substituted for files that could not
	// be recovered.
	UnavailablePlaceholder string `yaml:"unavailable_placeholder"`
}

// ChannelConfig configures one websocket channel.
type ChannelConfig struct {
	// URL is the websocket endpoint template. ContextPlaceholder is
	// replaced with the escaped context identifier.
	URL string `yaml:"url"`

	// TokenParameter is the query parameter carrying the access token.
	// Default: token
	TokenParameter string `yaml:"token_parameter"`
}

// Endpoint returns the URL for a given call or conversation context.
func (c ChannelConfig) Endpoint(contextID string) string {
	return strings.ReplaceAll(c.URL, ContextPlaceholder, url.PathEscape(contextID))
}

// ReconnectConfig is the retry policy of the reconnecting channel.
type ReconnectConfig struct {
	// MaxRetries is the retry ceiling; past it the channel fails until
	// manually reset. Default: 5
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the fixed delay before reconnecting after an
	// abnormal close. Default: 3s
	RetryDelay string `yaml:"retry_delay"`

	// CredentialRetryDelay is the delay after a failed credential
	// fetch. Default: 5s
	CredentialRetryDelay string `yaml:"credential_retry_delay"`

	// ConnectTimeout bounds each credential fetch and each dial.
	// Default: 10s
	ConnectTimeout string `yaml:"connect_timeout"`

	// TerminalCloseCodes are server close codes that must not trigger
	// a reconnect. Default: [4001, 4002, 4003] (authentication failed,
	// invalid credential, session expired)
	TerminalCloseCodes []int `yaml:"terminal_close_codes"`
}

// Timing is the parsed duration view of ReconnectConfig.
type Timing struct {
	RetryDelay           time.Duration
	CredentialRetryDelay time.Duration
	ConnectTimeout       time.Duration
}

// Timing parses the duration fields.
func (r ReconnectConfig) Timing() (Timing, error) {
	var timing Timing
	var err error
	if timing.RetryDelay, err = parseDuration("reconnect.retry_delay", r.RetryDelay); err != nil {
		return Timing{}, err
	}
	if timing.CredentialRetryDelay, err = parseDuration("reconnect.credential_retry_delay", r.CredentialRetryDelay); err != nil {
		return Timing{}, err
	}
	if timing.ConnectTimeout, err = parseDuration("reconnect.connect_timeout", r.ConnectTimeout); err != nil {
		return Timing{}, err
	}
	return timing, nil
}

// ICEConfig lists ICE servers.
type ICEConfig struct {
	Servers []ICEServerConfig `yaml:"servers"`
}

// ICEServerConfig is one STUN or TURN server.
type ICEServerConfig struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// Default returns the default configuration. The defaults fill in
// fields the file leaves empty; they are not a substitute for the file.
func Default() *Config {
	return &Config{
		Environment: Development,
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: "10s",
		},
		Media: MediaConfig{
			Prefix:                 "/media/",
			RecoveryCeiling:        3,
			UnavailablePlaceholder: "about:blank#file-unavailable",
		},
		Signaling: ChannelConfig{
			URL:            "ws://localhost:8000/ws/call/" + ContextPlaceholder + "/",
			TokenParameter: "token",
		},
		Chat: ChannelConfig{
			URL:            "ws://localhost:8000/ws/chat/" + ContextPlaceholder + "/",
			TokenParameter: "token",
		},
		Reconnect: ReconnectConfig{
			MaxRetries:           5,
			RetryDelay:           "3s",
			CredentialRetryDelay: "5s",
			ConnectTimeout:       "10s",
			TerminalCloseCodes:   []int{4001, 4002, 4003},
		},
		ICE: ICEConfig{
			Servers: []ICEServerConfig{
				{URLs: []string{"stun:stun.l.google.com:19302"}},
			},
		},
	}
}

// Load loads configuration from the RENDEZVOUS_CONFIG environment
// variable. There is no fallback when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("RENDEZVOUS_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("RENDEZVOUS_CONFIG environment variable not set; " +
			"set it to the path of your rendezvous.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path: defaults,
// then the file, then the environment section, then variable expansion.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	dotenv, err := cfg.readEnvFile(filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables(dotenv)
	return cfg, nil
}

// readEnvFile reads EnvFile, if set. The process environment is not
// modified.
func (c *Config) readEnvFile(configDir string) (map[string]string, error) {
	if c.EnvFile == "" {
		return nil, nil
	}
	path := c.EnvFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(configDir, path)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env_file %s: %w", path, err)
	}
	return values, nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.API != nil {
		setString(&c.API.BaseURL, overrides.API.BaseURL)
		setString(&c.API.SessionToken, overrides.API.SessionToken)
		setString(&c.API.RequestTimeout, overrides.API.RequestTimeout)
	}
	if overrides.Media != nil {
		setString(&c.Media.BaseURL, overrides.Media.BaseURL)
		setString(&c.Media.Prefix, overrides.Media.Prefix)
		setString(&c.Media.UnavailablePlaceholder, overrides.Media.UnavailablePlaceholder)
		if overrides.Media.RecoveryCeiling != 0 {
			c.Media.RecoveryCeiling = overrides.Media.RecoveryCeiling
		}
	}
	if overrides.Signaling != nil {
		setString(&c.Signaling.URL, overrides.Signaling.URL)
		setString(&c.Signaling.TokenParameter, overrides.Signaling.TokenParameter)
	}
	if overrides.Chat != nil {
		setString(&c.Chat.URL, overrides.Chat.URL)
		setString(&c.Chat.TokenParameter, overrides.Chat.TokenParameter)
	}
	if overrides.Reconnect != nil {
		if overrides.Reconnect.MaxRetries != 0 {
			c.Reconnect.MaxRetries = overrides.Reconnect.MaxRetries
		}
		setString(&c.Reconnect.RetryDelay, overrides.Reconnect.RetryDelay)
		setString(&c.Reconnect.CredentialRetryDelay, overrides.Reconnect.CredentialRetryDelay)
		setString(&c.Reconnect.ConnectTimeout, overrides.Reconnect.ConnectTimeout)
		if len(overrides.Reconnect.TerminalCloseCodes) > 0 {
			c.Reconnect.TerminalCloseCodes = overrides.Reconnect.TerminalCloseCodes
		}
	}
	if overrides.ICE != nil && len(overrides.ICE.Servers) > 0 {
		c.ICE.Servers = overrides.ICE.Servers
	}
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in URL, token,
// and ICE credential fields. ${RENDEZVOUS_API} refers to the expanded
// API base URL. Lookup order is derived variables, the process
// environment, dotenv, then the default.
func (c *Config) expandVariables(dotenv map[string]string) {
	vars := map[string]string{}

	c.API.BaseURL = expandVars(c.API.BaseURL, vars, dotenv)
	vars["RENDEZVOUS_API"] = c.API.BaseURL

	c.API.SessionToken = expandVars(c.API.SessionToken, vars, dotenv)
	c.Media.BaseURL = expandVars(c.Media.BaseURL, vars, dotenv)
	c.Signaling.URL = expandVars(c.Signaling.URL, vars, dotenv)
	c.Chat.URL = expandVars(c.Chat.URL, vars, dotenv)
	for index := range c.ICE.Servers {
		server := &c.ICE.Servers[index]
		server.Username = expandVars(server.Username, vars, dotenv)
		server.Credential = expandVars(server.Credential, vars, dotenv)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars, dotenv map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		if value := dotenv[name]; value != "" {
			return value
		}
		return defaultValue
	})
}

// MediaBaseURL returns Media.BaseURL, falling back to API.BaseURL.
func (c *Config) MediaBaseURL() string {
	if c.Media.BaseURL != "" {
		return c.Media.BaseURL
	}
	return c.API.BaseURL
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	allowedHTTP := []string{"http", "https"}
	allowedWS := []string{"ws", "wss"}
	if c.Environment == Production {
		allowedHTTP = []string{"https"}
		allowedWS = []string{"wss"}
	}

	errs = append(errs, checkURL("api.base_url", c.API.BaseURL, allowedHTTP))
	errs = append(errs, checkURL("media.base_url", c.MediaBaseURL(), allowedHTTP))
	errs = append(errs, checkURL("signaling.url", c.Signaling.URL, allowedWS))
	errs = append(errs, checkURL("chat.url", c.Chat.URL, allowedWS))

	if !strings.Contains(c.Signaling.URL, ContextPlaceholder) {
		errs = append(errs, fmt.Errorf("signaling.url must contain %s", ContextPlaceholder))
	}
	if !strings.Contains(c.Chat.URL, ContextPlaceholder) {
		errs = append(errs, fmt.Errorf("chat.url must contain %s", ContextPlaceholder))
	}

	if _, err := parseDuration("api.request_timeout", c.API.RequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Reconnect.Timing(); err != nil {
		errs = append(errs, err)
	}
	if c.Reconnect.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_retries must not be negative"))
	}
	for _, code := range c.Reconnect.TerminalCloseCodes {
		if code < 1000 || code > 4999 {
			errs = append(errs, fmt.Errorf("reconnect.terminal_close_codes: %d is not a websocket close code", code))
		}
	}

	if c.Media.RecoveryCeiling < 1 {
		errs = append(errs, fmt.Errorf("media.recovery_ceiling must be at least 1"))
	}
	if !strings.HasPrefix(c.Media.Prefix, "/") {
		errs = append(errs, fmt.Errorf("media.prefix must start with /"))
	}

	for index, server := range c.ICE.Servers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice.servers[%d] has no urls", index))
		}
	}

	return errors.Join(errs...)
}

// RequestTimeout returns the parsed API request timeout. Call after
// Validate.
func (c *Config) RequestTimeout() time.Duration {
	timeout, _ := parseDuration("api.request_timeout", c.API.RequestTimeout)
	return timeout
}

func checkURL(field, raw string, schemes []string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := url.Parse(strings.ReplaceAll(raw, ContextPlaceholder, "x"))
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			if parsed.Host == "" {
				return fmt.Errorf("%s: missing host in %q", field, raw)
			}
			return nil
		}
	}
	return fmt.Errorf("%s: scheme %q not allowed (want one of %v)", field, parsed.Scheme, schemes)
}

func parseDuration(field, raw string) (time.Duration, error) {
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, raw)
	}
	return duration, nil
}
