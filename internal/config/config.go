// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/secrets"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// EnvPrefix prefixes every aegis environment variable.
const EnvPrefix = "AEGIS"

// Config is the top-level aegis configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the HTTP gateway.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// TurnTimeout bounds one chat turn, backend call included.
	TurnTimeout time.Duration   `mapstructure:"turn_timeout"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles requests per client IP. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// SafetyConfig configures the risk scorer and entity discovery.
type SafetyConfig struct {
	// Backend is http or local. Empty picks http when both URLs are set.
	Backend        string        `mapstructure:"backend"`
	GuardrailURL   string        `mapstructure:"guardrail_url"`
	DiscoveryURL   string        `mapstructure:"discovery_url"`
	Threshold      float64       `mapstructure:"threshold"`
	ScoreThreshold float64       `mapstructure:"score_threshold"`
	Timeout        time.Duration `mapstructure:"timeout"`
	// ToolTimeout bounds each safety tool call requested by a model.
	ToolTimeout time.Duration `mapstructure:"tool_timeout"`
}

// ProviderConfig holds credentials and endpoint for one backend kind.
type ProviderConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	APIVersion string        `mapstructure:"api_version"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ProvidersConfig holds per-kind backend settings.
type ProvidersConfig struct {
	// Enabled restricts the backend kinds offered to users. Empty means all.
	Enabled    []string       `mapstructure:"enabled"`
	OpenAI     ProviderConfig `mapstructure:"openai"`
	Anthropic  ProviderConfig `mapstructure:"anthropic"`
	Google     ProviderConfig `mapstructure:"google"`
	OpenRouter ProviderConfig `mapstructure:"openrouter"`
	Azure      ProviderConfig `mapstructure:"azure"`
	// Background runs on the OpenAI Responses API and inherits the OpenAI
	// key and base URL when its own are unset.
	Background ProviderConfig `mapstructure:"background"`
}

// AuthConfig maps bearer tokens to users. No tokens means development mode.
type AuthConfig struct {
	Tokens []TokenConfig `mapstructure:"tokens"`
}

// TokenConfig is one accepted bearer token.
type TokenConfig struct {
	Token  string     `mapstructure:"token"`
	UserID string     `mapstructure:"user_id"`
	Role   store.Role `mapstructure:"role"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envKeys have no default, so AutomaticEnv alone would not surface them to
// Unmarshal. They are bound explicitly.
var envKeys = []string{
	"safety.backend",
	"safety.guardrail_url",
	"safety.discovery_url",
	"providers.anthropic.base_url",
	"providers.google.model",
	"providers.google.base_url",
	"providers.openrouter.model",
	"providers.openrouter.base_url",
	"providers.azure.model",
	"providers.background.api_key",
	"providers.background.base_url",
	"providers.background.model",
}

// legacyEnv maps keys to the environment names of earlier deployments,
// honoured after the AEGIS_ name.
var legacyEnv = map[string][]string{
	"providers.enabled":            {"ENABLED_LLM_PROVIDERS"},
	"providers.openai.api_key":     {"OPENAI_API_KEY"},
	"providers.openai.base_url":    {"OPENAI_BASE_URL"},
	"providers.openai.model":       {"OPENAI_MODEL"},
	"providers.anthropic.api_key":  {"ANTHROPIC_API_KEY"},
	"providers.anthropic.model":    {"ANTHROPIC_MODEL"},
	"providers.google.api_key":     {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"providers.openrouter.api_key": {"OPENROUTER_API_KEY"},
	"providers.azure.api_key":      {"AZURE_OPENAI_API_KEY"},
	"providers.azure.base_url":     {"AZURE_OPENAI_ENDPOINT"},
	"providers.azure.api_version":  {"AZURE_OPENAI_API_VERSION"},
	"safety.threshold":             {"GUARDRAIL_THRESHOLD", "PROTEGRITY_GUARDRAIL_THRESHOLD"},
}

// envName is the AEGIS_ variable for a dotted key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func bindEnv(v *viper.Viper) error {
	bind := func(key string, legacy ...string) error {
		names := append([]string{key, envName(key)}, legacy...)
		if err := v.BindEnv(names...); err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeConfigLoadReadFailure, "binding env for %s", key)
		}
		return nil
	}
	for _, key := range envKeys {
		if err := bind(key); err != nil {
			return err
		}
	}
	for key, legacy := range legacyEnv {
		if err := bind(key, legacy...); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.turn_timeout", 90*time.Second)
	v.SetDefault("server.rate_limit.requests_per_second", 0.0)
	v.SetDefault("server.rate_limit.burst", 20)
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", "aegis.db")
	v.SetDefault("safety.threshold", 0.8)
	v.SetDefault("safety.score_threshold", 0.6)
	v.SetDefault("safety.timeout", 10*time.Second)
	v.SetDefault("safety.tool_timeout", 15*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	for _, kind := range provider.Kinds {
		if kind == provider.KindDummy {
			continue
		}
		v.SetDefault("providers."+string(kind)+".timeout", 60*time.Second)
	}
}

// Load reads configuration from path (or the default search locations when
// empty) with AEGIS_ environment overrides and the legacy variable names.
// Keyring references are resolved through secretStore when it is non-nil.
// The returned string is the config file actually read, if any.
func Load(path string, secretStore secrets.Store) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, "", err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", sigilerr.Wrapf(err, sigilerr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
	} else {
		v.SetConfigName("aegis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := DefaultConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, "", sigilerr.Wrapf(err, sigilerr.CodeConfigParseInvalidFormat, "reading config")
			}
		}
	}

	if secretStore != nil {
		secrets.ResolveViperSecrets(v, secretStore)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", sigilerr.Wrapf(err, sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config")
	}
	cfg.Providers.Enabled = splitList(cfg.Providers.Enabled)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, "", sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, v.ConfigFileUsed(), nil
}

// splitList accepts both YAML lists and a single comma-separated value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the configuration for logical errors. It collects every
// problem rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateSafety()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func invalid(format string, args ...any) error {
	return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = append(errs, invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
	} else if port, err := strconv.Atoi(portStr); err != nil {
		errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("server.listen port must be between 1 and 65535, got %d", port))
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.TurnTimeout < 0 {
		errs = append(errs, invalid("server timeouts must not be negative"))
	}

	if rl := c.Server.RateLimit; rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("server.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	} else if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("server.rate_limit.burst must be positive when a rate is set, got %d", rl.Burst))
	}

	return errs
}

func (c *Config) validateStore() []error {
	var errs []error

	if c.Store.Backend != "sqlite" {
		errs = append(errs, invalid("store.backend must be one of [sqlite], got %q", c.Store.Backend))
	}
	if c.Store.Path == "" {
		errs = append(errs, invalid("store.path must not be empty"))
	}

	return errs
}

func (c *Config) validateSafety() []error {
	var errs []error
	s := c.Safety

	switch s.Backend {
	case "", "local":
	case "http":
		if s.GuardrailURL == "" || s.DiscoveryURL == "" {
			errs = append(errs, invalid("safety.backend http requires safety.guardrail_url and safety.discovery_url"))
		}
	default:
		errs = append(errs, invalid("safety.backend must be one of [http, local], got %q", s.Backend))
	}

	if s.Threshold < 0 || s.Threshold > 1 {
		errs = append(errs, invalid("safety.threshold must be within [0, 1], got %g", s.Threshold))
	}
	if s.ScoreThreshold < 0 || s.ScoreThreshold > 1 {
		errs = append(errs, invalid("safety.score_threshold must be within [0, 1], got %g", s.ScoreThreshold))
	}
	if s.Timeout < 0 || s.ToolTimeout < 0 {
		errs = append(errs, invalid("safety timeouts must not be negative"))
	}

	return errs
}

func (c *Config) validateProviders() []error {
	var errs []error

	for i, name := range c.Providers.Enabled {
		if !provider.Kind(name).Valid() {
			errs = append(errs, invalid("providers.enabled[%d] %q is not a known backend kind", i, name))
		}
	}

	return errs
}

func (c *Config) validateAuth() []error {
	var errs []error

	seen := make(map[string]bool, len(c.Auth.Tokens))
	for i, t := range c.Auth.Tokens {
		if t.Token == "" {
			errs = append(errs, invalid("auth.tokens[%d].token must not be empty", i))
		} else if seen[t.Token] {
			errs = append(errs, invalid("auth.tokens[%d] duplicates an earlier token", i))
		}
		seen[t.Token] = true

		if t.UserID == "" {
			errs = append(errs, invalid("auth.tokens[%d].user_id must not be empty", i))
		}
		if !t.Role.Valid() {
			errs = append(errs, invalid("auth.tokens[%d].role must be one of [STANDARD, PRIVILEGED], got %q", i, t.Role))
		}
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, invalid("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}

// For returns the settings of one backend kind.
func (p ProvidersConfig) For(kind provider.Kind) ProviderConfig {
	switch kind {
	case provider.KindOpenAI:
		return p.OpenAI
	case provider.KindAnthropic:
		return p.Anthropic
	case provider.KindGoogle:
		return p.Google
	case provider.KindOpenRouter:
		return p.OpenRouter
	case provider.KindAzure:
		return p.Azure
	case provider.KindBackground:
		bg := p.Background
		if bg.APIKey == "" {
			bg.APIKey = p.OpenAI.APIKey
		}
		if bg.BaseURL == "" {
			bg.BaseURL = p.OpenAI.BaseURL
		}
		return bg
	default:
		return ProviderConfig{}
	}
}

// Credentials adapts the providers section to provider.CredentialSource.
func (p ProvidersConfig) Credentials(kind provider.Kind) provider.Credentials {
	pc := p.For(kind)
	return provider.Credentials{
		APIKey:     pc.APIKey,
		BaseURL:    pc.BaseURL,
		Model:      pc.Model,
		APIVersion: pc.APIVersion,
		Timeout:    pc.Timeout,
	}
}

// Configured lists the kinds that have an API key, in provider.Kinds order.
func (p ProvidersConfig) Configured() []provider.Kind {
	var out []provider.Kind
	for _, kind := range provider.Kinds {
		if kind != provider.KindDummy && p.For(kind).APIKey != "" {
			out = append(out, kind)
		}
	}
	return out
}
