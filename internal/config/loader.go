package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Monterroso/Frinny-Backend/internal/mcp"
)

// ValidProviderNames lists known LLM provider names. Used by [Validate] to
// warn about unrecognised names.
var ValidProviderNames = []string{"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// ValidStoreBackends lists the checkpoint backends a ranking may name.
var ValidStoreBackends = []string{"mongo", "postgres", "redis", "sqlite", "pebble", "memory"}

// KnownPersonas lists the persona names [Validate] accepts. It is set by
// the caller that owns the persona registry; nil skips the check.
var KnownPersonas []string

// LoadDotEnv loads variables from the given .env files (default ".env")
// into the process environment without overriding variables already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path, overlays the environment,
// applies defaults and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromReader(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r (nil for none), overlays the
// environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if r != nil {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg. Variables that are set
// replace the YAML value; unset variables leave it alone.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	if _, ok := os.LookupEnv("FRINNY_ENV"); !ok && cfg.Server.FlaskEnv != "" {
		cfg.Server.Environment = cfg.Server.FlaskEnv
	}
	key := cfg.Providers.OpenAIAPIKey
	if key != "" {
		if cfg.Providers.LLM.APIKey == "" && (cfg.Providers.LLM.Name == "" || cfg.Providers.LLM.Name == "openai") {
			cfg.Providers.LLM.APIKey = key
		}
		for i := range cfg.Providers.Fallbacks {
			fb := &cfg.Providers.Fallbacks[i]
			if fb.Name == "openai" && fb.APIKey == "" {
				fb.APIKey = key
			}
		}
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	switch strings.ToLower(cfg.Server.Environment) {
	case "", EnvDevelopment, EnvProduction:
	default:
		slog.Warn("unknown server.environment; development endpoints will be advertised", "environment", cfg.Server.Environment)
	}
	if cfg.Server.RateLimit.RPS < 0 || cfg.Server.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("server.rate_limit values must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	validateProviderName("providers.llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		prefix := fmt.Sprintf("providers.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		validateProviderName(prefix, fb.Name)
	}

	// Agent
	if t := cfg.Agent.Temperature; t != nil && (math.IsNaN(*t) || *t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.Agent.MaxTokens < 0 {
		errs = append(errs, errors.New("agent.max_tokens must not be negative"))
	}
	if cfg.Agent.MaxToolRounds < 0 {
		errs = append(errs, errors.New("agent.max_tool_rounds must not be negative"))
	}
	if p := cfg.Agent.DefaultPersona; p != "" && KnownPersonas != nil &&
		!slices.ContainsFunc(KnownPersonas, func(k string) bool { return strings.EqualFold(k, p) }) {
		errs = append(errs, fmt.Errorf("agent.default_persona %q is unknown; known: %s", p, strings.Join(KnownPersonas, ", ")))
	}

	// Store
	for i, b := range cfg.Store.Backends {
		if !slices.Contains(ValidStoreBackends, b) {
			errs = append(errs, fmt.Errorf("store.backends[%d] %q is invalid; valid values: %s", i, b, strings.Join(ValidStoreBackends, ", ")))
		}
	}
	if cfg.Store.CacheSize < 0 || cfg.Store.MaxMessages < 0 {
		errs = append(errs, errors.New("store.cache_size and store.max_messages must not be negative"))
	}
	if cfg.Store.MaxMessages == 1 {
		errs = append(errs, errors.New("store.max_messages must be 0 (off) or at least 2"))
	}

	// MCP servers
	names := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := names[srv.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
		} else {
			names[srv.Name] = i
		}
		if !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not in
// [ValidProviderNames].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}
