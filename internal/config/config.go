// Package config provides the configuration schema, loader, and provider
// registry for the Frinny backend.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables (optionally read from a .env file). The
// environment always wins, so a deployment can run from variables alone.
package config

import (
	"time"

	"github.com/Monterroso/Frinny-Backend/internal/mcp"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the root configuration structure.
// It is typically loaded with [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
	Store     StoreConfig     `yaml:"store"`
	Tools     ToolsConfig     `yaml:"tools"`
	MCP       MCPConfig       `yaml:"mcp"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Discord   DiscordConfig   `yaml:"discord"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":5001".
	ListenAddr string `yaml:"listen_addr" env:"FRINNY_LISTEN_ADDR"`

	// Environment is "development" or "production". It selects the
	// endpoints advertised to clients. FLASK_ENV is honoured when
	// FRINNY_ENV is unset.
	Environment string `yaml:"environment" env:"FRINNY_ENV"`

	// FlaskEnv carries the legacy FLASK_ENV variable. It is not read from YAML.
	FlaskEnv string `yaml:"-" env:"FLASK_ENV"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level" env:"FRINNY_LOG_LEVEL"`

	// AllowedOrigins are WebSocket origin patterns. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" env:"FRINNY_ALLOWED_ORIGINS" envSeparator:","`

	// RateLimit throttles events per user on the socket.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// ShutdownTimeout bounds graceful shutdown. Default 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// RateLimitConfig is a token bucket per user.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"FRINNY_RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"FRINNY_RATE_LIMIT_BURST"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the LLM provider and optional fallbacks tried in
// order when the primary fails.
type ProvidersConfig struct {
	LLM       ProviderEntry   `yaml:"llm"`
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// OpenAIAPIKey is OPENAI_API_KEY. It fills the api_key of every
	// "openai" entry that has none.
	OpenAIAPIKey string `yaml:"-" env:"OPENAI_API_KEY"`
}

// ProviderEntry is the configuration block of one LLM provider. Name is used
// to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "openai", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g. "gpt-4o").
	Model string `yaml:"model"`

	// Timeout bounds one completion request. Zero means the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AgentConfig tunes generation.
type AgentConfig struct {
	// DefaultPersona names the persona used when a request names none.
	// Hot-reloadable. Default "Frinny".
	DefaultPersona string `yaml:"default_persona" env:"DEFAULT_PERSONALITY"`

	// Temperature is the sampling temperature in [0, 2]. Default 0.2.
	Temperature *float64 `yaml:"temperature" env:"FRINNY_TEMPERATURE"`

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int `yaml:"max_tokens"`

	// MaxToolRounds bounds tool calling within one turn. Default 5.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// GenerateTimeout bounds one whole turn of generation, tools included.
	// Zero means no limit.
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
}

// StoreConfig selects and tunes the checkpoint store.
type StoreConfig struct {
	// Backends is the ranking tried at startup, most preferred first.
	// Memory is always appended. Default [mongo, sqlite, memory].
	Backends []string `yaml:"backends" env:"FRINNY_STORE_BACKENDS" envSeparator:","`

	MongoURI        string `yaml:"mongo_uri" env:"MONGODB_URI"`
	MongoDatabase   string `yaml:"mongo_database" env:"MONGODB_DATABASE"`
	MongoCollection string `yaml:"mongo_collection"`

	PostgresDSN string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`

	RedisURL string        `yaml:"redis_url" env:"REDIS_URL"`
	RedisTTL time.Duration `yaml:"redis_ttl"`

	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	PebbleDir  string `yaml:"pebble_dir" env:"PEBBLE_DIR"`

	// ConnectTimeout bounds each backend open attempt. Default 5s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// OpTimeout bounds each Get or Put. Default 5s.
	OpTimeout time.Duration `yaml:"op_timeout"`

	// CacheSize enables an LRU read cache of that many conversations.
	CacheSize int `yaml:"cache_size"`

	// MaxMessages windows stored history to the system message plus the
	// last N messages. Zero keeps everything.
	MaxMessages int `yaml:"max_messages"`
}

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	// TavilyAPIKey enables online rules lookup.
	TavilyAPIKey string `yaml:"tavily_api_key" env:"TAVILY_API_KEY"`

	// AdventuresDir holds adventure notes for adventure_reference. Empty
	// disables the adventure tools.
	AdventuresDir string `yaml:"adventures_dir" env:"FRINNY_ADVENTURES_DIR"`

	// DefaultTimeout applies to tools that declare no duration.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// MCPConfig holds the list of external Model Context Protocol servers.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique identifier for this server (used in logs).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport mcp.Transport `yaml:"transport"`

	// Command is launched when Transport is "stdio".
	Command string `yaml:"command"`

	// URL is the endpoint when Transport is "streamable-http".
	URL string `yaml:"url"`

	// Env holds additional environment variables for a stdio subprocess.
	Env map[string]string `yaml:"env"`
}

// FeedbackConfig configures the feedback sink.
type FeedbackConfig struct {
	// Path is the JSON-lines file feedback is appended to. Empty keeps
	// feedback in memory.
	Path string `yaml:"path" env:"FRINNY_FEEDBACK_PATH"`
}

// DiscordConfig enables the optional Discord relay.
type DiscordConfig struct {
	Token   string `yaml:"token" env:"DISCORD_TOKEN"`
	GuildID string `yaml:"guild_id" env:"DISCORD_GUILD_ID"`
}

// Defaults.
const (
	DefaultListenAddr      = ":5001"
	DefaultModel           = "gpt-4o"
	DefaultTemperature     = 0.2
	DefaultMaxToolRounds   = 5
	DefaultPersona         = "Frinny"
	DefaultMongoDatabase   = "frinny"
	DefaultMongoCollection = "agent_state"
	DefaultStoreTimeout    = 5 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultRateLimitRPS    = 5
	DefaultRateLimitBurst  = 10
)

// DefaultStoreBackends is the default checkpoint ranking.
var DefaultStoreBackends = []string{"mongo", "sqlite", "memory"}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero field of cfg that has a default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.Environment == "" {
		s.Environment = EnvDevelopment
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.RateLimit.RPS <= 0 {
		s.RateLimit.RPS = DefaultRateLimitRPS
	}
	if s.RateLimit.Burst <= 0 {
		s.RateLimit.Burst = DefaultRateLimitBurst
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = "openai"
	}
	if cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = DefaultModel
	}

	a := &cfg.Agent
	if a.DefaultPersona == "" {
		a.DefaultPersona = DefaultPersona
	}
	if a.Temperature == nil {
		t := DefaultTemperature
		a.Temperature = &t
	}
	if a.MaxToolRounds <= 0 {
		a.MaxToolRounds = DefaultMaxToolRounds
	}

	st := &cfg.Store
	if len(st.Backends) == 0 {
		st.Backends = append([]string(nil), DefaultStoreBackends...)
	}
	if st.MongoDatabase == "" {
		st.MongoDatabase = DefaultMongoDatabase
	}
	if st.MongoCollection == "" {
		st.MongoCollection = DefaultMongoCollection
	}
	if st.ConnectTimeout <= 0 {
		st.ConnectTimeout = DefaultStoreTimeout
	}
	if st.OpTimeout <= 0 {
		st.OpTimeout = DefaultStoreTimeout
	}
}

// TemperatureValue returns the configured temperature or the default.
func (a AgentConfig) TemperatureValue() float64 {
	if a.Temperature == nil {
		return DefaultTemperature
	}
	return *a.Temperature
}
