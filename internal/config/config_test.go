package config_test

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Monterroso/Frinny-Backend/internal/config"
	"github.com/Monterroso/Frinny-Backend/internal/mcp"
	"github.com/Monterroso/Frinny-Backend/pkg/provider/llm"
	llmmock "github.com/Monterroso/Frinny-Backend/pkg/provider/llm/mock"
)

const fullYAML = `
server:
  listen_addr: ":8080"
  environment: production
  log_level: debug
  allowed_origins: ["https://*.forge-vtt.com"]
  rate_limit:
    rps: 2
    burst: 4
  shutdown_timeout: 30s
providers:
  llm:
    name: openai
    model: gpt-4o-mini
    api_key: sk-test
    timeout: 45s
  fallbacks:
    - name: anthropic
      model: claude-haiku
      api_key: ak-test
agent:
  default_persona: GameMaster
  temperature: 0.7
  max_tokens: 800
  max_tool_rounds: 3
  generate_timeout: 90s
store:
  backends: [postgres, redis, memory]
  postgres_dsn: postgres://frinny@localhost/frinny
  redis_url: redis://localhost:6379/0
  redis_ttl: 24h
  cache_size: 256
  max_messages: 40
tools:
  tavily_api_key: tvly-test
  adventures_dir: ./adventures
mcp:
  servers:
    - name: archives
      transport: streamable-http
      url: http://localhost:9000/mcp
feedback:
  path: ./feedback.jsonl
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := cfg.Server
	if s.ListenAddr != ":8080" || s.LogLevel != config.LogDebug || s.ShutdownTimeout != 30*time.Second {
		t.Errorf("server = %+v", s)
	}
	if s.RateLimit != (config.RateLimitConfig{RPS: 2, Burst: 4}) {
		t.Errorf("rate_limit = %+v", s.RateLimit)
	}
	if len(s.AllowedOrigins) != 1 {
		t.Errorf("allowed_origins = %v", s.AllowedOrigins)
	}

	p := cfg.Providers
	if p.LLM.Model != "gpt-4o-mini" || p.LLM.Timeout != 45*time.Second {
		t.Errorf("llm = %+v", p.LLM)
	}
	if len(p.Fallbacks) != 1 || p.Fallbacks[0].Name != "anthropic" {
		t.Errorf("fallbacks = %+v", p.Fallbacks)
	}

	a := cfg.Agent
	if a.TemperatureValue() != 0.7 || a.MaxTokens != 800 || a.MaxToolRounds != 3 || a.GenerateTimeout != 90*time.Second {
		t.Errorf("agent = %+v", a)
	}

	st := cfg.Store
	if !slices.Equal(st.Backends, []string{"postgres", "redis", "memory"}) {
		t.Errorf("backends = %v", st.Backends)
	}
	if st.RedisTTL != 24*time.Hour || st.CacheSize != 256 || st.MaxMessages != 40 {
		t.Errorf("store = %+v", st)
	}
	if st.OpTimeout != config.DefaultStoreTimeout || st.MongoCollection != config.DefaultMongoCollection {
		t.Errorf("store defaults not applied: %+v", st)
	}

	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Transport != mcp.TransportStreamableHTTP {
		t.Errorf("mcp = %+v", cfg.MCP)
	}
	if cfg.Tools.AdventuresDir != "./adventures" {
		t.Errorf("tools = %+v", cfg.Tools)
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if cfg.Server.ListenAddr != ":5001" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.Environment != config.EnvDevelopment {
		t.Errorf("environment = %q", cfg.Server.Environment)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("llm = %+v", cfg.Providers.LLM)
	}
	if cfg.Agent.DefaultPersona != "Frinny" || cfg.Agent.TemperatureValue() != 0.2 || cfg.Agent.MaxToolRounds != 5 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if !slices.Equal(cfg.Store.Backends, []string{"mongo", "sqlite", "memory"}) {
		t.Errorf("backends = %v", cfg.Store.Backends)
	}
	if cfg.Server.RateLimit.RPS != 5 || cfg.Server.RateLimit.Burst != 10 {
		t.Errorf("rate_limit = %+v", cfg.Server.RateLimit)
	}

	// The default ranking must not alias the package-level slice.
	cfg.Store.Backends[0] = "pebble"
	if config.DefaultStoreBackends[0] != "mongo" {
		t.Error("Default() aliases DefaultStoreBackends")
	}
}

func TestLoadFromReader_ZeroTemperatureIsKept(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("agent:\n  temperature: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Agent.TemperatureValue(); got != 0 {
		t.Errorf("temperature = %v, want 0", got)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":1\"\n"))
	if err == nil || !strings.Contains(err.Error(), "listen_adr") {
		t.Errorf("err = %v, want unknown field error", err)
	}
}

func TestLoadFromReader_EmptyDocument(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr == "" {
		t.Error("defaults not applied to empty document")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		got = e
		return &llmmock.Provider{}, nil
	})
	reg.RegisterLLM("anthropic", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", Model: "gpt-4o"}); err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("factory received %+v", got)
	}

	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}

	if names := reg.LLMNames(); !slices.Equal(names, []string{"anthropic", "openai"}) {
		t.Errorf("LLMNames = %v", names)
	}
}

func TestRegistry_CreateLLMChain(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) { return nil, errors.New("no key") })

	chain, err := reg.CreateLLMChain(config.ProvidersConfig{
		LLM:       config.ProviderEntry{Name: "openai"},
		Fallbacks: []config.ProviderEntry{{Name: "broken"}, {Name: "openai"}},
	})
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
	if chain[0].Name != "openai" || chain[0].Provider == nil {
		t.Errorf("chain[0] = %+v", chain[0])
	}
	if err == nil || !strings.Contains(err.Error(), "no key") {
		t.Errorf("err = %v, want fallback error", err)
	}

	if _, err := reg.CreateLLMChain(config.ProvidersConfig{LLM: config.ProviderEntry{Name: "broken"}}); err == nil {
		t.Error("primary failure should be fatal")
	}
}
