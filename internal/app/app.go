// Package app wires the Frinny subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithStore, WithMCPHost,
// etc.). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Monterroso/Frinny-Backend/internal/agent"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint/backends"
	"github.com/Monterroso/Frinny-Backend/internal/config"
	"github.com/Monterroso/Frinny-Backend/internal/conversation"
	"github.com/Monterroso/Frinny-Backend/internal/discord"
	"github.com/Monterroso/Frinny-Backend/internal/discord/commands"
	"github.com/Monterroso/Frinny-Backend/internal/feedback"
	"github.com/Monterroso/Frinny-Backend/internal/health"
	"github.com/Monterroso/Frinny-Backend/internal/httpapi"
	"github.com/Monterroso/Frinny-Backend/internal/mcp"
	"github.com/Monterroso/Frinny-Backend/internal/mcp/mcphost"
	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools"
	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools/adventure"
	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools/combat"
	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools/diceroller"
	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools/levelup"
	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools/ruleslookup"
	"github.com/Monterroso/Frinny-Backend/internal/observe"
	"github.com/Monterroso/Frinny-Backend/internal/persona"
	"github.com/Monterroso/Frinny-Backend/internal/transport/ws"
	"github.com/Monterroso/Frinny-Backend/pkg/provider/llm"
)

// sweepInterval is how often idle rate-limit buckets are dropped.
const sweepInterval = time.Minute

// Providers holds the external model backends. Populated by main.go via the
// config registry.
type Providers struct {
	// LLM answers every turn. Usually a resilience.LLMFallback over the
	// configured chain.
	LLM llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	personas *persona.Registry
	store    checkpoint.Store
	backend  string
	// storeDegraded is set when a preferred backend was skipped.
	storeDegraded bool
	mcpHost  mcp.Host
	invoker  agent.Invoker
	feedback feedback.Sink
	limiter  *ws.Limiter
	socket   *ws.Server
	handler  http.Handler
	server   *http.Server
	bot      *discord.Bot

	// listener, when set, replaces ListenAddr. Tests use it to bind a
	// random port.
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a checkpoint store instead of opening the configured
// backends.
func WithStore(s checkpoint.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMCPHost injects a tool host instead of creating one from config.
func WithMCPHost(h mcp.Host) Option {
	return func(a *App) { a.mcpHost = h }
}

// WithFeedback injects the feedback sink.
func WithFeedback(s feedback.Sink) Option {
	return func(a *App) { a.feedback = s }
}

// WithMetrics injects the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithListener serves on l instead of listening on the configured address.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New never fails because durable storage or an MCP server is unreachable:
// the store degrades down the ranking and unreachable servers are skipped.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Personas ──────────────────────────────────────────────────────
	personas, err := persona.Builtin(cfg.Agent.DefaultPersona)
	if err != nil {
		return nil, fmt.Errorf("app: personas: %w", err)
	}
	a.personas = personas

	// ── 2. Checkpoint store ──────────────────────────────────────────────
	a.initStore(ctx)

	// ── 3. Tool host ─────────────────────────────────────────────────────
	if err := a.initMCP(ctx); err != nil {
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}

	// ── 4. Agent ─────────────────────────────────────────────────────────
	if err := a.initAgent(); err != nil {
		return nil, fmt.Errorf("app: init agent: %w", err)
	}

	// ── 5. Transports ────────────────────────────────────────────────────
	if err := a.initTransports(); err != nil {
		return nil, fmt.Errorf("app: init transports: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) {
	if a.store != nil {
		a.backend = a.store.Name()
		return
	}
	st := a.cfg.Store
	res := backends.Open(ctx, backends.Config{
		Ranking:         st.Backends,
		MongoURI:        st.MongoURI,
		MongoDatabase:   st.MongoDatabase,
		MongoCollection: st.MongoCollection,
		PostgresDSN:     st.PostgresDSN,
		RedisURL:        st.RedisURL,
		RedisTTL:        st.RedisTTL,
		SQLitePath:      st.SQLitePath,
		PebbleDir:       st.PebbleDir,
		ConnectTimeout:  st.ConnectTimeout,
		OpTimeout:       st.OpTimeout,
		CacheSize:       st.CacheSize,
		MaxMessages:     st.MaxMessages,
		Metrics:         a.metrics,
	})
	a.store, a.backend = res.Store, res.Backend
	a.storeDegraded = res.Degraded()
	a.closers = append(a.closers, a.store.Close)
	if res.Degraded() {
		slog.Warn("checkpoint store degraded", "backend", res.Backend, "skipped", len(res.Skipped))
	} else {
		slog.Info("checkpoint store ready", "backend", res.Backend)
	}
}

// BuiltinTools returns the in-process tools enabled by cfg.
func BuiltinTools(cfg config.ToolsConfig) []tools.Tool {
	var ts []tools.Tool
	ts = append(ts, ruleslookup.Tools(ruleslookup.NewClient(cfg.TavilyAPIKey))...)
	ts = append(ts, diceroller.Tools(diceroller.NewRoller(nil))...)
	ts = append(ts, combat.Tools()...)
	ts = append(ts, levelup.Tools()...)
	if cfg.AdventuresDir != "" {
		ts = append(ts, adventure.Tools(cfg.AdventuresDir)...)
	}
	return ts
}

// initMCP sets up the tool host and registers built-in tools and servers.
func (a *App) initMCP(ctx context.Context) error {
	if a.mcpHost == nil {
		host := mcphost.New(
			mcphost.WithDefaultTimeout(a.cfg.Tools.DefaultTimeout),
			mcphost.WithMetrics(a.metrics),
		)
		if err := host.RegisterBuiltin(BuiltinTools(a.cfg.Tools)...); err != nil {
			return fmt.Errorf("register builtin tools: %w", err)
		}
		a.mcpHost = host
		a.closers = append(a.closers, host.Close)
	}

	for _, srv := range a.cfg.MCP.Servers {
		serverCfg := mcp.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}
		if err := a.mcpHost.RegisterServer(ctx, serverCfg); err != nil {
			slog.Warn("mcp server unavailable, continuing without it", "name", srv.Name, "err", err)
			continue
		}
		slog.Info("registered MCP server", "name", srv.Name)
	}
	slog.Info("tools ready", "count", len(a.mcpHost.Tools()))
	return nil
}

func (a *App) initAgent() error {
	ag := a.cfg.Agent
	loop, err := agent.NewToolLoop(a.providers.LLM, a.mcpHost,
		agent.WithTemperature(ag.TemperatureValue()),
		agent.WithMaxTokens(ag.MaxTokens),
		agent.WithMaxRounds(ag.MaxToolRounds),
		agent.WithLoopMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.invoker, err = agent.New(agent.Config{
		Session:         conversation.New(a.store, a.personas),
		Personas:        a.personas,
		Generator:       loop,
		Metrics:         a.metrics,
		GenerateTimeout: ag.GenerateTimeout,
	})
	return err
}

func (a *App) initTransports() error {
	if a.feedback == nil {
		if p := a.cfg.Feedback.Path; p != "" {
			a.feedback = feedback.NewFileStore(p)
		} else {
			a.feedback = &feedback.MemoryStore{}
		}
	}

	srv := a.cfg.Server
	a.limiter = ws.NewLimiter(srv.RateLimit.RPS, srv.RateLimit.Burst)
	socket, err := ws.New(ws.Config{
		Invoker:        a.invoker,
		Feedback:       a.feedback,
		Limiter:        a.limiter,
		Endpoints:      httpapi.Endpoints(srv.Environment),
		OriginPatterns: srv.AllowedOrigins,
		Metrics:        a.metrics,
	})
	if err != nil {
		return err
	}
	a.socket = socket

	hh := health.New(
		health.PingChecker("store", a.store),
		health.ConfiguredChecker("llm", func() bool { return a.providers.LLM != nil }, "no LLM provider"),
		health.Advisory(health.ConfiguredChecker("store_backend",
			func() bool { return !a.storeDegraded },
			"serving from "+a.backend+"; preferred checkpoint backends unavailable")),
	)
	a.handler = httpapi.New(httpapi.Config{
		Environment: srv.Environment,
		Feedback:    a.feedback,
		Health:      hh,
		Socket:      socket,
		Metrics:     a.metrics,
	})
	a.server = &http.Server{
		Addr:              srv.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Invoker returns the agent invoker shared by every transport.
func (a *App) Invoker() agent.Invoker { return a.invoker }

// Backend returns the name of the checkpoint backend in use.
func (a *App) Backend() string { return a.backend }

// Personas returns the persona registry.
func (a *App) Personas() *persona.Registry { return a.personas }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of d. Log level is handled by
// the caller, which owns the handler's level.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.DefaultPersonaChanged {
		if err := a.personas.SetDefault(d.NewDefaultPersona); err != nil {
			slog.Warn("default persona not changed", "persona", d.NewDefaultPersona, "err", err)
		} else {
			slog.Info("default persona changed", "persona", d.NewDefaultPersona)
		}
	}
	if d.RateLimitChanged {
		a.limiter.SetLimit(d.NewRateLimit.RPS, d.NewRateLimit.Burst)
		slog.Info("rate limit changed", "rps", d.NewRateLimit.RPS, "burst", d.NewRateLimit.Burst)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and the socket, and the Discord relay when configured,
// until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Discord.Token != "" {
		bot, err := discord.New(discord.Config{Token: a.cfg.Discord.Token, GuildID: a.cfg.Discord.GuildID})
		if err == nil {
			err = errors.Join(
				commands.NewAskCommand(ctx, a.invoker, a.personas.Names(), a.cfg.Agent.GenerateTimeout).Register(bot.Router()),
				commands.NewFeedbackCommand(ctx, a.feedback).Register(bot.Router()),
			)
		}
		if err != nil {
			slog.Error("discord relay unavailable", "err", err)
		} else {
			a.bot = bot
			go func() {
				if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("discord bot error", "err", err)
				}
			}()
		}
	}

	go a.sweepLimiter(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.serve()
	}()
	slog.Info("app running", "addr", a.Addr(), "backend", a.backend)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

func (a *App) serve() error {
	tls := a.cfg.Server.TLS
	if a.listener != nil {
		if tls != nil {
			return a.server.ServeTLS(a.listener, tls.CertFile, tls.KeyFile)
		}
		return a.server.Serve(a.listener)
	}
	if tls != nil {
		return a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	}
	return a.server.ListenAndServe()
}

// Addr returns the address the server listens on.
func (a *App) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.server.Addr
}

func (a *App) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			a.limiter.Sweep(now)
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting connections, waits for in-flight turns, then
// tears down the subsystems in order. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.bot != nil {
			if err := a.bot.Close(); err != nil {
				slog.Warn("discord bot close error", "err", err)
			}
		}
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		if err := a.socket.Shutdown(ctx); err != nil {
			slog.Warn("socket shutdown error", "err", err)
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
