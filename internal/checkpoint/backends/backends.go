// Package backends selects and assembles the checkpoint store at startup.
//
// Backends are tried in the configured ranking order. The first that opens
// and answers a ping wins; every failure is logged and counted as a
// degradation, and the in-memory store is always appended as the last
// resort, so startup never fails because durable storage is down.
package backends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint/mongostore"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint/pebblestore"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint/pgstore"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint/redisstore"
	"github.com/Monterroso/Frinny-Backend/internal/checkpoint/sqlitestore"
	"github.com/Monterroso/Frinny-Backend/internal/observe"
	"github.com/Monterroso/Frinny-Backend/internal/resilience"
)

// Backend names accepted in a ranking.
const (
	Mongo    = "mongo"
	Postgres = "postgres"
	Redis    = "redis"
	SQLite   = "sqlite"
	Pebble   = "pebble"
	Memory   = "memory"
)

// DurabilityOrder lists every backend from most to least durable.
var DurabilityOrder = []string{Mongo, Postgres, Redis, SQLite, Pebble, Memory}

// ErrNotConfigured is returned by an opener whose connection settings are
// empty.
var ErrNotConfigured = errors.New("backend not configured")

// Config describes every backend and how the chosen one is wrapped.
type Config struct {
	// Ranking is the order backends are tried in. Memory is appended if
	// absent. Empty means [DurabilityOrder].
	Ranking []string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	PostgresDSN     string
	RedisURL        string
	RedisTTL        time.Duration
	SQLitePath      string
	PebbleDir       string

	// ConnectTimeout bounds each open attempt. Default 5s.
	ConnectTimeout time.Duration

	// OpTimeout bounds each Get or Put. Default [checkpoint.DefaultOpTimeout].
	OpTimeout time.Duration

	// CacheSize enables a write-through LRU of that many conversations.
	CacheSize int

	// MaxMessages enables history windowing on write.
	MaxMessages int

	Metrics *observe.Metrics
}

// Opener opens one backend.
type Opener func(ctx context.Context, cfg Config) (checkpoint.Store, error)

// Attempt records the outcome of one backend in the ranking.
type Attempt struct {
	Backend string
	Err     error
}

// Result is the assembled store plus how it was chosen.
type Result struct {
	// Store is the fully wrapped store to hand to the conversation layer.
	Store checkpoint.Store

	// Backend is the name of the backend that opened.
	Backend string

	// Skipped lists backends ranked above Backend that failed to open.
	Skipped []Attempt
}

// Degraded reports whether a higher-ranked backend was skipped.
func (r *Result) Degraded() bool { return len(r.Skipped) > 0 }

// Option customises [Open].
type Option func(*opener)

// WithOpener replaces the opener for name. Tests use it to simulate
// unreachable backends.
func WithOpener(name string, fn Opener) Option {
	return func(o *opener) { o.openers[name] = fn }
}

type opener struct {
	openers map[string]Opener
}

func defaultOpeners() map[string]Opener {
	return map[string]Opener{
		Mongo: func(ctx context.Context, cfg Config) (checkpoint.Store, error) {
			if cfg.MongoURI == "" {
				return nil, ErrNotConfigured
			}
			return mongostore.Connect(ctx, mongostore.Options{
				URI:            cfg.MongoURI,
				Database:       cfg.MongoDatabase,
				Collection:     cfg.MongoCollection,
				ConnectTimeout: cfg.ConnectTimeout,
			})
		},
		Postgres: func(ctx context.Context, cfg Config) (checkpoint.Store, error) {
			if cfg.PostgresDSN == "" {
				return nil, ErrNotConfigured
			}
			return pgstore.Connect(ctx, cfg.PostgresDSN)
		},
		Redis: func(ctx context.Context, cfg Config) (checkpoint.Store, error) {
			if cfg.RedisURL == "" {
				return nil, ErrNotConfigured
			}
			return redisstore.Connect(ctx, cfg.RedisURL, cfg.RedisTTL)
		},
		SQLite: func(ctx context.Context, cfg Config) (checkpoint.Store, error) {
			if cfg.SQLitePath == "" {
				return nil, ErrNotConfigured
			}
			return sqlitestore.Open(ctx, cfg.SQLitePath)
		},
		Pebble: func(_ context.Context, cfg Config) (checkpoint.Store, error) {
			if cfg.PebbleDir == "" {
				return nil, ErrNotConfigured
			}
			return pebblestore.Open(cfg.PebbleDir)
		},
		Memory: func(context.Context, Config) (checkpoint.Store, error) {
			return checkpoint.NewMemoryStore(), nil
		},
	}
}

// Ranking normalises a configured ranking: unknown names are dropped with a
// warning, duplicates removed, and memory appended if missing.
func Ranking(configured []string) []string {
	if len(configured) == 0 {
		return slices.Clone(DurabilityOrder)
	}
	out := make([]string, 0, len(configured)+1)
	for _, name := range configured {
		if !slices.Contains(DurabilityOrder, name) {
			slog.Warn("checkpoint: ignoring unknown backend in ranking", "backend", name)
			continue
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	if !slices.Contains(out, Memory) {
		out = append(out, Memory)
	}
	return out
}

// Open walks the ranking and returns the first backend that opens and
// pings, wrapped in guard, window and cache layers. It does not return an
// error: the memory backend cannot fail.
func Open(ctx context.Context, cfg Config, opts ...Option) *Result {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	o := &opener{openers: defaultOpeners()}
	for _, opt := range opts {
		opt(o)
	}

	res := &Result{}
	for _, name := range Ranking(cfg.Ranking) {
		store, err := o.try(ctx, name, cfg)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, ErrNotConfigured) {
				level = slog.LevelInfo
			}
			slog.Log(ctx, level, "checkpoint backend unavailable, trying next",
				"backend", name, "err", err)
			if cfg.Metrics != nil {
				cfg.Metrics.RecordDegradation(ctx, "startup", name)
			}
			res.Skipped = append(res.Skipped, Attempt{Backend: name, Err: err})
			continue
		}
		res.Backend = name
		res.Store = wrap(store, cfg)
		break
	}

	// A broken override of the memory opener is the only way to get here.
	if res.Store == nil {
		res.Backend = Memory
		res.Store = wrap(checkpoint.NewMemoryStore(), cfg)
	}

	slog.Info("checkpoint store ready",
		"backend", res.Backend,
		"skipped", len(res.Skipped),
		"cache_size", cfg.CacheSize,
		"max_messages", cfg.MaxMessages,
	)
	return res
}

func (o *opener) try(ctx context.Context, name string, cfg Config) (checkpoint.Store, error) {
	fn, ok := o.openers[name]
	if !ok {
		return nil, fmt.Errorf("no opener for %q", name)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	store, err := fn(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return store, nil
}

// wrap layers the chosen backend: Guard innermost, then the optional cache,
// then windowing so the cache only ever holds windowed state.
func wrap(store checkpoint.Store, cfg Config) checkpoint.Store {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "checkpoint/" + store.Name(),
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		IsFailure: func(err error) bool {
			return err != nil &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, checkpoint.ErrInvalidKey)
		},
	})

	var s checkpoint.Store = checkpoint.Guard(store,
		checkpoint.WithOpTimeout(cfg.OpTimeout),
		checkpoint.WithBreaker(breaker),
		checkpoint.WithMetrics(cfg.Metrics),
	)
	if cfg.CacheSize > 0 {
		cached, err := checkpoint.NewCached(s, cfg.CacheSize)
		if err != nil {
			slog.Warn("checkpoint: cache disabled", "err", err)
		} else {
			s = cached
		}
	}
	if cfg.MaxMessages > 0 {
		s = checkpoint.NewWindowed(s, cfg.MaxMessages)
	}
	return s
}
