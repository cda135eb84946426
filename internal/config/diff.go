package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DefaultPersonaChanged bool
	NewDefaultPersona     string

	RateLimitChanged bool
	NewRateLimit     RateLimitConfig

	// RestartRequired names changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// HotReloadable reports whether d carries any change that can be applied live.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.DefaultPersonaChanged || d.RateLimitChanged
}

// Empty reports whether d records no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.HotReloadable() && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Agent.DefaultPersona != new.Agent.DefaultPersona {
		d.DefaultPersonaChanged = true
		d.NewDefaultPersona = new.Agent.DefaultPersona
	}
	if old.Server.RateLimit != new.Server.RateLimit {
		d.RateLimitChanged = true
		d.NewRateLimit = new.Server.RateLimit
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.Environment != new.Server.Environment {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !agentEqual(old.Agent, new.Agent) {
		d.RestartRequired = append(d.RestartRequired, "agent")
	}
	if !storeEqual(old.Store, new.Store) {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Tools != new.Tools {
		d.RestartRequired = append(d.RestartRequired, "tools")
	}
	if len(old.MCP.Servers) != len(new.MCP.Servers) ||
		!slices.EqualFunc(old.MCP.Servers, new.MCP.Servers, func(a, b MCPServerConfig) bool {
			return a.Name == b.Name && a.Transport == b.Transport && a.Command == b.Command && a.URL == b.URL
		}) {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	if old.Feedback != new.Feedback {
		d.RestartRequired = append(d.RestartRequired, "feedback")
	}
	if old.Discord != new.Discord {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	eq := func(x, y ProviderEntry) bool {
		return x.Name == y.Name && x.Model == y.Model && x.APIKey == y.APIKey && x.BaseURL == y.BaseURL && x.Timeout == y.Timeout
	}
	return eq(a.LLM, b.LLM) && slices.EqualFunc(a.Fallbacks, b.Fallbacks, eq)
}

// agentEqual ignores DefaultPersona, which is hot-reloadable.
func agentEqual(a, b AgentConfig) bool {
	return a.TemperatureValue() == b.TemperatureValue() &&
		a.MaxTokens == b.MaxTokens && a.MaxToolRounds == b.MaxToolRounds &&
		a.GenerateTimeout == b.GenerateTimeout
}

func storeEqual(a, b StoreConfig) bool {
	return slices.Equal(a.Backends, b.Backends) &&
		a.MongoURI == b.MongoURI && a.MongoDatabase == b.MongoDatabase && a.MongoCollection == b.MongoCollection &&
		a.PostgresDSN == b.PostgresDSN &&
		a.RedisURL == b.RedisURL && a.RedisTTL == b.RedisTTL &&
		a.SQLitePath == b.SQLitePath && a.PebbleDir == b.PebbleDir &&
		a.ConnectTimeout == b.ConnectTimeout && a.OpTimeout == b.OpTimeout &&
		a.CacheSize == b.CacheSize && a.MaxMessages == b.MaxMessages
}
