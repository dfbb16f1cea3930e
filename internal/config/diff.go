package config

import "reflect"

// ConfigDiff describes what changed between two configs and whether the
// change can be applied to a running server.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MatcherChanged is set when any matcher threshold differs. Matcher
	// settings apply to the next dispatch without a restart.
	MatcherChanged bool

	// ProvidersChanged lists the provider roles whose entry differs
	// ("llm", "refiner", "embeddings"). Providers are rebuilt on apply.
	ProvidersChanged []string

	// ServicesChanged is set when a managed service's command, port, or
	// timeout differs. Taking effect requires a service restart.
	ServicesChanged bool

	// MemoryChanged is set when the memory store settings differ. Taking
	// effect requires reconnecting the store.
	MemoryChanged bool
}

// Empty reports whether the two configs were identical.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged &&
		!d.MatcherChanged &&
		len(d.ProvidersChanged) == 0 &&
		!d.ServicesChanged &&
		!d.MemoryChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Matcher != new.Matcher {
		d.MatcherChanged = true
	}

	if !reflect.DeepEqual(old.Providers.LLM, new.Providers.LLM) {
		d.ProvidersChanged = append(d.ProvidersChanged, "llm")
	}
	if !reflect.DeepEqual(old.Providers.Refiner, new.Providers.Refiner) {
		d.ProvidersChanged = append(d.ProvidersChanged, "refiner")
	}
	if !reflect.DeepEqual(old.Providers.Embeddings, new.Providers.Embeddings) {
		d.ProvidersChanged = append(d.ProvidersChanged, "embeddings")
	}

	if !reflect.DeepEqual(old.Services, new.Services) {
		d.ServicesChanged = true
	}

	if old.Memory != new.Memory {
		d.MemoryChanged = true
	}

	return d
}
