package resilience

import (
	"sort"
	"time"
)

// Config holds circuit breaker settings.
type Config struct {
	Threshold         int           // consecutive failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// Named presets, selected with BREAKER_PROFILE. "fast" trips early and
// recovers quickly; "slow" tolerates flaky upstreams.
var profiles = map[string]Config{
	"default": {Threshold: 5, ResetTimeout: 30 * time.Second, HalfOpenSuccesses: 3},
	"fast":    {Threshold: 3, ResetTimeout: 10 * time.Second, HalfOpenSuccesses: 2},
	"slow":    {Threshold: 10, ResetTimeout: time.Minute, HalfOpenSuccesses: 5},
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config { return profiles["default"] }

// FastConfig returns the aggressive preset.
func FastConfig() Config { return profiles["fast"] }

// SlowConfig returns the lenient preset.
func SlowConfig() Config { return profiles["slow"] }

// ProfileConfig maps a profile name to its preset; unknown names get the default.
func ProfileConfig(name string) Config {
	if cfg, ok := profiles[name]; ok {
		return cfg
	}
	return DefaultConfig()
}

// HasProfile reports whether name is a known preset.
func HasProfile(name string) bool {
	_, ok := profiles[name]
	return ok
}

// Profiles lists preset names in sorted order.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = def.Threshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = def.ResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = def.HalfOpenSuccesses
	}
	return c
}
