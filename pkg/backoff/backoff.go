// Package backoff provides capped exponential backoff calculation.
package backoff

import (
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial    time.Duration // default: 1s
	Max        time.Duration // default: 30s
	Multiplier float64       // default: 2
}

func (c *Config) withDefaults() Config {
	out := Config{Initial: time.Second, Max: 30 * time.Second, Multiplier: 2}
	if c == nil {
		return out
	}
	if c.Initial > 0 {
		out.Initial = c.Initial
	}
	if c.Max > 0 {
		out.Max = c.Max
	}
	if c.Multiplier >= 1 {
		out.Multiplier = c.Multiplier
	}
	if out.Max < out.Initial {
		out.Max = out.Initial
	}
	return out
}

// Exponential calculates the delay before a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*multiplier, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	c := cfg.withDefaults()

	if attempt < 1 {
		return c.Initial
	}
	delay := float64(c.Initial) * math.Pow(c.Multiplier, float64(attempt-1))
	if delay > float64(c.Max) || math.IsInf(delay, 0) {
		return c.Max
	}
	return time.Duration(delay)
}
