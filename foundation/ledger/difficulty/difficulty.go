// Package difficulty derives the proof of work target for the next block
// from the timing of recent blocks.
package difficulty

import (
	"time"

	"github.com/greenhydro/ledger/foundation/ledger/block"
)

// Config represents the tuning for the difficulty controller.
type Config struct {
	Default int           // Difficulty used while the chain is too short to measure.
	Target  time.Duration // Desired interval between blocks.
	Max     int           // Ceiling the difficulty can never exceed.
	Window  int           // Number of recent blocks used for the average.
}

// DefaultConfig matches the platform's production settings.
var DefaultConfig = Config{
	Default: 2,
	Target:  10 * time.Second,
	Max:     6,
	Window:  10,
}

// WithDefaults fills any zero value with the production default.
func (c Config) WithDefaults() Config {
	if c.Default == 0 {
		c.Default = DefaultConfig.Default
	}
	if c.Target == 0 {
		c.Target = DefaultConfig.Target
	}
	if c.Max == 0 {
		c.Max = DefaultConfig.Max
	}
	if c.Window == 0 {
		c.Window = DefaultConfig.Window
	}
	return c
}

// Next returns the difficulty for the next block. The recent blocks must be
// ordered by block number descending. The result is always within
// [1, c.Max].
func Next(c Config, recent []block.Block) int {
	c = c.WithDefaults()

	if len(recent) > c.Window {
		recent = recent[:c.Window]
	}

	if len(recent) < 2 {
		return clamp(c, c.Default)
	}

	var total time.Duration
	for i := 0; i < len(recent)-1; i++ {
		total += recent[i].TimeStamp.Sub(recent[i+1].TimeStamp)
	}
	average := total / time.Duration(len(recent)-1)

	current := recent[0].Difficulty

	switch {
	case average < c.Target*8/10:
		return clamp(c, current+1)
	case average > c.Target*12/10:
		return clamp(c, current-1)
	}

	return clamp(c, current)
}

func clamp(c Config, difficulty int) int {
	if difficulty < 1 {
		return 1
	}
	if difficulty > c.Max {
		return c.Max
	}
	return difficulty
}
