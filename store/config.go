package store

import (
	"github.com/wippyai/wasm-gc/heap"
)

// Config configures a Store.
type Config struct {
	Heap heap.Config
	// MaxTableSize caps table growth. Zero means the 32-bit index space.
	MaxTableSize uint32
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Heap:         heap.DefaultConfig(),
		MaxTableSize: 10_000_000,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return c.Heap.Validate()
}

func (c Config) tableLimit() uint32 {
	if c.MaxTableSize == 0 {
		return ^uint32(0)
	}
	return c.MaxTableSize
}
