package heap

import (
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/layout"
)

// MaxHeapSize is the largest heap addressable by a 31-bit reference index.
const MaxHeapSize = 1 << 31

// Config holds heap sizing and debugging options.
type Config struct {
	// InitialSize is the size of the backing store in bytes.
	InitialSize uint32
	// MaxSize bounds growth. Allocations that would need more trap with
	// "GC heap out of memory".
	MaxSize uint32
	// ActivationTableCapacity is the initial number of activation slots.
	ActivationTableCapacity uint32
	// ZeroFreed clears reclaimed objects so stale reads see zeros.
	ZeroFreed bool
}

// DefaultConfig returns a 64 KiB heap that may grow to 256 MiB.
func DefaultConfig() Config {
	return Config{
		InitialSize:             64 << 10,
		MaxSize:                 256 << 20,
		ActivationTableCapacity: 128,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.InitialSize < 2*layout.HeaderSize || c.InitialSize%layout.ObjectAlign != 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("heap", "InitialSize").
			Value(c.InitialSize).
			Detail("must be a multiple of %d and at least %d", layout.ObjectAlign, 2*layout.HeaderSize).
			Build()
	}
	if c.MaxSize < c.InitialSize {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("heap", "MaxSize").
			Value(c.MaxSize).
			Detail("smaller than InitialSize %d", c.InitialSize).
			Build()
	}
	if c.MaxSize > MaxHeapSize {
		return errors.Overflow(errors.PhaseConfig, []string{"heap", "MaxSize"}, c.MaxSize, "31-bit heap index")
	}
	if c.ActivationTableCapacity == 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("heap", "ActivationTableCapacity").
			Detail("must be positive").
			Build()
	}
	return nil
}
