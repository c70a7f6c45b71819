package interp

const (
	// DefaultMaxCallDepth bounds wasm call nesting.
	DefaultMaxCallDepth = 1000
	// DefaultMaxTableSize bounds the slots a table may allocate.
	DefaultMaxTableSize = 10_000_000
)

// Config tunes resource limits of an instance.
type Config struct {
	// MaxCallDepth is the deepest call nesting before a
	// "call stack exhausted" trap. Zero means DefaultMaxCallDepth.
	MaxCallDepth int
	// MaxMemoryPages caps memory size below the module's own maximum.
	// Zero means the 65536 page architectural limit.
	MaxMemoryPages uint32
	// MaxTableSize caps the initial table size. Zero means DefaultMaxTableSize.
	MaxTableSize uint32
	// Fuel, when non-zero, is the number of calls and loop back-edges an
	// invocation may perform before trapping with "fuel exhausted".
	Fuel uint64
}

func (c Config) withDefaults() Config {
	if c.MaxCallDepth <= 0 {
		c.MaxCallDepth = DefaultMaxCallDepth
	}
	if c.MaxTableSize == 0 {
		c.MaxTableSize = DefaultMaxTableSize
	}
	return c
}
