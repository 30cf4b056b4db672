package api

import (
	"time"

	"go.uber.org/zap"
)

// Config holds the fields recognised by the core, per spec §6. All
// durations are stored as time.Duration; a zero timeout disables that
// timeout.
type Config struct {
	// PortNumber is the listener bind port. Ignored unless
	// RequestListener is true.
	PortNumber int

	// NumThreads is the worker pool size. Zero collapses every
	// connection onto the manager's own event loop (a legal degenerate
	// mode used by tests).
	NumThreads int

	// BufferSize is the per-read chunk allocation size.
	BufferSize int

	// ReadTimeout and WriteTimeout bound a single read/write op. Zero
	// disables the corresponding timeout.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MinTickTime is the floor of the tick cadence formula. Must be at
	// least one second.
	MinTickTime time.Duration

	// TickTimeModifier scales the log10(connections+1) term of the tick
	// cadence formula. Must be > 0.
	TickTimeModifier float64

	// DeathTime is the grace period after Shutdown before Abort fires.
	DeathTime time.Duration

	// WorkerTickTime is the wake-up cadence of each worker's tick event,
	// used only to break workers out of an idle poll wait.
	WorkerTickTime time.Duration

	// ConnectionCloseOnShutdown controls whether Shutdown forces open
	// connections closed rather than letting them drain naturally.
	ConnectionCloseOnShutdown bool

	// RequestListener installs the inbound acceptor.
	RequestListener bool

	// RequestSignalHandler installs a SIGINT hook that calls Shutdown.
	RequestSignalHandler bool

	// Logger receives structured internal diagnostics. Defaults to a
	// no-op logger if nil.
	Logger *zap.Logger
}

// DefaultConfig returns the field values the reference implementation
// shipped with, carried over from original_source/src/Configuration.cpp.
func DefaultConfig(port int) *Config {
	return &Config{
		PortNumber:                port,
		NumThreads:                2,
		BufferSize:                4096,
		ReadTimeout:               3 * time.Second,
		WriteTimeout:              3 * time.Second,
		MinTickTime:               1 * time.Second,
		TickTimeModifier:          1.0,
		DeathTime:                 5 * time.Second,
		WorkerTickTime:            1 * time.Second,
		ConnectionCloseOnShutdown: true,
		RequestListener:           false,
		RequestSignalHandler:      true,
	}
}

// Validate checks the invariants the core relies on and returns a
// structured *Error describing the first violation found.
func (c *Config) Validate() error {
	if c.NumThreads < 0 {
		return NewError(ErrCodeConfig, "numThreads cannot be negative").WithContext("numThreads", c.NumThreads)
	}
	if c.BufferSize <= 0 {
		return NewError(ErrCodeConfig, "bufferSize must be positive").WithContext("bufferSize", c.BufferSize)
	}
	if c.MinTickTime < time.Second {
		return NewError(ErrCodeConfig, "minTickTime cannot be less than 1s").WithContext("minTickTime", c.MinTickTime)
	}
	if c.TickTimeModifier < 1.0e-6 {
		return NewError(ErrCodeConfig, "tickTimeModifier cannot be small or negative").WithContext("tickTimeModifier", c.TickTimeModifier)
	}
	if c.WorkerTickTime <= 0 {
		return NewError(ErrCodeConfig, "workerTickTime must be positive").WithContext("workerTickTime", c.WorkerTickTime)
	}
	if c.RequestListener && (c.PortNumber <= 0 || c.PortNumber > 65535) {
		return NewError(ErrCodeConfig, "portNumber out of range").WithContext("portNumber", c.PortNumber)
	}
	return nil
}

// LoggerOrNop returns c.Logger or a no-op logger if unset.
func (c *Config) LoggerOrNop() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
