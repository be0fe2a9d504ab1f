package anysqlite

import (
	"time"

	"go.uber.org/zap"
)

// Config provides the connection options.
type Config struct {
	// Flags controls how the database is opened. The zero value means
	// read-write, create-if-missing, thread-confined (no shared mutex)
	// with a private page cache.
	Flags OpenFlags

	// BusyTimeout is how long the engine retries when the database is
	// locked by another connection. Zero leaves busy handling off.
	BusyTimeout time.Duration

	// Pragma entries are applied right after the connection opens,
	// as "PRAGMA key = value".
	Pragma map[string]string

	// Logger receives hook-bridge failures: closure panics and unknown
	// reason codes. Hook invocations happen inside the engine's own call
	// stack, so this side channel is the only way such failures surface.
	Logger *zap.Logger
}

// withDefaults returns a defaulted copy, leaving the caller's Config
// untouched.
func (c *Config) withDefaults() *Config {
	var cfg Config
	if c != nil {
		cfg = *c
	}
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.Flags == 0 {
		c.Flags = OpenReadWrite | OpenCreate | OpenNoMutex | OpenPrivateCache
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
