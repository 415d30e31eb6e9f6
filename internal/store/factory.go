package store

import (
	"fmt"
	"sort"
	"sync"
)

// Config selects and parameterizes a bookkeeping store driver.
type Config struct {
	Driver string // "sqlite" (default) or "postgres"
	DSN    string // file path for sqlite, connection string for postgres
}

// Builder is a function that creates a store from config.
type Builder func(cfg Config) (Store, error)

type factory struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

var globalFactory = &factory{builders: make(map[string]Builder)}

func init() {
	RegisterDriver("sqlite", func(cfg Config) (Store, error) {
		return NewSQLiteStore(cfg.DSN)
	})
	RegisterDriver("postgres", func(cfg Config) (Store, error) {
		return NewPostgresStore(cfg.DSN)
	})
	RegisterDriver("postgresql", func(cfg Config) (Store, error) {
		return NewPostgresStore(cfg.DSN)
	})
}

// RegisterDriver registers a store driver with the global factory.
// Hosts can plug their own persistence behind the same interface.
func RegisterDriver(name string, b Builder) {
	globalFactory.mu.Lock()
	defer globalFactory.mu.Unlock()
	globalFactory.builders[name] = b
}

// New creates a store from cfg. An empty driver selects sqlite.
func New(cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	globalFactory.mu.RLock()
	b, ok := globalFactory.builders[driver]
	globalFactory.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: unsupported driver %q (supported: %v)", driver, SupportedDrivers())
	}
	return b(cfg)
}

// SupportedDrivers returns the registered driver names, sorted.
func SupportedDrivers() []string {
	globalFactory.mu.RLock()
	defer globalFactory.mu.RUnlock()
	names := make([]string, 0, len(globalFactory.builders))
	for n := range globalFactory.builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
