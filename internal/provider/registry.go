package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Config describes one registered supplier gateway.
type Config struct {
	// Key is the unique identifier for this supplier (e.g. "seoul_gas").
	Key string

	// Name is the human-readable supplier name.
	Name string

	// New constructs the gateway with the given runtime options.
	New func(opts Options) Gateway
}

var (
	gatewaysMu sync.RWMutex
	gateways   = make(map[string]Config)
)

// Register registers a gateway configuration for a supplier.
// This is typically called from an init() function in each gateway file.
func Register(cfg Config) {
	if cfg.Key == "" {
		panic("provider: Register called with empty key")
	}
	if cfg.New == nil {
		panic(fmt.Sprintf("provider: Register(%q) called with nil constructor", cfg.Key))
	}

	gatewaysMu.Lock()
	defer gatewaysMu.Unlock()

	if _, exists := gateways[cfg.Key]; exists {
		panic(fmt.Sprintf("provider: Register called twice for key %q", cfg.Key))
	}
	gateways[cfg.Key] = cfg
}

// Get builds the gateway registered under key.
func Get(key string, opts Options) (Gateway, bool) {
	gatewaysMu.RLock()
	cfg, ok := gateways[key]
	gatewaysMu.RUnlock()
	if !ok {
		return nil, false
	}
	return cfg.New(opts), true
}

// List returns all registered supplier configs sorted by key.
func List() []Config {
	gatewaysMu.RLock()
	defer gatewaysMu.RUnlock()

	out := make([]Config, 0, len(gateways))
	for _, cfg := range gateways {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
