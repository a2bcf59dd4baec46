package storage

// Plugin registry, grounded on the teacher's config-driven construction
// pattern in pkg/config (validate, then build), generalised to spec.md
// §4.4's "name, description, optional configuration schema, a
// validate_config hook, and a create(config) -> Storage factory"
// contract.

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPluginExists is returned registering a plugin name already taken.
	ErrPluginExists = errors.New("storage: plugin already registered")
	// ErrPluginMissing is returned loading a plugin tag with no registration.
	ErrPluginMissing = errors.New("storage: plugin not registered")
)

// Plugin is a user-supplied storage backend factory.
type Plugin interface {
	Name() string
	Description() string
	// ConfigSchema returns a description of accepted configuration keys;
	// nil if the plugin takes no configuration.
	ConfigSchema() map[string]string
	ValidateConfig(config map[string]string) error
	Create(config map[string]string) (Backend, error)
}

// PluginRegistry is a process-wide table of available plugin factories,
// keyed by the configuration tag under which operators select them.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewPluginRegistry constructs an empty registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{plugins: make(map[string]Plugin)}
}

// Register installs p under p.Name(). Registering a name twice fails.
func (r *PluginRegistry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[p.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrPluginExists, p.Name())
	}
	r.plugins[p.Name()] = p
	return nil
}

// Load validates config against the named plugin's schema and constructs
// a Backend from it. Loading an unregistered tag fails.
func (r *PluginRegistry) Load(tag string, config map[string]string) (Backend, error) {
	r.mu.RLock()
	p, ok := r.plugins[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginMissing, tag)
	}
	if err := p.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("storage: plugin %s: invalid config: %w", tag, err)
	}
	return p.Create(config)
}

// Get returns the registered plugin for tag, if any.
func (r *PluginRegistry) Get(tag string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[tag]
	return p, ok
}
