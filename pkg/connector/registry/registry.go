// Package registry maps connector type tags to their factories. Connector
// packages register themselves from init; the orchestrator resolves every
// configured tag when it is built so unknown tags fail fast.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
)

// Registry manages connector registration and instantiation
type Registry struct {
	factories map[core.ConnectorType]core.Factory
	catalog   map[core.ConnectorType]*ConnectorInfo
	mu        sync.RWMutex
	logger    *zap.Logger
}

// ConnectorInfo provides information about a connector type
type ConnectorInfo struct {
	Type         core.ConnectorType `json:"type"`
	Description  string             `json:"description"`
	Capabilities []string           `json:"capabilities"`
	// Settings documents the keys of the connector's settings section
	Settings map[string]string `json:"settings"`
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[core.ConnectorType]core.Factory),
		catalog:   make(map[core.ConnectorType]*ConnectorInfo),
		logger:    logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// Register registers a connector factory and its catalog entry
func (r *Registry) Register(connectorType core.ConnectorType, factory core.Factory, info *ConnectorInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[connectorType]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector type %s already registered", connectorType))
	}

	r.factories[connectorType] = factory
	if info != nil {
		info.Type = connectorType
		r.catalog[connectorType] = info
	}
	r.logger.Debug("connector registered", zap.String("type", string(connectorType)))
	return nil
}

// Resolve returns the factory of a connector type
func (r *Registry) Resolve(connectorType core.ConnectorType) (core.Factory, error) {
	r.mu.RLock()
	factory, exists := r.factories[connectorType]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector type %s not found", connectorType)).
			WithDetail("known", r.Types())
	}
	return factory, nil
}

// Create resolves and invokes the factory of params.Config.Type
func (r *Registry) Create(params core.Params) (core.Connector, error) {
	factory, err := r.Resolve(core.ConnectorType(params.Config.Type))
	if err != nil {
		return nil, err
	}

	conn, err := factory(params)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create connector %s", params.Name))
	}
	return conn, nil
}

// Types returns the registered connector types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, string(t))
	}
	sort.Strings(types)
	return types
}

// Has checks if a connector type is registered
func (r *Registry) Has(connectorType core.ConnectorType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[connectorType]
	return exists
}

// Catalog returns the catalog entries sorted by type
func (r *Registry) Catalog() []*ConnectorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*ConnectorInfo, 0, len(r.catalog))
	for _, info := range r.catalog {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos
}

// Global registry functions

// Register registers a connector in the global registry
func Register(connectorType core.ConnectorType, factory core.Factory, info *ConnectorInfo) error {
	return globalRegistry.Register(connectorType, factory, info)
}

// MustRegister registers a connector in the global registry and panics on
// a duplicate registration. It is meant for init functions.
func MustRegister(connectorType core.ConnectorType, factory core.Factory, info *ConnectorInfo) {
	if err := Register(connectorType, factory, info); err != nil {
		panic(err)
	}
}

// Resolve resolves a factory from the global registry
func Resolve(connectorType core.ConnectorType) (core.Factory, error) {
	return globalRegistry.Resolve(connectorType)
}

// Types lists the connector types of the global registry
func Types() []string {
	return globalRegistry.Types()
}

// GetRegistry returns the global registry instance.
// This is the primary way to access the connector registry.
func GetRegistry() *Registry {
	return globalRegistry
}
