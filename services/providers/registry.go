package providers

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Registry holds the configured providers. It is built once at startup and
// is read-only afterwards, so lookups need no locking.
type Registry struct {
	providers map[string]*Remote
	order     []string // provider ids, sorted
	local     LocalFallback
}

// Get retrieves a provider by id
func (r *Registry) Get(id string) (*Remote, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// List returns every registered provider, enabled or not, ordered by id
func (r *Registry) List() []*Remote {
	out := make([]*Remote, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// IDs returns every registered provider id, ordered
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Supporting returns the enabled providers that offer capability c, ordered by id
func (r *Registry) Supporting(c Capability) []*Remote {
	var out []*Remote
	for _, id := range r.order {
		if p := r.providers[id]; p.Supports(c) {
			out = append(out, p)
		}
	}
	return out
}

// Local returns the local fallback provider
func (r *Registry) Local() LocalFallback {
	return r.local
}

// Count returns the number of registered remote providers
func (r *Registry) Count() int {
	return len(r.order)
}

// AdapterFactory creates the adapter for a catalog entry of a given vendor
type AdapterFactory func(d Descriptor, cfg ProviderConfig) (Adapter, error)

// RegistryBuilder helps build a registry with multiple providers
type RegistryBuilder struct {
	logger    *zap.Logger
	factories map[string]AdapterFactory
	providers map[string]*Remote
	errs      []error
}

// NewRegistryBuilder creates a new registry builder
func NewRegistryBuilder(logger *zap.Logger) *RegistryBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryBuilder{
		logger:    logger,
		factories: make(map[string]AdapterFactory),
		providers: make(map[string]*Remote),
	}
}

// WithFactory registers the adapter factory for a vendor
func (rb *RegistryBuilder) WithFactory(vendor string, factory AdapterFactory) *RegistryBuilder {
	rb.factories[vendor] = factory
	return rb
}

// WithProvider directly adds a provider with a ready adapter
func (rb *RegistryBuilder) WithProvider(d Descriptor, adapter Adapter) *RegistryBuilder {
	if err := rb.add(NewRemote(d, adapter)); err != nil {
		rb.errs = append(rb.errs, err)
	}
	return rb
}

func (rb *RegistryBuilder) add(p *Remote) error {
	if p.ID == "" {
		return errors.New("provider id cannot be empty")
	}
	if p.ID == LocalFallbackID {
		return fmt.Errorf("provider id %q is reserved", LocalFallbackID)
	}
	if _, exists := rb.providers[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, p.ID)
	}
	rb.providers[p.ID] = p
	return nil
}

// Build creates adapters for every catalog entry and returns the registry.
// Entries whose vendor has no credentials, no factory, or a failing factory
// stay registered but disabled.
func (rb *RegistryBuilder) Build(catalog *Catalog, credentials map[string]ProviderConfig) (*Registry, error) {
	if catalog != nil {
		for _, entry := range catalog.Providers {
			d, err := entry.Descriptor()
			if err != nil {
				return nil, fmt.Errorf("catalog entry %q: %w", entry.ID, err)
			}

			var adapter Adapter
			cfg, hasCreds := credentials[d.Vendor]
			factory, hasFactory := rb.factories[d.Vendor]
			switch {
			case !hasFactory:
				rb.logger.Warn("no adapter for vendor, provider disabled",
					zap.String("provider_id", d.ID), zap.String("vendor", d.Vendor))
				d.Enabled = false
			case !hasCreds || !cfg.Configured():
				rb.logger.Warn("vendor credentials missing, provider disabled",
					zap.String("provider_id", d.ID), zap.String("vendor", d.Vendor))
				d.Enabled = false
			default:
				adapter, err = factory(d, cfg)
				if err != nil {
					rb.logger.Error("failed to build adapter, provider disabled",
						zap.String("provider_id", d.ID), zap.Error(err))
					d.Enabled = false
					adapter = nil
				}
			}

			if err := rb.add(NewRemote(d, adapter)); err != nil {
				return nil, err
			}
			rb.logger.Info("provider registered",
				zap.String("provider_id", d.ID),
				zap.String("vendor", d.Vendor),
				zap.Bool("enabled", d.Enabled),
				zap.Stringer("cost_per_request", d.Pricing.PerRequest))
		}
	}

	if len(rb.errs) > 0 {
		return nil, errors.Join(rb.errs...)
	}

	reg := &Registry{
		providers: rb.providers,
		order:     make([]string, 0, len(rb.providers)),
	}
	for id := range rb.providers {
		reg.order = append(reg.order, id)
	}
	sort.Strings(reg.order)
	return reg, nil
}
