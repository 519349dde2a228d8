package processors

import (
	"strings"

	"github.com/paissive/monetize/internal/config"
	"github.com/paissive/monetize/internal/payment/domain"
	"github.com/paissive/monetize/internal/payment/processors/mock"
	"github.com/paissive/monetize/internal/payment/processors/stripe"
)

// Factory builds one provider variant from application configuration.
type Factory interface {
	Provider() string
	New(cfg config.Config) (domain.Processor, error)
}

type Registry struct {
	factories map[string]Factory
}

func NewRegistry(factories ...Factory) *Registry {
	registry := &Registry{factories: map[string]Factory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(factory.Provider()))
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

// Resolve picks the configured provider once, at construction. Call sites
// never dispatch on provider strings again.
func (r *Registry) Resolve(cfg config.Config) (domain.Processor, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.PaymentProvider))
	if provider == "" {
		provider = mock.ProviderName
	}
	factory, ok := r.factories[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.New(cfg)
}

// DefaultRegistry wires every adapter shipped with the binary.
func DefaultRegistry() *Registry {
	return NewRegistry(
		mock.NewFactory(),
		stripe.NewFactory(),
	)
}
