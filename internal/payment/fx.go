package payment

import (
	"github.com/paissive/monetize/internal/config"
	"github.com/paissive/monetize/internal/payment/domain"
	"github.com/paissive/monetize/internal/payment/processors"
	"github.com/paissive/monetize/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(func(cfg config.Config) (domain.Processor, error) {
		return processors.DefaultRegistry().Resolve(cfg)
	}),
	fx.Provide(service.NewService),
)
