package proration

import (
	"github.com/paissive/monetize/internal/proration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("proration.service",
	fx.Provide(service.NewService),
)
