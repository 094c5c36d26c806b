package payoneer

import (
	"github.com/fatflowers/smmpay/internal/platform/gateway"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		New,
		fx.Annotate(func(m *Mock) gateway.Gateway { return m }, fx.ResultTags(`group:"gateways"`)),
	),
)
