package gateway

import (
	"go.uber.org/fx"
)

// Module builds the registry from every provider adapter in the "gateways" group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewRegistry, fx.ParamTags(`group:"gateways"`))),
)
