package paypal

import (
	"github.com/fatflowers/smmpay/internal/platform/gateway"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		New,
		func(c *Client) gateway.PayPal { return c },
		fx.Annotate(func(c *Client) gateway.Gateway { return c }, fx.ResultTags(`group:"gateways"`)),
	),
)
