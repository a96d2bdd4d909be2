// Command api-server serves the La Fréquence du Vivant API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	frequence "github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, t *app.Telemetry) error {
		cfg, err := frequence.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		lg.Info("Config loaded",
			zap.Int("rate_limit_max", cfg.RateLimit.Max),
			zap.Duration("rate_limit_window", cfg.RateLimit.Window),
			zap.Strings("cors_origins", cfg.CORS.Origins),
		)
		return frequence.Run(ctx, lg, t, cfg)
	})
}
