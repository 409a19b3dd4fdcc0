package game

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// Run steps the simulation until ctx is cancelled or maxTicks ticks have
// completed (0 = unlimited). With Options.Realtime set, ticks are paced at
// physics.tick_rate. Cancellation is not an error.
func (g *Game) Run(ctx context.Context, maxTicks int32) error {
	var limiter *rate.Limiter
	if g.opts.Realtime && g.cfg.Physics.TickRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(g.cfg.Physics.TickRate), 1)
	}

	slog.Info("simulation starting",
		"max_ticks", maxTicks,
		"realtime", limiter != nil,
		"tick_interval", g.cfg.Derived.TickInterval,
	)

	for maxTicks <= 0 || g.tick < maxTicks {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation stopped", "tick", g.tick, "reason", err)
			return nil
		}
		if limiter != nil {
			// Wait only fails when ctx ends before the next token
			if err := limiter.Wait(ctx); err != nil {
				slog.Info("simulation stopped", "tick", g.tick, "reason", err)
				return nil
			}
		}
		if err := g.Step(); err != nil {
			return err
		}
	}

	slog.Info("max ticks reached", "tick", g.tick, "boids", g.BoidCount(), "wave", g.Wave())
	return nil
}
