package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/hookverify"
	"github.com/xraph/hookverify/internal/config"
	"github.com/xraph/hookverify/keys"
	"github.com/xraph/hookverify/observability"
	"github.com/xraph/hookverify/replay/memory"
	replayredis "github.com/xraph/hookverify/replay/redis"
)

// buildVerifier wires a Verifier from cfg. The returned cleanup releases the
// replay backend.
func buildVerifier(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) (*hookverify.Verifier, func(), error) {
	tracer := observability.NewTracer()
	opts := []hookverify.Option{
		hookverify.WithConfig(cfg.VerifierConfig()),
		hookverify.WithLogger(logger),
		hookverify.WithMetrics(metrics),
		hookverify.WithTracer(tracer),
	}

	if cfg.KeysFile != "" {
		opts = append(opts, hookverify.WithResolver(keys.NewCache(
			keys.NewFileFetcher(cfg.KeysFile, logger),
			keys.WithFetchTimeout(cfg.FetchTimeout),
			keys.WithRefreshLimit(cfg.RefreshLimit, 1),
			keys.WithLogger(logger),
			keys.WithMetrics(metrics),
			keys.WithTracer(tracer),
		)))
	}

	cleanup := func() {}
	switch cfg.Replay.Backend {
	case config.ReplayMemory:
		opts = append(opts, hookverify.WithReplayGuard(memory.New(0)))
	case config.ReplayRedis:
		g, err := replayredis.Dial(ctx, cfg.Replay.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, hookverify.WithReplayGuard(g))
		cleanup = func() {
			if err := g.Close(); err != nil {
				logger.Warn("close replay guard", "error", err)
			}
		}
	}

	v, err := hookverify.New(opts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build verifier: %w", err)
	}
	return v, cleanup, nil
}
