package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dontdude/vedit/internal/config"
	"github.com/dontdude/vedit/internal/domain"
	"github.com/dontdude/vedit/internal/platform/broker"
	"github.com/dontdude/vedit/internal/platform/repository"
)

// Stores are the event channel and project repository selected by cfg.Broker.
type Stores struct {
	Channel domain.Channel
	Repo    domain.ProjectRepository
	// Close releases connections held by the backend.
	Close func() error
}

// OpenStores connects the configured backend. Redis is pinged so a broken
// environment is reported at startup.
func OpenStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (Stores, error) {
	switch cfg.Broker {
	case config.BrokerRedis:
		rdb, err := broker.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return Stores{}, err
		}
		logger.Info("Using redis stores", "addr", cfg.RedisAddr, "prefix", cfg.KeyPrefix)
		return Stores{
			Channel: broker.NewRedis(rdb, cfg.KeyPrefix, cfg.EventTTL, cfg.EventHistoryMax),
			Repo:    repository.NewRedis(rdb, cfg.KeyPrefix),
			Close:   rdb.Close,
		}, nil
	case config.BrokerMemory:
		logger.Warn("Using in-memory stores; events and projects are lost on restart")
		return Stores{
			Channel: broker.NewMemory(int(cfg.EventHistoryMax), cfg.EventTTL),
			Repo:    repository.NewMemory(),
			Close:   func() error { return nil },
		}, nil
	default:
		return Stores{}, fmt.Errorf("unknown broker %q (want %s or %s)", cfg.Broker, config.BrokerRedis, config.BrokerMemory)
	}
}
