package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/usedby/internal/config"
	"github.com/matzehuels/usedby/pkg/cache"
	"github.com/matzehuels/usedby/pkg/dependents"
	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/ecosystems/crates"
	"github.com/matzehuels/usedby/pkg/ecosystems/gomod"
	"github.com/matzehuels/usedby/pkg/ecosystems/npm"
	"github.com/matzehuels/usedby/pkg/ecosystems/packagist"
	"github.com/matzehuels/usedby/pkg/ecosystems/pypi"
	"github.com/matzehuels/usedby/pkg/ecosystems/rubygems"
	"github.com/matzehuels/usedby/pkg/github"
	"github.com/matzehuels/usedby/pkg/pipeline"
	"github.com/matzehuels/usedby/pkg/queue"
)

var registerOnce sync.Once

// registerEcosystems wires every supported platform strategy into the
// process-wide registry. Safe to call from multiple commands.
func registerEcosystems() {
	registerOnce.Do(func() {
		ecosystems.MustRegister(npm.New())
		ecosystems.MustRegister(pypi.New())
		ecosystems.MustRegister(crates.New())
		ecosystems.MustRegister(rubygems.New())
		ecosystems.MustRegister(packagist.New())
		ecosystems.MustRegister(gomod.New())
	})
}

// openStore builds the configured cache backend.
func openStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return cache.NewMemoryStore(), nil
	case "redis":
		return cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		})
	case "mongo":
		return cache.NewMongoStore(ctx, cache.MongoConfig{
			URI:        cfg.Store.Mongo.URI,
			Database:   cfg.Store.Mongo.Database,
			Collection: cfg.Store.Mongo.Collection,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// openQueue builds the configured queue, or nil when queuing is disabled.
func openQueue(ctx context.Context, cfg config.Config) (queue.Queue, error) {
	if !cfg.Queue.Enabled {
		return nil, nil
	}
	switch cfg.Queue.Backend {
	case "", "memory":
		return queue.NewMemoryQueue(cfg.Queue.Capacity), nil
	case "redis":
		return queue.NewRedisQueue(ctx, cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, cfg.Queue.Key)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

// buildService assembles the lookup service from configuration.
func buildService(cfg config.Config, store cache.Store, q queue.Queue, logger *log.Logger) *dependents.Service {
	return &dependents.Service{
		Store:  store,
		GitHub: github.NewClient(cfg.GitHub.Token, logger),
		Queue:  q,
		Limits: pipeline.LimitsFor(cfg.GitHub.Tier),
		Logger: logger,
	}
}
