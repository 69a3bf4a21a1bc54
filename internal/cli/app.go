package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/config"
	"github.com/edirooss/firewatch-server/internal/repo"
)

// app holds what every command needs: config, logger and, when opened,
// the Redis repository.
type app struct {
	cfg  *config.Config
	log  *zap.Logger
	rdb  *repo.RedisClient
	repo *repo.Repository
}

func newApp(cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log, err := buildLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

// openRepo connects to Redis and fails fast when it is unreachable.
func (a *app) openRepo(ctx context.Context) (*repo.Repository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	a.rdb = repo.NewRedisClient(a.log, repo.RedisOptions{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.rdb.Ping(ctx); err != nil {
		_ = a.rdb.Close()
		a.rdb = nil
		return nil, fmt.Errorf("redis %s: %w", a.cfg.Redis.Addr, err)
	}
	a.repo = repo.NewRepository(a.log, a.rdb)
	return a.repo, nil
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = a.log.Sync()
}
