package app

import (
	"context"

	"lightup/internal/config"
	"lightup/internal/storage"
	"lightup/internal/task/manager"
	"lightup/internal/task/runner"
	logx "lightup/pkg/logx"
)

// Oneshot is a manager over the configured store that never starts alarm
// tasks, for CLI commands that run once and exit.
type Oneshot struct {
	Config  *config.Config
	Manager *manager.Manager
	store   storage.Store
}

func OpenOneshot(ctx context.Context, cfgPath string, log logx.Logger) (*Oneshot, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	mgr, err := manager.New(storage.WithSource(ctx, "cli"), store, nil,
		manager.WithoutTasks(),
		manager.WithLogger(log),
		manager.WithClock(runner.ZoneClock{Loc: loc}),
		manager.WithSeed(cfg.Alarms.SeedDemoEnabled()),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Oneshot{Config: cfg, Manager: mgr, store: store}, nil
}

func (o *Oneshot) Close(ctx context.Context) error {
	_ = o.Manager.Close(ctx)
	return o.store.Close()
}
