// Package tasks holds the asynq background jobs shared by the API and the worker.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-apparel/internal/lock"
	"github.com/noah-isme/toko-apparel/internal/obs"
)

// TypeCatalogWarm reloads the cached product and category snapshots.
const TypeCatalogWarm = "catalog:warm"

const (
	defaultQueue  = "default"
	defaultUnique = 30 * time.Second
	warmLockKey   = "catalog:warm"
)

// Enqueuer is the subset of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client schedules background tasks.
type Client struct {
	Enqueuer Enqueuer
	Queue    string
	Unique   time.Duration
	Logger   zerolog.Logger
}

// EnqueueCatalogWarm schedules a catalog warm-up. Requests inside the uniqueness
// window collapse into the pending task.
func (c Client) EnqueueCatalogWarm(ctx context.Context) error {
	if c.Enqueuer == nil {
		return errors.New("tasks: enqueuer not configured")
	}
	queue := c.Queue
	if queue == "" {
		queue = defaultQueue
	}
	unique := c.Unique
	if unique <= 0 {
		unique = defaultUnique
	}
	info, err := c.Enqueuer.EnqueueContext(ctx, asynq.NewTask(TypeCatalogWarm, nil),
		asynq.Queue(queue),
		asynq.Unique(unique),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	)
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask):
		c.Logger.Debug().Str("task", TypeCatalogWarm).Msg("task_already_pending")
		return nil
	case err != nil:
		return fmt.Errorf("enqueue %s: %w", TypeCatalogWarm, err)
	}
	c.Logger.Debug().Str("task", TypeCatalogWarm).Str("task_id", info.ID).Msg("task_enqueued")
	return nil
}

// Refresher reloads the catalog snapshots and reports how many products were loaded.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// CatalogWarmer handles TypeCatalogWarm. Only one worker refreshes at a time;
// the others skip.
type CatalogWarmer struct {
	Catalog Refresher
	Locker  lock.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h CatalogWarmer) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	start := time.Now()
	var loaded int
	err := h.Locker.TryWithLock(ctx, warmLockKey, h.LockTTL, func(ctx context.Context) error {
		n, err := h.Catalog.Refresh(ctx)
		loaded = n
		return err
	})
	switch {
	case errors.Is(err, lock.ErrHeld):
		obs.ObserveWarm("skipped")
		h.Logger.Info().Msg("catalog_warm_skipped")
		return nil
	case err != nil:
		obs.ObserveWarm("error")
		h.Logger.Error().Err(err).Msg("catalog_warm_failed")
		return fmt.Errorf("catalog warm: %w", err)
	}
	obs.ObserveWarm("ok")
	h.Logger.Info().Int("products", loaded).Dur("took", time.Since(start)).Msg("catalog_warmed")
	return nil
}

// NewMux routes task types to their handlers.
func NewMux(warmer CatalogWarmer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeCatalogWarm, warmer)
	return mux
}
