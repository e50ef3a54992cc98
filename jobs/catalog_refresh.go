package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/apdplat/authz/internal/observability"
)

// CatalogRefreshPayload configures a catalog cache refresh.
type CatalogRefreshPayload struct {
	Reason string `json:"reason"`
	Warm   bool   `json:"warm"`
}

// CatalogCache is the cache behaviour the refresh job drives.
type CatalogCache interface {
	Invalidate(ctx context.Context) (int64, error)
	Warm(ctx context.Context) error
}

// CatalogRefreshJob invalidates the catalog snapshot after administrative changes.
type CatalogRefreshJob struct {
	Cache   CatalogCache
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewCatalogRefreshJob constructs the job handler.
func NewCatalogRefreshJob(cache CatalogCache, logger *slog.Logger, metrics *observability.Metrics) *CatalogRefreshJob {
	return &CatalogRefreshJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// NewCatalogRefreshTask creates an Asynq task for the catalog refresh.
func NewCatalogRefreshTask(payload CatalogRefreshPayload) (*asynq.Task, error) {
	if payload.Reason == "" {
		payload.Reason = "manual"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogRefresh, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3)), nil
}

// Handle executes the catalog refresh job.
func (j *CatalogRefreshJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Cache == nil {
		return errors.New("catalog refresh: cache not configured")
	}
	var payload CatalogRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("catalog refresh: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskCatalogRefresh)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	version, err := j.Cache.Invalidate(ctx)
	if err != nil {
		j.log().Error("catalog refresh invalidate", slog.String("reason", payload.Reason), slog.Any("error", err))
		return err
	}
	if payload.Warm {
		if err := j.Cache.Warm(ctx); err != nil {
			j.log().Error("catalog refresh warm", slog.Int64("version", version), slog.Any("error", err))
			return err
		}
	}
	j.log().Info("catalog cache refreshed",
		slog.String("reason", payload.Reason),
		slog.Int64("version", version),
		slog.Bool("warm", payload.Warm),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *CatalogRefreshJob) log() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
