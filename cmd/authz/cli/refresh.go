package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/apdplat/authz/jobs"
)

// Enqueuer submits catalog refresh tasks.
type Enqueuer interface {
	EnqueueCatalogRefresh(ctx context.Context, payload jobs.CatalogRefreshPayload) (*asynq.TaskInfo, error)
}

// RefreshCLI wraps manual catalog cache refreshes.
type RefreshCLI struct {
	client Enqueuer
}

// NewRefreshCLI wires the refresh-catalog command.
func NewRefreshCLI(client Enqueuer) (*RefreshCLI, error) {
	if client == nil {
		return nil, errors.New("refresh cli: client not configured")
	}
	return &RefreshCLI{client: client}, nil
}

// RefreshOptions defines available flags for refresh-catalog.
type RefreshOptions struct {
	Reason string
	Warm   bool
	Stdout io.Writer
	Stderr io.Writer
}

// RefreshCommand enqueues a catalog refresh and prints the task id.
func (c *RefreshCLI) RefreshCommand(ctx context.Context, opts RefreshOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	info, err := c.client.EnqueueCatalogRefresh(ctx, jobs.CatalogRefreshPayload{Reason: opts.Reason, Warm: opts.Warm})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "refresh-catalog: enqueue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s id=%s queue=%s\n", jobs.TaskCatalogRefresh, info.ID, info.Queue)
	return 0
}
