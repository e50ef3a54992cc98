package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/apdplat/authz/cmd/authz/cli"
	"github.com/apdplat/authz/internal/app"
	"github.com/apdplat/authz/internal/catalog"
	"github.com/apdplat/authz/internal/observability"
	"github.com/apdplat/authz/internal/platform/cache"
	"github.com/apdplat/authz/internal/platform/db"
	"github.com/apdplat/authz/internal/rbac"
	"github.com/apdplat/authz/internal/users"
	"github.com/apdplat/authz/jobs"
)

const usage = `usage: authz <command> [flags]

commands:
  resolve          print a user's commands, modules and authorities
  refresh-catalog  enqueue a catalog cache refresh
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if len(os.Args) < 2 {
		_, _ = fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	var code int
	switch os.Args[1] {
	case "resolve":
		code = runResolve(ctx, cfg, logger, os.Args[2:])
	case "refresh-catalog":
		code = runRefresh(ctx, cfg, os.Args[2:])
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		code = 1
	}
	stop()
	os.Exit(code)
}

func runResolve(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "user id")
	username := fs.String("username", "", "login name")
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, catalog cache bypassed", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	repo := catalog.NewRepository(pool)
	catalogCache := catalog.NewCache(redisClient, repo, cfg.CatalogCacheTTL, logger, metrics)
	catalogService := catalog.NewService(catalogCache, repo, logger)
	userService := users.NewService(users.NewRepository(pool), catalogService)
	resolver := rbac.NewResolver(catalogService, rbac.WithLogger(logger), rbac.WithMetrics(metrics))

	resolveCLI, err := cli.NewResolveCLI(userService, resolver)
	if err != nil {
		logger.Error("init resolve", slog.Any("error", err))
		return 1
	}
	return resolveCLI.ResolveCommand(ctx, cli.ResolveOptions{
		UserID:     *userID,
		Username:   *username,
		JSONOutput: *jsonOut,
	})
}

func runRefresh(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("refresh-catalog", flag.ContinueOnError)
	reason := fs.String("reason", "manual", "reason recorded in the worker log")
	warm := fs.Bool("warm", true, "reload the catalog after invalidation")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = client.Close() }()

	refreshCLI, err := cli.NewRefreshCLI(client)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return refreshCLI.RefreshCommand(ctx, cli.RefreshOptions{Reason: *reason, Warm: *warm})
}
