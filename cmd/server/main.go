package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/patronkit/patronkit/internal/billing"
	"github.com/patronkit/patronkit/internal/checkout"
	"github.com/patronkit/patronkit/internal/customer"
	"github.com/patronkit/patronkit/internal/entitlement"
	"github.com/patronkit/patronkit/internal/httpapi"
	"github.com/patronkit/patronkit/internal/reconcile"
	"github.com/patronkit/patronkit/internal/subscription"
	"github.com/patronkit/patronkit/internal/tier"
	"github.com/patronkit/patronkit/internal/webhook"
	"github.com/patronkit/patronkit/pkg/config"
	"github.com/patronkit/patronkit/pkg/httpserver"
	"github.com/patronkit/patronkit/pkg/logger"
	"github.com/patronkit/patronkit/pkg/pg"
	"github.com/patronkit/patronkit/pkg/redis"
)

type appConfig struct {
	LogLevel  slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat logger.Format `env:"LOG_FORMAT" envDefault:"json"`
}

func main() {
	ctx := context.Background()

	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(
		logger.WithLevel(appCfg.LogLevel),
		logger.WithFormat(appCfg.LogFormat),
		logger.WithService("patronkit"),
	)
	logger.SetAsDefault(log)

	if err := run(ctx, log); err != nil {
		log.ErrorContext(ctx, "server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	var (
		pgCfg        pg.Config
		redisCfg     redis.Config
		httpCfg      httpserver.Config
		paddleCfg    billing.PaddleConfig
		webhookCfg   webhook.Config
		checkoutCfg  checkout.Config
		reconcileCfg reconcile.Config
	)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&paddleCfg)
	config.MustLoad(&webhookCfg)
	config.MustLoad(&checkoutCfg)
	config.MustLoad(&reconcileCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close redis client", "error", err)
		}
	}()

	provider, err := billing.NewPaddleProvider(paddleCfg)
	if err != nil {
		return err
	}

	tierSvc := tier.NewService(tier.NewStore(pool), log,
		tier.WithCache(tier.NewRedisCache(redisClient, 0)))

	subStore := subscription.NewStore(pool)
	linker := customer.NewLinker(customer.NewStore(pool), provider, log)
	checkoutSvc := checkout.NewService(checkoutCfg, tierSvc, linker, subStore, provider, log)
	ingestor := webhook.NewIngestor(webhookCfg, webhook.NewStore(pool), log)
	evaluator := entitlement.NewEvaluator(entitlement.NewStore(pool), log)

	sweeper, err := reconcile.NewSweeper(reconcileCfg, subStore, provider, log)
	if err != nil {
		return err
	}
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sweeper.Stop(); err != nil {
			log.ErrorContext(ctx, "failed to stop reconciliation scheduler", "error", err)
		}
	}()

	handler := httpapi.NewHandler(ingestor, checkoutSvc, tierSvc, evaluator,
		map[string]httpapi.HealthChecker{
			"postgres": pg.Healthcheck(pool),
			"redis":    redis.Healthcheck(redisClient),
		}, log)

	return httpserver.New(httpCfg, log).Run(ctx, handler.Router())
}
