// Package app assembles the service from configuration. Both entrypoints
// build through it so the HTTP server and the Lambda function serve the same
// router.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/strategy/ctxmissing"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/labstack/echo/v4"
	adaptermiddleware "planning-tracker/internal/adapters/http/middleware"
	"planning-tracker/internal/application"
	"planning-tracker/internal/infrastructure/auth"
	"planning-tracker/internal/infrastructure/dynamodb"
	"planning-tracker/internal/infrastructure/memory"
	"planning-tracker/internal/infrastructure/postgres"
	httpiface "planning-tracker/internal/interfaces/http"
	"planning-tracker/internal/platform/config"
	"planning-tracker/internal/ports"
)

const segmentName = "planning-tracker-http"

type App struct {
	Echo    *echo.Echo
	Metrics *adaptermiddleware.Metrics
	close   func() error
}

func (a *App) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

func Build(ctx context.Context, cfg config.Config, logger ports.Logger) (*App, error) {
	if cfg.XRayEnabled {
		if err := xray.Configure(xray.Config{LogLevel: "error"}); err != nil {
			return nil, fmt.Errorf("configure xray: %w", err)
		}
	} else {
		if err := xray.Configure(xray.Config{ContextMissingStrategy: ctxmissing.NewDefaultIgnoreErrorStrategy()}); err != nil {
			return nil, fmt.Errorf("configure xray: %w", err)
		}
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics := adaptermiddleware.NewMetrics()
	lifecycle := application.NewLifecycleService(store, logger,
		application.WithAutoPromotion(cfg.AutoPromoteToLive),
		application.WithTransitionObserver(metrics.ObserveTransition),
	)
	queries := application.NewQueryService(store)

	mode, err := adaptermiddleware.ParseAuthMode(cfg.AuthMode)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	var cognito echo.MiddlewareFunc
	if mode == adaptermiddleware.ModeCognito {
		cognito = auth.NewCognitoMiddleware(cfg.UserPoolID, cfg.Region).Handler
	}
	authMiddleware, err := adaptermiddleware.AuthMiddleware(mode, cfg.APIKey, cognito)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("initialize auth middleware: %w", err)
	}

	mw := httpiface.Middleware{
		Metrics:        metrics.Middleware(),
		RequestLogger:  adaptermiddleware.RequestLogger(logger),
		Auth:           authMiddleware,
		MetricsHandler: metrics.Handler(),
	}
	if cfg.XRayEnabled {
		mw.XRay = adaptermiddleware.XRayMiddleware(segmentName)
	}
	e := httpiface.NewRouter(httpiface.Handlers{
		Applications: httpiface.NewApplicationsHandler(lifecycle, queries, logger),
		Issues:       httpiface.NewIssuesHandler(lifecycle, queries, logger),
		Extensions:   httpiface.NewExtensionsHandler(lifecycle, logger),
	}, mw)

	logger.Info(ctx, "service assembled", "backend", cfg.Backend, "auth_mode", mode, "auto_promote", cfg.AutoPromoteToLive)
	return &App{Echo: e, Metrics: metrics, close: closeStore}, nil
}

func openStore(ctx context.Context, cfg config.Config, logger ports.Logger) (ports.AggregateStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendDynamoDB:
		client, err := dynamodb.NewClient(ctx, cfg.Region, cfg.TableName, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize dynamodb client: %w", err)
		}
		if cfg.DynamoDBEndpoint != "" {
			created, err := client.EnsureTable(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("ensure dynamodb table: %w", err)
			}
			if created {
				logger.Info(ctx, "created dynamodb table", "table", cfg.TableName, "endpoint", cfg.DynamoDBEndpoint)
			}
		}
		return dynamodb.NewStore(client), noop, nil
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.XRayEnabled)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, store.Close, nil
	case config.BackendMemory:
		logger.Warn(ctx, "using in-memory store; data is lost on restart")
		return memory.NewStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
