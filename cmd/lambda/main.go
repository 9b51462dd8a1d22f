package main

import (
	"context"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	adapterlogger "planning-tracker/internal/adapters/logger"
	"planning-tracker/internal/platform/app"
	"planning-tracker/internal/platform/config"
	"planning-tracker/internal/platform/lambda"
)

func main() {
	logger := adapterlogger.New()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Error(ctx, "configuration error", "error", err)
		os.Exit(1)
	}
	level, err := adapterlogger.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Error(ctx, "configuration error", "error", err)
		os.Exit(1)
	}
	logger = adapterlogger.NewWithWriter(os.Stdout, level)

	service, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "failed to start", "error", err)
		os.Exit(1)
	}
	awslambda.Start(lambda.NewLambdaHandler(service.Echo, logger))
}
