// Command lambda serves the finvisor API from AWS Lambda behind API Gateway.
// Settings come from the environment, plus FINVISOR_CONFIG when it names a
// bundled TOML file.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/api"
	"github.com/finvisor/finvisor/pkg/config"
	"github.com/finvisor/finvisor/pkg/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("FINVISOR_CONFIG"))
	if err != nil {
		logger.NewJSONLogger(false).Fatal("failed to load config", zap.Error(err))
	}

	log := logger.NewJSONLogger(cfg.Server.Debug)
	defer log.Sync()

	srv, err := api.NewFromConfig(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build server", zap.Error(err))
	}

	log.Info("finvisor lambda ready", zap.String("storage", cfg.Storage.Driver))
	lambda.Start(api.NewLambdaHandler(srv.App()).Handle)
}
