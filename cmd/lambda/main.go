// Copyright (c) Microsoft. All rights reserved.

// Command lambda serves the sample agent from AWS Lambda behind API Gateway.
//
// Configuration comes from the function environment, using the same keys
// as cmd/agent. Values written as "ssm:/name" are read from Parameter
// Store. State is kept in DynamoDB when STORAGE__TYPE=dynamodb.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/authentication"
	"github.com/microsoft/agents-sdk/go/config"
	"github.com/microsoft/agents-sdk/go/hosting"
	"github.com/microsoft/agents-sdk/go/hosting/lambda"
	"github.com/microsoft/agents-sdk/go/internal/sample"
	"github.com/microsoft/agents-sdk/go/storage"
	"github.com/microsoft/agents-sdk/go/storage/dynamodb"
)

func main() {
	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}
	params, err := config.NewParamStore(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal("failed to create parameter store", err)
	}
	cfg, err := config.Load(ctx, config.WithEnvFile(""), config.WithParamStore(params))
	if err != nil {
		fatal("failed to load configuration", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	var store storage.Storage = storage.NewMemoryStorage()
	switch cfg.Storage.Type {
	case config.StorageSQLite:
		fatal("unsupported storage", fmt.Errorf("sqlite storage does not survive Lambda instances; use %s", config.StorageDynamoDB))
	case config.StorageDynamoDB:
		var opts []dynamodb.Option
		if cfg.Storage.TTL > 0 {
			opts = append(opts, dynamodb.WithTTL(cfg.Storage.TTL))
		}
		store, err = dynamodb.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Storage.Table, opts...)
		if err != nil {
			fatal("failed to create state storage", err)
		}
	}

	connections, err := authentication.NewConnectionManager(cfg.ConnectionSettings(), cfg.ConnectionsMap)
	if err != nil {
		fatal("failed to create connections", err)
	}

	agent, err := sample.NewAgent(store, logger)
	if err != nil {
		fatal("failed to create agent", err)
	}

	adapterOpts := []hosting.AdapterOption{
		hosting.WithMiddleware(agents.LoggingMiddleware(logger)),
		hosting.WithOnTurnError(hosting.DefaultOnTurnError),
		hosting.WithLogger(logger),
	}
	if len(connections.Names()) > 0 {
		adapterOpts = append(adapterOpts, hosting.WithConnections(connections))
	}
	adapter := hosting.NewCloudAdapter(adapterOpts...)

	validator := authentication.NewJWTValidator(connections.ClientIDs(),
		authentication.WithTenantIssuers(connections.TenantIDs()...),
		authentication.WithValidatorLogger(logger),
	)

	// Lambda freezes between invocations, so turns always run in-request.
	messages := hosting.NewMessagesHandler(adapter, agent,
		hosting.WithAuthenticator(validator),
		hosting.WithHandlerLogger(logger),
	)
	awslambda.Start(lambda.NewHandler(messages).Handle)
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
