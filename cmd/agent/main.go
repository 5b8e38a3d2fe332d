// Copyright (c) Microsoft. All rights reserved.

// Command agent hosts a sample agent on an HTTP messages endpoint.
//
// Configuration is read from agent.yaml (if present), .env and the
// environment. Without any connections configured the agent runs
// anonymously, which is what the local emulator expects:
//
//	go run ./cmd/agent
//
// To talk to Azure Bot Service configure a client secret connection:
//
//	export CONNECTIONS__SERVICECONNECTION__SETTINGS__CLIENTID=<app id>
//	export CONNECTIONS__SERVICECONNECTION__SETTINGS__CLIENTSECRET=<secret>
//	export CONNECTIONS__SERVICECONNECTION__SETTINGS__TENANTID=<tenant>
//	go run ./cmd/agent
//
// Secrets may be kept in SSM Parameter Store by writing them as
// "ssm:/parameter/name".
//
// State is kept in memory unless storage is configured. For a local file:
//
//	export STORAGE__TYPE=sqlite
//	export STORAGE__DSN=agent-state.db
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/authentication"
	"github.com/microsoft/agents-sdk/go/config"
	"github.com/microsoft/agents-sdk/go/hosting"
	"github.com/microsoft/agents-sdk/go/internal/sample"
	"github.com/microsoft/agents-sdk/go/storage"
	"github.com/microsoft/agents-sdk/go/storage/dynamodb"
	"github.com/microsoft/agents-sdk/go/storage/sqlstore"
)

func main() {
	configFile := flag.String("config", "", "YAML configuration file (default agent.yaml if present)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		slog.Error("agent stopped", "error", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if configFile == "" {
		if _, err := os.Stat("agent.yaml"); err == nil {
			configFile = "agent.yaml"
		}
	}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	opts := []config.Option{}
	if configFile != "" {
		opts = append(opts, config.WithFile(configFile))
	}
	if os.Getenv("AGENT_USE_SSM") != "" {
		c, err := loadAWS()
		if err != nil {
			return err
		}
		params, err := config.NewParamStore(ssm.NewFromConfig(c))
		if err != nil {
			return err
		}
		opts = append(opts, config.WithParamStore(params))
	}
	cfg, err := config.Load(ctx, opts...)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	store, err := newStorage(ctx, cfg.Storage, loadAWS, logger)
	if err != nil {
		return err
	}

	connections, err := authentication.NewConnectionManager(cfg.ConnectionSettings(), cfg.ConnectionsMap)
	if err != nil {
		return err
	}

	agent, err := sample.NewAgent(store, logger)
	if err != nil {
		return err
	}

	adapterOpts := []hosting.AdapterOption{
		hosting.WithMiddleware(agents.LoggingMiddleware(logger)),
		hosting.WithOnTurnError(hosting.DefaultOnTurnError),
		hosting.WithLogger(logger),
	}
	// Anonymous mode sends replies without a token.
	if len(connections.Names()) > 0 {
		adapterOpts = append(adapterOpts, hosting.WithConnections(connections))
	}
	adapter := hosting.NewCloudAdapter(adapterOpts...)

	handlerOpts := []hosting.MessagesOption{
		hosting.WithAuthenticator(newValidator(connections, logger)),
		hosting.WithHandlerLogger(logger),
	}
	var worker *hosting.HostedActivityService
	if cfg.Queue.Async {
		queue := hosting.NewActivityTaskQueue()
		worker = hosting.NewHostedActivityService(adapter, queue, agent, hosting.WithServiceLogger(logger))
		// Detached from the signal context so Shutdown can drain the queue.
		worker.Start(context.Background())
		handlerOpts = append(handlerOpts, hosting.WithAsync(queue))
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MessagesPath, hosting.NewMessagesHandler(adapter, agent, handlerOpts...))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "path", cfg.MessagesPath,
			"connections", strings.Join(connections.Names(), ","), "async", cfg.Queue.Async)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if worker != nil {
		if err := worker.Shutdown(shutdownCtx, true); err != nil {
			return err
		}
	}
	return nil
}

func newStorage(ctx context.Context, cfg config.StorageConfig, loadAWS func() (aws.Config, error), logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Type {
	case config.StorageSQLite:
		db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
			Logger: gormlogger.New(slog.NewLogLogger(logger.Handler(), slog.LevelWarn), gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows one writer at a time.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		s, err := sqlstore.New(sqlstore.Config{DB: db, TableName: cfg.Table, CreateTable: true})
		if err != nil {
			return nil, err
		}
		if err := s.Initialize(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageDynamoDB:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		var opts []dynamodb.Option
		if cfg.TTL > 0 {
			opts = append(opts, dynamodb.WithTTL(cfg.TTL))
		}
		return dynamodb.New(awsdynamodb.NewFromConfig(c), cfg.Table, opts...)
	default:
		return storage.NewMemoryStorage(), nil
	}
}

// newValidator accepts tokens addressed to any configured client id. With
// no client ids the endpoint is anonymous.
func newValidator(connections *authentication.ConnectionManager, logger *slog.Logger) *authentication.JWTValidator {
	return authentication.NewJWTValidator(connections.ClientIDs(),
		authentication.WithTenantIssuers(connections.TenantIDs()...),
		authentication.WithValidatorLogger(logger),
	)
}
