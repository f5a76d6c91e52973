package bootstrap

import (
	"context"
	"fmt"

	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/db"
	"github.com/flowmesh/flowmesh/common/logger"
	"github.com/flowmesh/flowmesh/common/logpipe"
	"github.com/flowmesh/flowmesh/common/redis"
	"github.com/flowmesh/flowmesh/common/store"
)

// memorySinkCapacity bounds retained log entries per execution.
const memorySinkCapacity = 1000

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	// Apply options
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	components.Settings = config.SettingsFromConfig(components.Config)

	// 3. Initialize database-backed or in-memory stores
	if components.Config.Database.Enabled && !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})

		components.Workflows = store.NewPostgresWorkflowStore(components.DB)
		components.Executions = store.NewPostgresExecutionStore(components.DB)
	} else {
		components.Workflows = store.NewMemoryWorkflowStore()
		components.Executions = store.NewMemoryExecutionStore()
	}

	// 4. Credential store
	if options.customCredentials != nil {
		components.Credentials = options.customCredentials
	} else {
		components.Credentials = store.NewEnvCredentialStore()
	}

	// 5. Redis (execution event sink, API rate limiting)
	if components.Config.Redis.Enabled && !options.skipRedis {
		components.Logger.Info("connecting to redis", "addr", components.Config.Redis.Addr)
		components.Redis, err = redis.Connect(ctx, components.Config.Redis)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	// 6. Execution log pipeline
	minLevel := logpipe.ParseLevel(components.Config.Service.LogLevel)
	components.Pipeline = logpipe.NewPipeline()
	components.Pipeline.AddSink(logpipe.NewSlogSink(components.Logger), minLevel)
	components.Memory = logpipe.NewMemorySink(memorySinkCapacity)
	components.Pipeline.AddSink(components.Memory, minLevel)
	if components.Redis != nil {
		components.Pipeline.AddSink(logpipe.NewRedisSink(components.Redis, components.Logger), minLevel)
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
// Useful for services that can't recover from initialization failure
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
