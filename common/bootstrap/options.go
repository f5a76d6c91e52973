package bootstrap

import (
	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/logger"
	"github.com/flowmesh/flowmesh/common/store"
)

// Option customizes Setup behavior
type Option func(*options)

type options struct {
	customConfig      *config.Config
	customLogger      *logger.Logger
	customCredentials store.CredentialStore
	skipDB            bool
	skipRedis         bool
}

func defaultOptions() *options {
	return &options{}
}

// WithConfig uses a pre-built config instead of loading from the environment
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

// WithLogger uses a pre-built logger
func WithLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCredentialStore overrides the default env-backed credential store
func WithCredentialStore(creds store.CredentialStore) Option {
	return func(o *options) {
		o.customCredentials = creds
	}
}

// SkipDB forces in-memory stores even when Postgres is enabled in config
func SkipDB() Option {
	return func(o *options) {
		o.skipDB = true
	}
}

// SkipRedis skips the Redis connection even when enabled in config
func SkipRedis() Option {
	return func(o *options) {
		o.skipRedis = true
	}
}
