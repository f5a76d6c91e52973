package container

import (
	"github.com/flowmesh/flowmesh/common/bootstrap"
	"github.com/flowmesh/flowmesh/common/ratelimit"
	"github.com/flowmesh/flowmesh/engine"
	"github.com/flowmesh/flowmesh/nodes"
)

// Container holds the service singletons built on top of the bootstrapped
// components.
type Container struct {
	Components *bootstrap.Components
	Executor   *engine.Executor
	Buckets    *ratelimit.Registry
	APILimiter *ratelimit.RedisLimiter
}

// NewContainer wires the handler registry and the executor.
func NewContainer(components *bootstrap.Components) (*Container, error) {
	buckets := ratelimit.NewRegistry()

	registry := engine.NewRegistry()
	nodes.RegisterAll(registry, nodes.Deps{
		Config:  components.Config,
		Buckets: buckets,
	})

	executor := engine.New(engine.Options{
		Workflows:   components.Workflows,
		Executions:  components.Executions,
		Credentials: components.Credentials,
		Settings:    components.Settings,
		Registry:    registry,
		Pipeline:    components.Pipeline,
		Logger:      components.Logger,
	})

	c := &Container{
		Components: components,
		Executor:   executor,
		Buckets:    buckets,
	}
	if components.Redis != nil {
		c.APILimiter = ratelimit.NewRedisLimiter(components.Redis, components.Logger)
	}
	return c, nil
}
