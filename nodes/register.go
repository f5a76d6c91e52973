package nodes

import (
	"github.com/flowmesh/flowmesh/common/condition"
	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/ratelimit"
	"github.com/flowmesh/flowmesh/engine"
)

// Deps carries the shared infrastructure the node handlers need.
type Deps struct {
	Config  *config.Config
	Buckets *ratelimit.Registry
}

// RegisterAll wires every built-in node type into the registry.
func RegisterAll(reg *engine.Registry, deps Deps) {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	buckets := deps.Buckets
	if buckets == nil {
		buckets = ratelimit.NewRegistry()
	}
	evaluator := condition.NewEvaluator()

	reg.MustRegister(NewManualTrigger())
	reg.MustRegister(NewScheduleTrigger())
	reg.MustRegister(NewWebhookTrigger())

	reg.MustRegister(NewIf(evaluator))
	reg.MustRegister(NewSwitch())
	reg.MustRegister(NewMerge())
	reg.MustRegister(NewLoop())
	reg.MustRegister(NewTryCatch())
	reg.MustRegister(NewRetry())
	reg.MustRegister(NewRateLimit(buckets))
	reg.MustRegister(NewSubworkflow())

	reg.MustRegister(NewHTTPRequest(cfg.HTTP))
	reg.MustRegister(NewCode())
	reg.MustRegister(NewExecuteCommand())
	reg.MustRegister(NewSet())
	reg.MustRegister(NewFilter())
	reg.MustRegister(NewSort())

	reg.MustRegister(NewLLMChat(cfg.AI))
	reg.MustRegister(NewTextClassifier(cfg.AI))
	reg.MustRegister(NewEmbedding(cfg.AI))
	reg.MustRegister(NewRAG(cfg.AI))
}
