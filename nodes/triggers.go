package nodes

import (
	"context"
	"time"

	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// TriggerHandler covers the trigger node types. Triggers do no work of their
// own; they pass the initial input through annotated with trigger metadata.
type TriggerHandler struct {
	nodeType string
}

// NewManualTrigger creates the manualTrigger handler.
func NewManualTrigger() *TriggerHandler {
	return &TriggerHandler{nodeType: models.TypeManualTrigger}
}

// NewScheduleTrigger creates the scheduleTrigger handler.
func NewScheduleTrigger() *TriggerHandler {
	return &TriggerHandler{nodeType: models.TypeScheduleTrigger}
}

// NewWebhookTrigger creates the webhookTrigger handler.
func NewWebhookTrigger() *TriggerHandler {
	return &TriggerHandler{nodeType: models.TypeWebhookTrigger}
}

func (h *TriggerHandler) NodeType() string {
	return h.nodeType
}

func (h *TriggerHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	out := models.Clone(input)
	out["_trigger"] = h.nodeType
	out["_triggeredAt"] = time.Now().UTC().Format(time.RFC3339)
	return out, nil
}
