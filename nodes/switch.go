package nodes

import (
	"context"

	"github.com/flowmesh/flowmesh/common/condition"
	"github.com/flowmesh/flowmesh/common/logpipe"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// SwitchHandler routes to the first rule whose conditions hold, in rule
// order, and to the fallback handle when none match.
type SwitchHandler struct{}

// NewSwitch creates the switch handler.
func NewSwitch() *SwitchHandler {
	return &SwitchHandler{}
}

func (h *SwitchHandler) NodeType() string {
	return models.TypeSwitch
}

func (h *SwitchHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	fallback := models.GetString(node.Parameters, "fallbackOutput", models.HandleFallback)

	out := models.Clone(input)
	for i, raw := range models.GetList(node.Parameters, "rules") {
		rm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rule := condition.RuleFromMap(rm)
		matched, err := rule.Matches(input)
		if err != nil {
			ec.Log().Log(ctx, logpipe.LevelWarn, "switch rule evaluation failed", models.M{
				"node_id": node.ID,
				"rule":    rule.Name,
				"error":   err.Error(),
			})
			continue
		}
		if matched {
			branch := rule.Name
			if branch == "" {
				branch = models.HandleMain
			}
			out["_branch"] = branch
			out["_matchedRuleIndex"] = i
			out["_matched"] = true
			return out, nil
		}
	}

	out["_branch"] = fallback
	out["_matchedRuleIndex"] = -1
	out["_matched"] = false
	return out, nil
}
