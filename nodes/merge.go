package nodes

import (
	"context"
	"time"

	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// MergeHandler coordinates multiple upstream branches. The engine starts it
// on the first delivery and forwards later deliveries on the node's stream,
// so waitAny can unblock downstreams while slow branches are still running.
type MergeHandler struct{}

// NewMerge creates the merge handler.
func NewMerge() *MergeHandler {
	return &MergeHandler{}
}

func (h *MergeHandler) NodeType() string {
	return models.TypeMerge
}

func (h *MergeHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	mode := models.GetString(node.Parameters, "mode", "waitAll")
	expected := models.GetInt(node.Parameters, "inputCount", 2)
	if expected < 1 {
		expected = 1
	}
	timeout := time.Duration(models.GetInt(node.Parameters, "timeout", 300)) * time.Second
	outputKey := models.GetString(node.Parameters, "outputKey", "merged")

	deliveries := []models.M{input}

	if mode == "waitAny" {
		// Later deliveries stay on the stream until the engine closes it.
		return h.output(mode, outputKey, deliveries, expected, false, false), nil
	}

	stream := ec.DeliveryStream(node.ID)
	timedOut := false
	interrupted := false

	if stream != nil {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

	collect:
		for len(deliveries) < expected {
			select {
			case d, ok := <-stream:
				if !ok {
					// Every in-edge is resolved; nothing more will arrive.
					break collect
				}
				deliveries = append(deliveries, d)
			case <-timer.C:
				timedOut = true
				break collect
			case <-ctx.Done():
				interrupted = true
				break collect
			}
		}
	}

	return h.output(mode, outputKey, deliveries, expected, timedOut, interrupted), nil
}

func (h *MergeHandler) output(mode, outputKey string, deliveries []models.M, expected int, timedOut, interrupted bool) models.M {
	out := models.M{}

	switch mode {
	case "append":
		list := make([]any, len(deliveries))
		for i, d := range deliveries {
			list[i] = d
		}
		out[outputKey] = list
	case "merge":
		merged := models.M{}
		for _, d := range deliveries {
			models.MergeInto(merged, d)
		}
		out[outputKey] = merged
	default: // waitAll, waitAny
		for _, d := range deliveries {
			models.MergeInto(out, d)
		}
	}

	out["_mode"] = mode
	out["_inputsReceived"] = len(deliveries)
	out["_inputsExpected"] = expected
	if timedOut {
		out["_timedOut"] = true
	}
	if interrupted {
		out["_interrupted"] = true
	}
	return out
}
