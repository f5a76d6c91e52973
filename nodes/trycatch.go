package nodes

import (
	"context"
	"errors"
	"time"

	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/logpipe"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// TryCatchHandler runs an operation body and absorbs its failures into a
// variable, with optional catch and finally bodies.
type TryCatchHandler struct{}

// NewTryCatch creates the tryCatch handler.
func NewTryCatch() *TryCatchHandler {
	return &TryCatchHandler{}
}

func (h *TryCatchHandler) NodeType() string {
	return models.TypeTryCatch
}

func (h *TryCatchHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	tryOps := models.GetList(node.Parameters, "tryOperations")
	catchOps := models.GetList(node.Parameters, "catchOperations")
	finallyOps := models.GetList(node.Parameters, "finallyOperations")
	errorVariable := models.GetString(node.Parameters, "errorVariable", "error")
	continueOnError := models.GetBool(node.Parameters, "continueOnError", true)
	logErrors := models.GetBool(node.Parameters, "logErrors", true)

	out, tryErr := ec.RunOperations(ctx, tryOps, input)
	if out == nil {
		out = models.Clone(input)
	}

	// Cancellation is never absorbed; the run must terminate CANCELLED.
	if tryErr != nil && flowerr.KindOf(tryErr) == flowerr.KindCancelled {
		return nil, tryErr
	}

	if tryErr != nil {
		if logErrors {
			ec.Log().Log(ctx, logpipe.LevelWarn, "tryCatch absorbed error", models.M{
				"node_id": node.ID,
				"kind":    string(flowerr.KindOf(tryErr)),
				"error":   tryErr.Error(),
			})
		}
		out[errorVariable] = errorDetails(tryErr)

		if len(catchOps) > 0 {
			catchOut, catchErr := ec.RunOperations(ctx, catchOps, out)
			if catchErr != nil {
				if flowerr.KindOf(catchErr) == flowerr.KindCancelled {
					return nil, catchErr
				}
				out["catchError"] = errorDetails(catchErr)
				if !continueOnError {
					return nil, catchErr
				}
			} else {
				out = catchOut
			}
		}
	}

	if len(finallyOps) > 0 {
		finallyIn := models.Clone(out)
		finallyIn["_success"] = tryErr == nil
		finallyIn["_hadError"] = tryErr != nil
		finallyOut, finallyErr := ec.RunOperations(ctx, finallyOps, finallyIn)
		if finallyErr != nil {
			if flowerr.KindOf(finallyErr) == flowerr.KindCancelled {
				return nil, finallyErr
			}
			out["finallyError"] = errorDetails(finallyErr)
			if !continueOnError {
				return nil, finallyErr
			}
		} else {
			out = finallyOut
		}
	}

	if tryErr != nil && !continueOnError {
		return nil, tryErr
	}

	out["_tryCatchSuccess"] = tryErr == nil
	out["_tryCatchExecuted"] = true
	return out, nil
}

// errorDetails shapes a caught error for the data bus.
func errorDetails(err error) models.M {
	details := models.M{
		"message":   err.Error(),
		"type":      string(flowerr.KindOf(err)),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	var fe *flowerr.Error
	if errors.As(err, &fe) && fe.Cause != nil {
		details["cause"] = fe.Cause.Error()
	}
	return details
}
