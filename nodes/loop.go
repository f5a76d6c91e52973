package nodes

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// LoopHandler iterates an item list through an embedded operation body,
// sequentially or in parallel batches with cancel-on-first-failure.
type LoopHandler struct{}

// NewLoop creates the loop handler.
func NewLoop() *LoopHandler {
	return &LoopHandler{}
}

func (h *LoopHandler) NodeType() string {
	return models.TypeLoop
}

func (h *LoopHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	items := resolveItems(input, node.Parameters["items"])
	operations := models.GetList(node.Parameters, "operations")
	parallel := models.GetBool(node.Parameters, "parallel", false)
	batchSize := models.GetInt(node.Parameters, "batchSize", 10)
	if batchSize < 1 {
		batchSize = 1
	}

	out := models.Clone(input)
	if len(items) == 0 {
		out["results"] = []any{}
		out["count"] = 0
		return out, nil
	}

	var results []any
	var err error
	if parallel {
		results, err = h.runParallel(ctx, ec, operations, items, batchSize)
	} else {
		results, err = h.runSequential(ctx, ec, operations, items)
	}
	if err != nil {
		return nil, err
	}

	out["results"] = results
	out["count"] = len(results)
	return out, nil
}

func (h *LoopHandler) runSequential(ctx context.Context, ec *engine.ExecutionContext, operations []any, items []any) ([]any, error) {
	results := make([]any, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, flowerr.Wrap(flowerr.KindCancelled, err, "loop cancelled at item %d", i)
		}
		result, err := ec.RunOperations(ctx, operations, itemInput(item, i, len(items)))
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// runParallel partitions items into batches. Within a batch bodies run
// concurrently; the first failure cancels the batch's siblings and fails the
// loop, discarding collected results. Batches run one after another.
func (h *LoopHandler) runParallel(ctx context.Context, ec *engine.ExecutionContext, operations []any, items []any, batchSize int) ([]any, error) {
	results := make([]any, len(items))

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		g, batchCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				result, err := ec.RunOperations(batchCtx, operations, itemInput(items[i], i, len(items)))
				if err != nil {
					return err
				}
				results[i] = result
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func itemInput(item any, index, total int) models.M {
	return models.M{
		"item":  item,
		"index": index,
		"total": total,
	}
}
