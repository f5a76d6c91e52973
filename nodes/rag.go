package nodes

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/interp"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// RAGHandler embeds a query and a document set, then returns the documents
// most similar to the query by cosine similarity.
type RAGHandler struct {
	providers *embeddingProviders
}

// NewRAG creates the rag handler.
func NewRAG(ai config.AIConfig) *RAGHandler {
	return &RAGHandler{providers: &embeddingProviders{ai: ai}}
}

func (h *RAGHandler) NodeType() string {
	return models.TypeRAG
}

func (h *RAGHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	p := node.Parameters
	provider := models.GetString(p, "provider", "openai")
	model := models.GetString(p, "model", "")
	if model == "" {
		model = h.providers.defaultModel(provider)
	}
	query := interp.Interpolate(ctx, models.GetString(p, "query", ""), input, ec.Credentials())
	topK := models.GetInt(p, "topK", 3)
	if topK < 1 {
		topK = 1
	}
	timeout := time.Duration(models.GetInt(p, "timeoutMs", 120000)) * time.Millisecond

	if query == "" {
		return nil, flowerr.New(flowerr.KindHandlerFailure, "rag node %s has no query", node.ID)
	}

	docItems := resolveItems(input, p["documents"])
	if len(docItems) == 0 {
		out := models.Clone(input)
		out["query"] = query
		out["matches"] = []any{}
		return out, nil
	}
	documents := make([]string, len(docItems))
	for i, d := range docItems {
		documents[i] = fmt.Sprintf("%v", d)
	}

	apiKey := ""
	if node.CredentialRef != "" {
		key, err := ec.ResolveCredential(ctx, node)
		if err != nil {
			return nil, err
		}
		apiKey = key
	}

	embedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// One call embeds the query alongside the documents.
	vectors, err := h.providers.embed(embedCtx, provider, apiKey, model, append([]string{query}, documents...))
	if err != nil {
		if embedCtx.Err() == context.DeadlineExceeded {
			return nil, flowerr.New(flowerr.KindTimeout, "%s embedding timed out after %s", provider, timeout)
		}
		return nil, err
	}

	queryVec := vectors[0]
	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(documents))
	for i := range documents {
		ranked[i] = scored{index: i, score: cosineSimilarity(queryVec, vectors[i+1])}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if topK > len(ranked) {
		topK = len(ranked)
	}
	matches := make([]any, 0, topK)
	for _, r := range ranked[:topK] {
		matches = append(matches, models.M{
			"text":  documents[r.index],
			"score": r.score,
			"index": r.index,
		})
	}

	out := models.Clone(input)
	out["query"] = query
	out["matches"] = matches
	out["model"] = model
	out["provider"] = provider
	return out, nil
}

// cosineSimilarity returns 0 for mismatched or zero-magnitude vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
