package nodes

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// embeddingProviders turns texts into vectors via openai, ollama or cohere.
// Shared by the embedding and rag handlers.
type embeddingProviders struct {
	ai config.AIConfig
}

func (e *embeddingProviders) embed(ctx context.Context, provider, apiKey, model string, texts []string) ([][]float64, error) {
	switch provider {
	case "openai":
		return e.openaiEmbed(ctx, apiKey, model, texts)
	case "ollama":
		return e.ollamaEmbed(ctx, model, texts)
	case "cohere":
		return e.cohereEmbed(ctx, apiKey, model, texts)
	default:
		return nil, flowerr.New(flowerr.KindHandlerFailure, "unknown embedding provider %q", provider)
	}
}

func (e *embeddingProviders) defaultModel(provider string) string {
	switch provider {
	case "ollama":
		return e.ai.OllamaModel
	case "cohere":
		return "embed-english-v3.0"
	default:
		return e.ai.EmbeddingModel
	}
}

func (e *embeddingProviders) openaiEmbed(ctx context.Context, apiKey, model string, texts []string) ([][]float64, error) {
	if apiKey == "" {
		apiKey = e.ai.OpenAIAPIKey
	}
	if apiKey == "" {
		return nil, flowerr.New(flowerr.KindCredentialMissing, "openai API key is not configured")
	}
	cfg := openai.DefaultConfig(apiKey)
	if e.ai.OpenAIBaseURL != "" {
		cfg.BaseURL = e.ai.OpenAIBaseURL
	}
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, wrapProviderError("openai", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, flowerr.New(flowerr.KindExternalFailure, "openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float64, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float64, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float64(f)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}

// ollamaEmbed calls Ollama's /api/embeddings endpoint, which takes one prompt
// per request.
func (e *embeddingProviders) ollamaEmbed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))
	for _, text := range texts {
		var decoded struct {
			Embedding []float64 `json:"embedding"`
		}
		payload := models.M{"model": model, "prompt": text}
		if err := postJSON(ctx, e.ai.OllamaBaseURL+"/api/embeddings", "", payload, &decoded); err != nil {
			return nil, err
		}
		vectors = append(vectors, decoded.Embedding)
	}
	return vectors, nil
}

func (e *embeddingProviders) cohereEmbed(ctx context.Context, apiKey, model string, texts []string) ([][]float64, error) {
	if apiKey == "" {
		apiKey = e.ai.CohereAPIKey
	}
	if apiKey == "" {
		return nil, flowerr.New(flowerr.KindCredentialMissing, "cohere API key is not configured")
	}

	payload := models.M{
		"texts":      texts,
		"model":      model,
		"input_type": "search_document",
	}
	var decoded struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := postJSON(ctx, e.ai.CohereBaseURL+"/v1/embed", apiKey, payload, &decoded); err != nil {
		return nil, err
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, flowerr.New(flowerr.KindExternalFailure, "cohere returned %d embeddings for %d inputs", len(decoded.Embeddings), len(texts))
	}
	return decoded.Embeddings, nil
}

// EmbeddingHandler computes embedding vectors for one text or a list of texts.
type EmbeddingHandler struct {
	providers *embeddingProviders
}

// NewEmbedding creates the embedding handler.
func NewEmbedding(ai config.AIConfig) *EmbeddingHandler {
	return &EmbeddingHandler{providers: &embeddingProviders{ai: ai}}
}

func (h *EmbeddingHandler) NodeType() string {
	return models.TypeEmbedding
}

func (h *EmbeddingHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	p := node.Parameters
	provider := models.GetString(p, "provider", "openai")
	model := models.GetString(p, "model", "")
	if model == "" {
		model = h.providers.defaultModel(provider)
	}
	timeout := time.Duration(models.GetInt(p, "timeoutMs", 60000)) * time.Millisecond

	texts, err := embeddingTexts(input, p)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindHandlerFailure, err, "embedding node %s", node.ID)
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

	vectors, err := h.providers.embed(embedCtx, provider, apiKey, model, texts)
	if err != nil {
		if embedCtx.Err() == context.DeadlineExceeded {
			return nil, flowerr.New(flowerr.KindTimeout, "%s embedding timed out after %s", provider, timeout)
		}
		return nil, err
	}

	dimensions := 0
	if len(vectors) > 0 {
		dimensions = len(vectors[0])
	}

	embeddings := make([]any, len(vectors))
	for i, v := range vectors {
		embeddings[i] = v
	}

	out := models.Clone(input)
	out["embeddings"] = embeddings
	out["model"] = model
	out["provider"] = provider
	out["dimensions"] = dimensions
	out["count"] = len(vectors)
	return out, nil
}

// embeddingTexts accepts either a single text parameter or a texts list
// (direct or a path into the input).
func embeddingTexts(input models.M, p models.M) ([]string, error) {
	if text := models.GetString(p, "text", ""); text != "" {
		return []string{text}, nil
	}

	items := resolveItems(input, p["texts"])
	if len(items) == 0 {
		return nil, fmt.Errorf("no text or texts parameter")
	}
	texts := make([]string, 0, len(items))
	for _, item := range items {
		texts = append(texts, fmt.Sprintf("%v", item))
	}
	return texts, nil
}
