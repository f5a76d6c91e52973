package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/interp"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// TextClassifierHandler asks a chat provider to pick one category for a piece
// of text. The model is instructed to answer with the category name only; the
// answer is matched case-insensitively against the configured categories.
type TextClassifierHandler struct {
	providers *chatProviders
}

// NewTextClassifier creates the textClassifier handler.
func NewTextClassifier(ai config.AIConfig) *TextClassifierHandler {
	return &TextClassifierHandler{providers: &chatProviders{ai: ai}}
}

func (h *TextClassifierHandler) NodeType() string {
	return models.TypeTextClassifier
}

func (h *TextClassifierHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	p := node.Parameters
	provider := models.GetString(p, "provider", "openai")
	model := models.GetString(p, "model", "")
	if model == "" {
		model = h.providers.defaultModel(provider)
	}
	text := interp.Interpolate(ctx, models.GetString(p, "text", ""), input, ec.Credentials())
	categories := models.GetStringList(p, "categories")
	fallback := models.GetString(p, "fallbackCategory", "")
	timeout := time.Duration(models.GetInt(p, "timeoutMs", 60000)) * time.Millisecond

	if text == "" {
		return nil, flowerr.New(flowerr.KindHandlerFailure, "textClassifier node %s has no text", node.ID)
	}
	if len(categories) == 0 {
		return nil, flowerr.New(flowerr.KindHandlerFailure, "textClassifier node %s has no categories", node.ID)
	}

	apiKey := ""
	if node.CredentialRef != "" {
		key, err := ec.ResolveCredential(ctx, node)
		if err != nil {
			return nil, err
		}
		apiKey = key
	}

	chatCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := h.providers.chat(chatCtx, provider, apiKey, chatRequest{
		Model:     model,
		System:    classifierSystemPrompt,
		Prompt:    classifierPrompt(text, categories),
		MaxTokens: 32,
	})
	if err != nil {
		if chatCtx.Err() == context.DeadlineExceeded {
			return nil, flowerr.New(flowerr.KindTimeout, "%s classification timed out after %s", provider, timeout)
		}
		return nil, err
	}

	category, matched := matchCategory(resp.Text, categories)
	if !matched && fallback != "" {
		category = fallback
	}

	out := models.Clone(input)
	out["category"] = category
	out["_matched"] = matched
	out["provider"] = provider
	out["model"] = resp.Model
	return out, nil
}

const classifierSystemPrompt = "You are a text classifier. Reply with exactly one category name from the list, nothing else."

func classifierPrompt(text string, categories []string) string {
	return fmt.Sprintf("Categories: %s\n\nText:\n%s\n\nCategory:", strings.Join(categories, ", "), text)
}

// matchCategory looks for a configured category in the model's answer,
// preferring an exact match over a substring match.
func matchCategory(answer string, categories []string) (string, bool) {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(answer), `"'.`))
	for _, c := range categories {
		if strings.ToLower(c) == cleaned {
			return c, true
		}
	}
	for _, c := range categories {
		if strings.Contains(cleaned, strings.ToLower(c)) {
			return c, true
		}
	}
	return "", false
}
