package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"

	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/interp"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// chatRequest is the provider-neutral shape of one chat exchange.
type chatRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// chatResponse carries the provider's answer and token accounting.
type chatResponse struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// chatProviders dispatches chat requests to openai, anthropic, azure and
// ollama. It is shared by the llmChat and textClassifier handlers.
type chatProviders struct {
	ai config.AIConfig
}

func (c *chatProviders) chat(ctx context.Context, provider string, apiKey string, req chatRequest) (chatResponse, error) {
	switch provider {
	case "openai":
		return c.openaiChat(ctx, c.key(apiKey, c.ai.OpenAIAPIKey), c.ai.OpenAIBaseURL, req)
	case "azure":
		key := c.key(apiKey, c.ai.AzureAPIKey)
		if c.ai.AzureBaseURL == "" {
			return chatResponse{}, flowerr.New(flowerr.KindHandlerFailure, "azure base URL is not configured")
		}
		cfg := openai.DefaultAzureConfig(key, c.ai.AzureBaseURL)
		return c.openaiChatWith(ctx, openai.NewClientWithConfig(cfg), req)
	case "anthropic":
		return c.anthropicChat(ctx, c.key(apiKey, c.ai.AnthropicAPIKey), req)
	case "ollama":
		return c.ollamaChat(ctx, req)
	default:
		return chatResponse{}, flowerr.New(flowerr.KindHandlerFailure, "unknown LLM provider %q", provider)
	}
}

// key prefers the node credential over the configured provider key.
func (c *chatProviders) key(nodeKey, configKey string) string {
	if nodeKey != "" {
		return nodeKey
	}
	return configKey
}

func (c *chatProviders) defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return c.ai.AnthropicModel
	case "azure":
		return c.ai.AzureModel
	case "ollama":
		return c.ai.OllamaModel
	default:
		return c.ai.OpenAIModel
	}
}

func (c *chatProviders) openaiChat(ctx context.Context, apiKey, baseURL string, req chatRequest) (chatResponse, error) {
	if apiKey == "" {
		return chatResponse{}, flowerr.New(flowerr.KindCredentialMissing, "openai API key is not configured")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return c.openaiChatWith(ctx, openai.NewClientWithConfig(cfg), req)
}

func (c *chatProviders) openaiChatWith(ctx context.Context, client *openai.Client, req chatRequest) (chatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return chatResponse{}, wrapProviderError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return chatResponse{}, flowerr.New(flowerr.KindExternalFailure, "openai returned no choices")
	}

	return chatResponse{
		Text:             resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *chatProviders) anthropicChat(ctx context.Context, apiKey string, req chatRequest) (chatResponse, error) {
	if apiKey == "" {
		return chatResponse{}, flowerr.New(flowerr.KindCredentialMissing, "anthropic API key is not configured")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return chatResponse{}, wrapProviderError("anthropic", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return chatResponse{
		Text:             text.String(),
		Model:            string(msg.Model),
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// ollamaChat speaks Ollama's native /api/chat endpoint.
func (c *chatProviders) ollamaChat(ctx context.Context, req chatRequest) (chatResponse, error) {
	messages := make([]models.M, 0, 2)
	if req.System != "" {
		messages = append(messages, models.M{"role": "system", "content": req.System})
	}
	messages = append(messages, models.M{"role": "user", "content": req.Prompt})

	payload := models.M{
		"model":    req.Model,
		"messages": messages,
		"stream":   false,
		"options":  models.M{"temperature": req.Temperature, "num_predict": req.MaxTokens},
	}

	var decoded struct {
		Model   string `json:"model"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		PromptEvalCount int `json:"prompt_eval_count"`
		EvalCount       int `json:"eval_count"`
	}
	if err := postJSON(ctx, c.ai.OllamaBaseURL+"/api/chat", "", payload, &decoded); err != nil {
		return chatResponse{}, err
	}

	return chatResponse{
		Text:             decoded.Message.Content,
		Model:            decoded.Model,
		PromptTokens:     decoded.PromptEvalCount,
		CompletionTokens: decoded.EvalCount,
	}, nil
}

// postJSON is the raw HTTP idiom shared by the ollama and cohere providers.
func postJSON(ctx context.Context, url, bearer string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return flowerr.Wrap(flowerr.KindHandlerFailure, err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(encoded))
	if err != nil {
		return flowerr.Wrap(flowerr.KindHandlerFailure, err, "invalid request")
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return flowerr.Wrap(flowerr.KindCancelled, ctx.Err(), "request cancelled")
		}
		return flowerr.Wrap(flowerr.KindHandlerFailure, err, "request to %s failed", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return flowerr.Wrap(flowerr.KindHandlerFailure, err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return flowerr.External(resp.StatusCode, string(body), "POST %s returned %d", url, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return flowerr.Wrap(flowerr.KindHandlerFailure, err, "failed to decode response from %s", url)
	}
	return nil
}

func wrapProviderError(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return flowerr.External(apiErr.HTTPStatusCode, apiErr.Message, "%s API error", provider)
	}
	return flowerr.Wrap(flowerr.KindExternalFailure, err, "%s request failed", provider)
}

// LLMChatHandler sends a prompt to the configured chat provider.
type LLMChatHandler struct {
	providers *chatProviders
}

// NewLLMChat creates the llmChat handler.
func NewLLMChat(ai config.AIConfig) *LLMChatHandler {
	return &LLMChatHandler{providers: &chatProviders{ai: ai}}
}

func (h *LLMChatHandler) NodeType() string {
	return models.TypeLLMChat
}

func (h *LLMChatHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	p := node.Parameters
	provider := models.GetString(p, "provider", "openai")
	model := models.GetString(p, "model", "")
	if model == "" {
		model = h.providers.defaultModel(provider)
	}
	prompt := interp.Interpolate(ctx, models.GetString(p, "prompt", ""), input, ec.Credentials())
	system := interp.Interpolate(ctx, models.GetString(p, "systemPrompt", ""), input, ec.Credentials())
	temperature := models.GetFloat(p, "temperature", 0.7)
	maxTokens := models.GetInt(p, "maxTokens", 1024)
	timeout := time.Duration(models.GetInt(p, "timeoutMs", 60000)) * time.Millisecond

	if prompt == "" {
		return nil, flowerr.New(flowerr.KindHandlerFailure, "llmChat node %s has no prompt", node.ID)
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
		Model:       model,
		System:      system,
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		if chatCtx.Err() == context.DeadlineExceeded {
			return nil, flowerr.New(flowerr.KindTimeout, "%s chat timed out after %s", provider, timeout)
		}
		return nil, err
	}

	out := models.Clone(input)
	out["response"] = resp.Text
	out["model"] = resp.Model
	out["provider"] = provider
	out["usage"] = models.M{
		"promptTokens":     resp.PromptTokens,
		"completionTokens": resp.CompletionTokens,
		"totalTokens":      resp.PromptTokens + resp.CompletionTokens,
	}
	return out, nil
}
