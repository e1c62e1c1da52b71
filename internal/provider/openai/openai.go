package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/pkg/models"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second

	enhancementModel       = "gpt-3.5-turbo"
	enhancementMaxTokens   = 200
	enhancementTemperature = 0.7

	enhancementInstruction = `You are an expert at creating detailed, artistic prompts for AI image generation.
Enhance the user's prompt to be more descriptive and likely to produce high-quality, visually appealing images.
Keep the core concept but add artistic details, lighting, composition, and style elements.
Return only the enhanced prompt, no explanations.`
)

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageResponse struct {
	Created int64       `json:"created"`
	Data    []imageData `json:"data"`
	Error   *apiError   `json:"error,omitempty"`
}

type imageData struct {
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Gateway talks to the OpenAI image and chat endpoints and maps provider
// failures onto the shared error taxonomy.
type Gateway struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg *provider.Config, logger *zap.Logger) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrCredentialRequired
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

func (g *Gateway) GenerateImage(ctx context.Context, params *models.GenerationParams) (*provider.Response, error) {
	apiReq := buildImageRequest(params)

	body, status, err := g.post(ctx, "/images/generations", apiReq, g.apiKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrUnknownAPI, err)
	}

	var apiResp imageResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		// Proxies can answer with non-JSON bodies; the status still classifies.
		if status != http.StatusOK {
			return nil, classify(status, nil)
		}
		return nil, fmt.Errorf("%w: failed to parse response", provider.ErrUnknownAPI)
	}

	if status != http.StatusOK || apiResp.Error != nil {
		return nil, classify(status, apiResp.Error)
	}

	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("%w: provider returned no images", provider.ErrUnknownAPI)
	}

	resp := &provider.Response{
		Images: make([]provider.Image, 0, len(apiResp.Data)),
	}
	for i, data := range apiResp.Data {
		resp.Images = append(resp.Images, provider.Image{
			URL:           data.URL,
			RevisedPrompt: data.RevisedPrompt,
		})
		if i == 0 && data.RevisedPrompt != "" {
			resp.RevisedPrompt = data.RevisedPrompt
		}
	}

	return resp, nil
}

// buildImageRequest pins n=1 for every call and strips quality/style for
// dall-e-2, which rejects those fields.
func buildImageRequest(params *models.GenerationParams) *imageRequest {
	apiReq := &imageRequest{
		Model:          params.Model,
		Prompt:         params.Prompt,
		N:              1,
		Size:           params.Size,
		ResponseFormat: "url",
	}

	if params.Model == models.ModelDallE3 {
		apiReq.Quality = params.Quality
		apiReq.Style = params.Style
	}

	return apiReq
}

// EnhancePrompt asks a chat model to elaborate the prompt. The returned text
// is always usable: on any failure the original prompt comes back alongside
// the error.
func (g *Gateway) EnhancePrompt(ctx context.Context, prompt string) (string, error) {
	apiReq := &chatRequest{
		Model: enhancementModel,
		Messages: []chatMessage{
			{Role: "system", Content: enhancementInstruction},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   enhancementMaxTokens,
		Temperature: enhancementTemperature,
	}

	body, status, err := g.post(ctx, "/chat/completions", apiReq, g.apiKey)
	if err != nil {
		return prompt, fmt.Errorf("%w: %v", provider.ErrUnknownAPI, err)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if status != http.StatusOK {
			return prompt, classify(status, nil)
		}
		return prompt, fmt.Errorf("%w: failed to parse response", provider.ErrUnknownAPI)
	}

	if status != http.StatusOK || apiResp.Error != nil {
		return prompt, classify(status, apiResp.Error)
	}

	if len(apiResp.Choices) == 0 {
		return prompt, fmt.Errorf("%w: empty completion", provider.ErrUnknownAPI)
	}

	enhanced := strings.TrimSpace(apiResp.Choices[0].Message.Content)
	if enhanced == "" {
		return prompt, fmt.Errorf("%w: empty completion", provider.ErrUnknownAPI)
	}

	return enhanced, nil
}

// ValidateKey performs the cheapest authenticated call the provider offers.
// It is idempotent and side-effect-free; a nil return means the key is live.
func (g *Gateway) ValidateKey(ctx context.Context, key string) error {
	url := g.baseURL + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrUnknownAPI, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrUnknownAPI, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	g.logger.Debug("credential probe", zap.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return provider.ErrInvalidCredential
	case resp.StatusCode == http.StatusTooManyRequests:
		return provider.ErrRateLimited
	default:
		return fmt.Errorf("%w: status %d", provider.ErrUnknownAPI, resp.StatusCode)
	}
}

func (g *Gateway) post(ctx context.Context, path string, payload any, key string) ([]byte, int, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := g.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	g.logger.Debug("provider request",
		zap.String("method", http.MethodPost),
		zap.String("url", url),
		zap.Int("body_bytes", len(jsonData)))

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	g.logger.Debug("provider response",
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(body)))

	return body, resp.StatusCode, nil
}

// classify maps HTTP status plus provider error codes onto the taxonomy.
func classify(status int, apiErr *apiError) error {
	code := ""
	message := ""
	if apiErr != nil {
		code = apiErr.Code
		message = apiErr.Message
	}

	switch {
	case code == "invalid_api_key" || status == http.StatusUnauthorized:
		return provider.ErrInvalidCredential
	case code == "insufficient_quota" || status == http.StatusPaymentRequired:
		return provider.ErrInsufficientQuota
	case code == "rate_limit_exceeded" || status == http.StatusTooManyRequests:
		return provider.ErrRateLimited
	case code == "content_policy_violation":
		return provider.ErrContentPolicy
	case message != "":
		return fmt.Errorf("%w: %s", provider.ErrUnknownAPI, message)
	default:
		return fmt.Errorf("%w: status %d", provider.ErrUnknownAPI, status)
	}
}
