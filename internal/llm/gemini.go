package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ppiankov/rulelabel/internal/util"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiProvider implements the Provider interface for Google Gemini models
type GeminiProvider struct {
	client *genai.Client
	config Config
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(config Config) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: config,
	}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// IsAvailable checks that the configured model can be resolved
func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	model := resolveModel("", p.config.Model, defaultGeminiModel)
	if _, err := p.client.Models.Get(ctx, model, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Gemini API check failed: %v\n", err)
		return false
	}
	return true
}

// Generate classifies content with GenerateContent
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*TextResponse, error) {
	model := resolveModel(req.Model, p.config.Model, defaultGeminiModel)

	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.config.Temperature),
		MaxOutputTokens: int32(resolveMaxTokens(req.MaxTokens, p.config.MaxTokens)),
	}

	result, err := p.client.Models.GenerateContent(ctx, model, genai.Text(BuildPrompt(req.Content, req.Instructions)), genConfig)
	if err != nil {
		if status, msg, ok := geminiStatus(err); ok {
			return &TextResponse{Text: msg, StatusCode: status, Model: model}, nil
		}
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}

	resp := &TextResponse{
		Text:       strings.TrimSpace(result.Text()),
		StatusCode: http.StatusOK,
		Model:      model,
	}
	if result.ModelVersion != "" {
		resp.Model = result.ModelVersion
	}
	if result.UsageMetadata != nil {
		resp.TokensUsed = int(result.UsageMetadata.TotalTokenCount)
	}
	return resp, nil
}

// geminiStatus extracts the HTTP status from a GenAI API error
func geminiStatus(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code > 0 {
		return apiErr.Code, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Code > 0 {
		return apiErrPtr.Code, apiErrPtr.Message, true
	}
	return 0, "", false
}
