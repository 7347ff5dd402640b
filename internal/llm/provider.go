package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Provider defines the interface for external text classifiers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate sends the content together with the instructions and returns the reply.
	// HTTP-level failures are reported through TextResponse.StatusCode with a nil
	// error; the error is reserved for transport failures (network, timeout, encoding).
	Generate(ctx context.Context, req GenerateRequest) (*TextResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for one classification call
type GenerateRequest struct {
	// Content is the text being classified (an abstract)
	Content string

	// Instructions is the rule specification document, passed verbatim
	Instructions string

	// Model overrides the configured model (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// TextResponse is the classifier's reply
type TextResponse struct {
	// Text is the raw reply body
	Text string

	// StatusCode is the HTTP status reported by the service, 0 if unknown
	StatusCode int

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// ServerError reports whether the response carries a server-side error status
func (r *TextResponse) ServerError() bool {
	return r != nil && r.StatusCode >= http.StatusInternalServerError
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "gemini", "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for Gemini/OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, test servers)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Temperature for generation; classification wants 0
	Temperature float32

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "gemini",
		Model:     "",
		Timeout:   120,
		MaxTokens: 2048,
	}
}

// BuildPrompt constructs the user message: the abstract followed by the rule specification
func BuildPrompt(content, instructions string) string {
	return fmt.Sprintf("Abstract: %s\n\n%s", content, instructions)
}

// Helper functions

func resolveModel(reqModel, configModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if configModel != "" {
		return configModel
	}
	return fallback
}

func resolveMaxTokens(reqMax, configMax int) int {
	if reqMax > 0 {
		return reqMax
	}
	if configMax > 0 {
		return configMax
	}
	return 2048
}
