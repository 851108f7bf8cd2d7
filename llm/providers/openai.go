package providers

import (
	"net/http"
	"os"

	"github.com/c360studio/tripsync/llm"
)

// OpenAIProvider targets api.openai.com or any OpenRouter-style gateway.
// The wire format is shared with OllamaProvider.
type OpenAIProvider struct {
	OllamaProvider
}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

func (o *OpenAIProvider) Endpoint(baseURL string) string {
	return chatCompletionsURL(baseURL, "https://api.openai.com/v1")
}

// Authorize adds the OPENAI_API_KEY bearer token and optional OpenRouter attribution.
func (o *OpenAIProvider) Authorize(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}
