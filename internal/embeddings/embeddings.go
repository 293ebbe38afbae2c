package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable wraps every failure to obtain an embedding.
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts an ordinary function to the Embedder interface.
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed calls f(ctx, text).
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// AzureOpenAIConfig addresses an Azure OpenAI embedding deployment.
type AzureOpenAIConfig struct {
	Endpoint   string // e.g. https://my-account.openai.azure.com
	APIKey     string
	Deployment string // Embedding model deployment name
	APIVersion string
	Timeout    time.Duration // Zero means no client-side timeout
}

// AzureOpenAIClient calls the Azure OpenAI embeddings REST endpoint.
type AzureOpenAIClient struct {
	url        string
	apiKey     string
	deployment string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Embedder = (*AzureOpenAIClient)(nil)

// NewAzureOpenAIClient creates an embeddings client.
func NewAzureOpenAIClient(cfg AzureOpenAIConfig, logger *slog.Logger) *AzureOpenAIClient {
	endpoint := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		strings.TrimRight(cfg.Endpoint, "/"),
		url.PathEscape(cfg.Deployment),
		url.QueryEscape(cfg.APIVersion))

	return &AzureOpenAIClient{
		url:        endpoint,
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "embeddings"),
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed requests an embedding for text. Errors wrap ErrUnavailable.
func (c *AzureOpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	body, err := json.Marshal(embeddingRequest{Input: text, Model: c.deployment})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrUnavailable)
	}

	c.logger.Debug("Generated embedding",
		"dimension", len(result.Data[0].Embedding),
		"duration_ms", time.Since(start).Milliseconds())

	return result.Data[0].Embedding, nil
}
