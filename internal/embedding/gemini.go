package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiClient calls the Gemini embedContent API.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  atomic.Int64
	client     *http.Client
	maxRetries int
}

// GeminiConfig configures the Gemini embeddings client.
type GeminiConfig struct {
	BaseURL string // defaults to the public Gemini endpoint
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewGeminiClient creates a new Gemini embeddings client.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini embedder: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &GeminiClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		client:     &http.Client{Timeout: t},
		maxRetries: 5,
	}, nil
}

func (c *GeminiClient) ModelID() string { return "gemini/" + c.model }

func (c *GeminiClient) Dimension() int { return int(c.dimension.Load()) }

// Prepare is not required for remote embedding.
func (c *GeminiClient) Prepare(corpus []string) error { return nil }

type geminiRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

// Embed returns an embedding vector for the given text.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float64, error) {
	url := fmt.Sprintf("%s/%s:embedContent?key=%s", c.baseURL, c.model, c.apiKey)
	body := geminiRequest{
		Model:   "models/" + c.model,
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		data, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("gemini embedContent failed: %s", resp.Status)
			continue
		}
		if resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, &UnavailableError{ModelID: c.ModelID(), Err: fmt.Errorf("gemini embedContent failed: %s", resp.Status)}
		}

		payload, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		var out geminiResponse
		if err := json.Unmarshal(payload, &out); err != nil || len(out.Embedding.Values) == 0 {
			lastErr = errors.New("no embedding returned")
			continue
		}
		// Learned from the first response; Embed runs concurrently.
		c.dimension.CompareAndSwap(0, int64(len(out.Embedding.Values)))
		return out.Embedding.Values, nil
	}
	return nil, &UnavailableError{ModelID: c.ModelID(), Err: lastErr}
}
