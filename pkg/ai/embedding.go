package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/johnquangdev/transcript-indexer/pkg/config"
)

// MaxBatchSize is the largest number of texts sent in one provider request.
const MaxBatchSize = 100

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Limiter gates outbound provider requests.
type Limiter interface {
	Wait(ctx context.Context) error
}

// ProviderError is returned when the provider answers with a non-2xx status.
// Body is the provider's response, unmodified.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider returned status %d: %s", e.StatusCode, e.Body)
}

// OpenAIEmbeddingClient calls an OpenAI-compatible /embeddings endpoint
type OpenAIEmbeddingClient struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	limiter    Limiter
}

// NewOpenAIEmbeddingClient creates a client from config. A nil limiter
// disables throttling.
func NewOpenAIEmbeddingClient(cfg *config.EmbeddingConfig, limiter Limiter) *OpenAIEmbeddingClient {
	var apiKey, base, model string
	timeout := 60 * time.Second
	dimensions := 0
	if cfg != nil {
		apiKey = cfg.APIKey
		base = cfg.BaseURL
		model = cfg.Model
		dimensions = cfg.Dimensions
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}

	return &OpenAIEmbeddingClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(base, "/"),
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// EmbeddingRequest is the request body for /embeddings
type EmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// EmbeddingResponse is the subset of the /embeddings response we read
type EmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedTexts sends texts in a single request. Callers batch via EmbedInBatches.
func (c *OpenAIEmbeddingClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d texts exceeds provider limit %d", len(texts), MaxBatchSize)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	b, err := json.Marshal(EmbeddingRequest{
		Model:          c.model,
		Input:          texts,
		Dimensions:     c.dimensions,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var er EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(er.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range er.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("embedding provider returned invalid index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// EmbedInBatches embeds texts in consecutive batches of at most batchSize
// (capped at MaxBatchSize). Output order matches input order; the first
// failing batch aborts the call.
func EmbedInBatches(ctx context.Context, e Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed texts %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embed texts %d-%d: got %d vectors", start, end-1, len(vectors))
		}
		out = append(out, vectors...)
	}
	return out, nil
}
