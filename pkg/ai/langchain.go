package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/johnquangdev/transcript-indexer/pkg/config"
)

// LangchainEmbedder adapts a langchaingo embedder to Embedder
type LangchainEmbedder struct {
	embedder embeddings.Embedder
	limiter  Limiter
}

// NewLangchainEmbedder builds an embedder for the "langchain-openai" or
// "ollama" providers.
func NewLangchainEmbedder(cfg *config.EmbeddingConfig, limiter Limiter) (*LangchainEmbedder, error) {
	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch cfg.Provider {
	case "ollama":
		client, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case "langchain-openai":
		client, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(cfg.APIKey),
			openai.WithEmbeddingModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("provider %q is not served by langchaingo", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s client: %w", cfg.Provider, err)
	}

	// Newlines separate speaker lines and are part of the chunk text.
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(false),
		embeddings.WithBatchSize(cfg.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	return &LangchainEmbedder{embedder: embedder, limiter: limiter}, nil
}

// EmbedTexts implements Embedder
func (l *LangchainEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	return l.embedder.EmbedDocuments(ctx, texts)
}

// NewEmbedder picks the Embedder implementation for cfg.Provider.
func NewEmbedder(cfg *config.EmbeddingConfig, limiter Limiter) (Embedder, error) {
	if cfg.Provider == "" || cfg.Provider == "openai" {
		return NewOpenAIEmbeddingClient(cfg, limiter), nil
	}
	return NewLangchainEmbedder(cfg, limiter)
}
