package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/calyx-labs/ragline/internal/domain"
	"github.com/calyx-labs/ragline/internal/metrics"
)

// Generator streams chat completions from an OpenAI-compatible API.
type Generator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	provider    string
	logger      *zap.Logger
}

// GeneratorConfig holds the inference provider settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Provider    string
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible streaming chat client.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		provider:    cfg.Provider,
		logger:      cfg.Logger,
	}
}

// Generate implements domain.Generator. The prompt goes out as a single
// user message; each streamed delta is handed to onToken in arrival
// order. A Stop feedback closes the stream early and returns the text
// accumulated so far without error.
func (g *Generator) Generate(ctx context.Context, prompt string, onToken domain.TokenCallback) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	}
	if g.maxTokens > 0 {
		req.MaxTokens = g.maxTokens
	}
	if g.temperature > 0 {
		req.Temperature = g.temperature
	}

	start := time.Now()

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return "", fmt.Errorf("create completion stream: %w: %w", domain.ErrInference, err)
	}
	defer stream.Close()

	var sb strings.Builder
	var tokens int
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
			return sb.String(), fmt.Errorf("recv completion stream: %w: %w", domain.ErrInference, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		token := resp.Choices[0].Delta.Content
		if token == "" {
			continue
		}

		sb.WriteString(token)
		tokens++

		if onToken != nil && onToken(token) == domain.Stop {
			g.logger.Debug("Generation stopped by consumer",
				zap.String("model", g.model),
				zap.Int("tokens", tokens),
			)
			break
		}
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, "success").Inc()
	metrics.GenerationTokensStreamed.WithLabelValues(g.model).Add(float64(tokens))

	g.logger.Debug("Generation completed",
		zap.String("model", g.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("tokens", tokens),
	)

	return sb.String(), nil
}
