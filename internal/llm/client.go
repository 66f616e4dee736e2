package llm

import (
	"context"
	"fmt"
	"time"

	"liveAgent/internal/sanitizer"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
	maxRunes  int
	log       *zap.Logger
	sanitizer *sanitizer.DataSanitizer
	limiter   *rate.Limiter
	breaker   *CircuitBreaker
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Client{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		maxRunes:  cfg.MaxReplyRunes,
		log:       log.Named("llm"),
		sanitizer: sanitizer.New(),
		limiter:   rate.NewLimiter(limit, 1),
		breaker:   NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
	}, nil
}

// complete ждёт своей очереди в лимитере и выполняет запрос через breaker.
func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("ожидание лимита запросов: %w", err)
	}

	var content string
	err := c.breaker.Call(ctx, func() error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return fmt.Errorf("ошибка запроса к OpenAI: %w", err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		content = resp.Choices[0].Message.Content
		c.log.Debug("Ответ модели получен",
			zap.String("model", c.model),
			zap.Int("tokens", resp.Usage.TotalTokens))
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) State() CircuitState {
	return c.breaker.State()
}
