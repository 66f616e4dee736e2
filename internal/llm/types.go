// Package llm генерирует ответы зрителям через OpenAI-совместимое API.
// Запросы ограничены по частоте и проходят через circuit breaker, текст
// комментария перед отправкой очищается от персональных данных.
package llm

import (
	"errors"
	"time"
)

// Config - параметры клиента. BaseURL позволяет ходить в совместимые
// с OpenAI шлюзы.
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	MaxTokens         int
	RequestsPerMinute int
	// MaxFailures подряд открывают breaker на ResetTimeout.
	MaxFailures  int
	ResetTimeout time.Duration
	// MaxReplyRunes обрезает ответ до длины, которую принимает поле чата.
	MaxReplyRunes int
}

var (
	ErrNoAPIKey      = errors.New("не задан OPENAI_API_KEY")
	ErrEmptyResponse = errors.New("пустой ответ модели")
	ErrEmptyComment  = errors.New("пустой комментарий")
)

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 200
	}
	if c.MaxReplyRunes <= 0 {
		c.MaxReplyRunes = 50
	}
	return c
}
