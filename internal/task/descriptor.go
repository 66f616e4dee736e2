// Package task - задачи автоматизации одной сессии: всплывающие карточки,
// сообщения по расписанию, пакетная отправка и автоответы. Каждая задача
// крутит свой цикл и останавливается по Stop.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type Type string

const (
	TypePopup   Type = "auto-popup"
	TypeComment Type = "auto-comment"
	TypeBatch   Type = "send-batch-messages"
	TypeReply   Type = "auto-reply"
)

var Types = []Type{TypePopup, TypeComment, TypeBatch, TypeReply}

func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("неизвестный тип задачи %q", s)
}

// ErrInvalidConfig оборачивает все ошибки разбора и проверки конфигурации задачи.
var ErrInvalidConfig = errors.New("невалидная конфигурация задачи")

// Descriptor - описание запуска задачи. Config разбирается по Type.
type Descriptor struct {
	Type   Type            `json:"type"`
	Config json.RawMessage `json:"config"`
}

// ParseDescriptorYAML читает пресет задачи из YAML-файла:
//
//	type: auto-popup
//	config:
//	  goodsIds: [101, 102]
//	  interval: [3000, 5000]
func ParseDescriptorYAML(data []byte) (Descriptor, error) {
	var raw struct {
		Type   string                 `yaml:"type"`
		Config map[string]interface{} `yaml:"config"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, fmt.Errorf("разбор YAML: %w", err)
	}

	t, err := ParseType(raw.Type)
	if err != nil {
		return Descriptor{}, err
	}

	cfg, err := json.Marshal(raw.Config)
	if err != nil {
		return Descriptor{}, fmt.Errorf("конфигурация задачи: %w", err)
	}
	return Descriptor{Type: t, Config: cfg}, nil
}

// Interval - диапазон задержки между циклами в миллисекундах, границы включены.
type Interval [2]int

func (i Interval) Validate() error {
	if i[0] < 0 || i[1] < 0 {
		return errors.New("интервал не может быть отрицательным")
	}
	if i[0] > i[1] {
		return fmt.Errorf("минимум интервала %d больше максимума %d", i[0], i[1])
	}
	if i[1] == 0 {
		return errors.New("интервал не задан")
	}
	return nil
}

type PopupConfig struct {
	GoodsIDs []int    `json:"goodsIds"`
	Interval Interval `json:"interval"`
	Random   bool     `json:"random"`
}

func (c PopupConfig) Validate() error {
	if len(c.GoodsIDs) == 0 {
		return errors.New("список товаров пуст")
	}
	return c.Interval.Validate()
}

type Message struct {
	Content string `json:"content"`
	PinTop  bool   `json:"pinTop"`
}

type CommentConfig struct {
	Messages    []Message `json:"messages"`
	Interval    Interval  `json:"interval"`
	Random      bool      `json:"random"`
	ExtraSpaces bool      `json:"extraSpaces"`
}

func (c CommentConfig) Validate() error {
	if len(c.Messages) == 0 {
		return errors.New("список сообщений пуст")
	}
	for i, m := range c.Messages {
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("сообщение %d пустое", i+1)
		}
	}
	return c.Interval.Validate()
}

type BatchConfig struct {
	Messages    []string `json:"messages"`
	Count       int      `json:"count"`
	ExtraSpaces bool     `json:"extraSpaces"`
}

func (c BatchConfig) Validate() error {
	if len(c.Messages) == 0 {
		return errors.New("список сообщений пуст")
	}
	if c.Count <= 0 {
		return errors.New("количество сообщений должно быть больше нуля")
	}
	return nil
}

type ReplyRule struct {
	Keywords []string `json:"keywords"`
	Replies  []string `json:"replies"`
}

type ReplyAI struct {
	Enabled bool   `json:"enabled"`
	Prompt  string `json:"prompt"`
}

type ReplyConfig struct {
	Rules        []ReplyRule `json:"rules"`
	AI           ReplyAI     `json:"ai"`
	AutoSend     bool        `json:"autoSend"`
	HideUsername bool        `json:"hideUsername"`
}

func (c ReplyConfig) Validate() error {
	for i, r := range c.Rules {
		if len(r.Keywords) == 0 || len(r.Replies) == 0 {
			return fmt.Errorf("правило %d без ключевых слов или ответов", i+1)
		}
	}
	return nil
}

type validator interface {
	Validate() error
}

// decodeConfig разбирает и проверяет конфигурацию. Пустой raw - ошибка.
func decodeConfig[T validator](raw json.RawMessage) (T, error) {
	var cfg T
	if len(raw) == 0 {
		return cfg, fmt.Errorf("%w: конфигурация не передана", ErrInvalidConfig)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// mergeConfig накладывает частичную конфигурацию на текущую:
// поля, которых нет в partial, сохраняются.
func mergeConfig[T validator](current T, partial json.RawMessage) (T, error) {
	// копия через JSON: Unmarshal переиспользует массивы срезов current
	base, err := json.Marshal(current)
	if err != nil {
		return current, err
	}
	var next T
	if err := json.Unmarshal(base, &next); err != nil {
		return current, err
	}
	if err := json.Unmarshal(partial, &next); err != nil {
		return current, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := next.Validate(); err != nil {
		return current, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return next, nil
}
