package llm

import (
	"context"
	"fmt"
	"strings"

	"liveAgent/internal/listener"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// systemPrompt уходит модели как есть, поэтому написан на языке зрителей.
const systemPrompt = `你是直播间的主播助理。请用简短、友好、口语化的中文回复观众的评论。
不要编造商品价格和优惠信息，不确定时引导观众查看商品链接。
只输出回复内容本身，不要加引号，不要称呼观众昵称。`

// Reply генерирует ответ на комментарий. prompt - пользовательская
// инструкция из конфига задачи, дополняет системную.
func (c *Client) Reply(ctx context.Context, prompt string, msg listener.LiveMessage) (string, error) {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return "", ErrEmptyComment
	}

	system := systemPrompt
	if p := strings.TrimSpace(prompt); p != "" {
		system += "\n\n" + p
	}

	user := fmt.Sprintf("观众「%s」评论：%s",
		c.sanitizer.SanitizeNick(msg.NickName),
		c.sanitizer.Sanitize(content))

	raw, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.7,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}

	reply := cleanReply(raw, c.maxRunes)
	if reply == "" {
		return "", ErrEmptyResponse
	}

	c.log.Debug("Сгенерирован ответ", zap.String("msg_id", msg.MsgID), zap.Int("runes", len([]rune(reply))))
	return reply, nil
}

// cleanReply убирает кавычки и переводы строк, которые модель иногда
// добавляет, и обрезает ответ до maxRunes.
func cleanReply(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'“”「」")
	s = strings.Join(strings.Fields(s), " ")

	r := []rune(s)
	if maxRunes > 0 && len(r) > maxRunes {
		r = r[:maxRunes]
	}
	return strings.TrimSpace(string(r))
}
