// Package chatbot проксирует вопросы пользователей в OpenAI.
package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/lib/sl"
)

const systemPrompt = `You are the assistant of RiVVE, a marketplace where students find boarding places ` +
	`and landlords publish listings. Help with searching listings, wishlists, reviews, ` +
	`contacting landlords and the gold and platinum premium plans. Keep answers short. ` +
	`If a question is unrelated to the marketplace, politely decline.`

// maxMessageLength ограничение длины вопроса в символах.
const maxMessageLength = 2000

var ErrMessageTooLong = apperr.New(apperr.KindValidation, "message is too long")

// ChatClient клиент OpenAI. Реализуется *openai.Client.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type ChatbotService struct {
	client ChatClient
	model  string
	log    *slog.Logger
}

// NewChatbotService создает новый экземпляр ChatbotService.
func NewChatbotService(client ChatClient, model string, log *slog.Logger) *ChatbotService {
	return &ChatbotService{client: client, model: model, log: log}
}

// Ask возвращает ответ модели на сообщение пользователя.
func (s *ChatbotService) Ask(ctx context.Context, message string) (string, error) {
	const op = "chatbot.Ask"
	if len([]rune(message)) > maxMessageLength {
		return "", fmt.Errorf("%s: %w", op, ErrMessageTooLong)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
	})
	if err != nil {
		s.log.Error("chat completion failed", slog.String("op", op), sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, apperr.ErrUpstream)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", op, apperr.ErrUpstream)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
