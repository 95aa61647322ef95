package dto

import "github.com/dudaji/dudaji-chat/internal/models"

// SendMessageRequest: текстовое сообщение через HTTP.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// MessageResponse добавляет к сообщению его ключ в комнате.
type MessageResponse struct {
	ID string `json:"id"`
	models.Message
}

func NewMessageResponse(m models.Message) MessageResponse {
	return MessageResponse{ID: m.ID, Message: m}
}

func NewMessageResponses(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, NewMessageResponse(m))
	}
	return out
}
