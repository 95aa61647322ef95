package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dudaji/dudaji-chat/internal/handlers/dto"
	"github.com/dudaji/dudaji-chat/internal/middleware"
	"github.com/dudaji/dudaji-chat/internal/services"
)

type HTTPMessageHandler struct {
	access   *services.RoomAccessController
	messages *services.MessageService
	maxBytes int64
}

func NewHTTPMessageHandler(access *services.RoomAccessController, messages *services.MessageService, maxUploadBytes int64) *HTTPMessageHandler {
	return &HTTPMessageHandler{access: access, messages: messages, maxBytes: maxUploadBytes}
}

// GetRoomMessages получает историю сообщений комнаты
func (h *HTTPMessageHandler) GetRoomMessages(c *gin.Context) {
	roomID := c.Param("id")
	ctx := c.Request.Context()

	if err := h.access.RequireMember(ctx, roomID, middleware.CurrentIdentity(c).UID); err != nil {
		respondError(c, err)
		return
	}

	messages, err := h.messages.List(ctx, roomID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Последние limit сообщений
	if l := c.Query("limit"); l != "" {
		if limit, err := strconv.Atoi(l); err == nil && limit > 0 && limit < len(messages) {
			messages = messages[len(messages)-limit:]
		}
	}

	c.JSON(http.StatusOK, dto.NewMessageResponses(messages))
}

// SendMessage отправляет текстовое сообщение через HTTP
func (h *HTTPMessageHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.SendText(c.Request.Context(), c.Param("id"), middleware.CurrentIdentity(c), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewMessageResponse(msg))
}

// SearchMessages ищет по тексту сообщений комнаты
func (h *HTTPMessageHandler) SearchMessages(c *gin.Context) {
	roomID := c.Param("id")
	ctx := c.Request.Context()

	if err := h.access.RequireMember(ctx, roomID, middleware.CurrentIdentity(c).UID); err != nil {
		respondError(c, err)
		return
	}

	messages, err := h.messages.Search(ctx, roomID, c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMessageResponses(messages))
}

// UploadFile принимает multipart поле file и отправляет сообщение со
// ссылкой на него
func (h *HTTPMessageHandler) UploadFile(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	msg, err := h.messages.SendFile(c.Request.Context(), c.Param("id"), middleware.CurrentIdentity(c), services.Upload{
		Name:        header.Filename,
		ContentType: contentType,
		Body:        file,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewMessageResponse(msg))
}
