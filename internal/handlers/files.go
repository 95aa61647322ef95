package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dudaji/dudaji-chat/internal/objectstore"
)

type FileHandler struct {
	objects objectstore.Store
}

func NewFileHandler(objects objectstore.Store) *FileHandler {
	return &FileHandler{objects: objects}
}

// ServeFile отдает загруженный файл по пути из URL
func (h *FileHandler) ServeFile(c *gin.Context) {
	body, contentType, err := h.objects.Open(c.Request.Context(), c.Param("path"))
	if err != nil {
		switch {
		case errors.Is(err, objectstore.ErrObjectNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		case errors.Is(err, objectstore.ErrInvalidPath):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
		}
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		log.Printf("Failed to stream file %s: %v", c.Param("path"), err)
	}
}
