package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dudaji/dudaji-chat/internal/middleware"
	"github.com/dudaji/dudaji-chat/internal/services"
)

type UserHandler struct {
	identity *services.IdentityService
}

func NewUserHandler(identity *services.IdentityService) *UserHandler {
	return &UserHandler{identity: identity}
}

// GetMe возвращает информацию о текущем пользователе
func (h *UserHandler) GetMe(c *gin.Context) {
	me := middleware.CurrentIdentity(c)

	resp := gin.H{
		"uid":         me.UID,
		"displayName": me.ResolvedName(),
		"email":       me.Email,
	}
	profile, err := h.identity.Profile(c.Request.Context(), me.UID)
	if err == nil {
		resp["profile"] = profile
	}

	c.JSON(http.StatusOK, resp)
}

// GetUser возвращает профиль пользователя по uid
func (h *UserHandler) GetUser(c *gin.Context) {
	profile, err := h.identity.Profile(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
