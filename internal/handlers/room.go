package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dudaji/dudaji-chat/internal/handlers/dto"
	"github.com/dudaji/dudaji-chat/internal/middleware"
	"github.com/dudaji/dudaji-chat/internal/services"
	"github.com/dudaji/dudaji-chat/internal/websocket"
)

// ConnectionHeader связывает HTTP запрос с открытым WebSocket
// соединением, на которое вешаются записи при обрыве.
const ConnectionHeader = "X-Connection-ID"

type RoomHandler struct {
	access *services.RoomAccessController
	hub    *websocket.Hub
}

func NewRoomHandler(access *services.RoomAccessController, hub *websocket.Hub) *RoomHandler {
	return &RoomHandler{access: access, hub: hub}
}

// ListRooms возвращает комнаты пользователя
func (h *RoomHandler) ListRooms(c *gin.Context) {
	me := middleware.CurrentIdentity(c)

	rooms, err := h.access.ListRooms(c.Request.Context(), me.UID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rooms)
}

// CreateRoom создает новую комнату
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	roomID, err := h.access.CreateRoom(c.Request.Context(), req.Name, middleware.CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateRoomResponse{ID: roomID})
}

func (h *RoomHandler) SearchRooms(c *gin.Context) {
	me := middleware.CurrentIdentity(c)

	rooms, err := h.access.SearchRooms(c.Request.Context(), c.Query("q"), me.UID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rooms)
}

// GetMembers возвращает участников комнаты
func (h *RoomHandler) GetMembers(c *gin.Context) {
	roomID := c.Param("id")
	ctx := c.Request.Context()

	if err := h.access.RequireMember(ctx, roomID, middleware.CurrentIdentity(c).UID); err != nil {
		respondError(c, err)
		return
	}

	members, err := h.access.GetRoomMembers(ctx, roomID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, members)
}

// GetState возвращает состояние текущего пользователя в комнате
func (h *RoomHandler) GetState(c *gin.Context) {
	roomID := c.Param("id")
	me := middleware.CurrentIdentity(c)

	state, err := h.access.MembershipState(c.Request.Context(), roomID, me.UID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.MembershipResponse{RoomID: roomID, UID: me.UID, State: string(state)})
}

// SendJoinRequest подает заявку на вступление
func (h *RoomHandler) SendJoinRequest(c *gin.Context) {
	var req dto.JoinRequestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	roomID := c.Param("id")
	me := middleware.CurrentIdentity(c)
	ctx := c.Request.Context()

	state, err := h.access.MembershipState(ctx, roomID, me.UID)
	if err != nil {
		respondError(c, err)
		return
	}
	switch state {
	case services.MembershipAdmin, services.MembershipMember:
		respondError(c, services.ErrAlreadyMember)
		return
	case services.MembershipPending:
		respondError(c, services.ErrRequestPending)
		return
	}

	if err := h.access.SendJoinRequest(ctx, roomID, me, req.Message); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

// ListJoinRequests доступен только администраторам комнаты
func (h *RoomHandler) ListJoinRequests(c *gin.Context) {
	roomID := c.Param("id")
	ctx := c.Request.Context()

	if err := h.access.RequireAdmin(ctx, roomID, middleware.CurrentIdentity(c).UID); err != nil {
		respondError(c, err)
		return
	}

	requests, err := h.access.ListJoinRequests(ctx, roomID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, requests)
}

func (h *RoomHandler) ApproveJoinRequest(c *gin.Context) {
	roomID, target := c.Param("id"), c.Param("uid")
	err := h.access.ApproveJoinRequest(c.Request.Context(), roomID, target, middleware.CurrentIdentity(c).UID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.notifyMembership(roomID, target, services.MembershipMember)
	c.Status(http.StatusOK)
}

func (h *RoomHandler) RejectJoinRequest(c *gin.Context) {
	roomID := c.Param("id")
	ctx := c.Request.Context()

	if err := h.access.RequireAdmin(ctx, roomID, middleware.CurrentIdentity(c).UID); err != nil {
		respondError(c, err)
		return
	}

	target := c.Param("uid")
	if err := h.access.RejectJoinRequest(ctx, roomID, target); err != nil {
		respondError(c, err)
		return
	}

	h.notifyMembership(roomID, target, services.MembershipNone)
	c.Status(http.StatusNoContent)
}

// JoinRoom отмечает участника в сети. Запись на случай обрыва
// вешается на соединение из заголовка X-Connection-ID.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	roomID := c.Param("id")
	me := middleware.CurrentIdentity(c)
	ctx := c.Request.Context()

	client, ok := h.hub.Client(c.GetHeader(ConnectionHeader), me.UID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown connection"})
		return
	}

	if err := h.access.RequireMember(ctx, roomID, me.UID); err != nil {
		respondError(c, err)
		return
	}

	if err := h.access.JoinRoom(ctx, roomID, me, client.Hooks); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

// LeaveRoom удаляет текущего пользователя из участников
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	roomID := c.Param("id")
	me := middleware.CurrentIdentity(c)
	ctx := c.Request.Context()

	if err := h.access.RequireMember(ctx, roomID, me.UID); err != nil {
		respondError(c, err)
		return
	}

	if err := h.access.LeaveRoom(ctx, roomID, me.UID); err != nil {
		respondError(c, err)
		return
	}

	// Отложенные записи присутствия для этой комнаты больше не нужны.
	for _, client := range h.hub.UserClients(me.UID) {
		if client.Hooks != nil {
			client.Hooks.Cancel(services.MemberPath(roomID, me.UID))
		}
	}

	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) SetPresence(c *gin.Context) {
	var req dto.PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	me := middleware.CurrentIdentity(c)
	if err := h.access.SetOnlineStatus(c.Request.Context(), c.Param("id"), me.UID, *req.Online); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

// notifyMembership сообщает открытым соединениям пользователя о
// решении по его заявке.
func (h *RoomHandler) notifyMembership(roomID, uid string, state services.Membership) {
	h.hub.SendToUser(uid, websocket.TypeMembership, map[string]string{
		"room_id": roomID,
		"state":   string(state),
	})
}
