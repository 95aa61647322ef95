package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/dudaji/dudaji-chat/internal/docstore"
	"github.com/dudaji/dudaji-chat/internal/models"
)

// Membership: состояние пользователя относительно комнаты.
type Membership string

const (
	MembershipNone    Membership = "non-member"
	MembershipPending Membership = "pending-request"
	MembershipMember  Membership = "member"
	MembershipAdmin   Membership = "admin"
)

// DisconnectRegistrar принимает записи, которые хранилище выполнит при
// обрыве соединения клиента. Реализуется docstore.DisconnectHooks.
type DisconnectRegistrar interface {
	OnDisconnect(path string, value any)
}

// RoomAccessController создает комнаты, ведет заявки на вступление и
// участников. Все состояние живет в docstore.
type RoomAccessController struct {
	store         docstore.Store
	now           func() time.Time
	enforceAdmin  bool
	defaultAvatar string
}

type AccessOption func(*RoomAccessController)

func WithClock(now func() time.Time) AccessOption {
	return func(c *RoomAccessController) { c.now = now }
}

// WithEnforceAdmin включает проверку роли admin в ApproveJoinRequest.
func WithEnforceAdmin(enforce bool) AccessOption {
	return func(c *RoomAccessController) { c.enforceAdmin = enforce }
}

func WithDefaultAvatar(url string) AccessOption {
	return func(c *RoomAccessController) {
		if url != "" {
			c.defaultAvatar = url
		}
	}
}

func NewRoomAccessController(store docstore.Store, opts ...AccessOption) *RoomAccessController {
	c := &RoomAccessController{
		store:         store,
		now:           time.Now,
		enforceAdmin:  true,
		defaultAvatar: models.DefaultRoomAvatar,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func roomPath(roomID string) string { return "rooms/" + roomID }
func membersPath(roomID string) string { return roomPath(roomID) + "/members" }
func memberPath(roomID, uid string) string { return membersPath(roomID) + "/" + uid }
func requestsPath(roomID string) string { return roomPath(roomID) + "/joinRequests" }
func requestPath(roomID, uid string) string { return requestsPath(roomID) + "/" + uid }
func messagesPath(roomID string) string { return roomPath(roomID) + "/messages" }
func userPath(uid string) string { return "users/" + uid }

// MemberPath возвращает путь узла участника в docstore.
func MemberPath(roomID, uid string) string { return memberPath(roomID, uid) }

// CreateRoom записывает комнату одним составным значением: метаданные
// и создатель с ролью admin.
func (c *RoomAccessController) CreateRoom(ctx context.Context, name string, creator models.Identity) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidRoomName
	}
	if creator.UID == "" {
		return "", ErrInvalidIdentity
	}

	now := c.now().UnixMilli()
	room := models.Room{
		Name:      name,
		CreatedBy: creator.UID,
		CreatedAt: now,
		IsPrivate: true,
		Avatar:    c.defaultAvatar,
		Members: map[string]models.RoomMember{
			creator.UID: {
				UID:         creator.UID,
				DisplayName: creator.ResolvedName(),
				Email:       creator.Email,
				Role:        models.RoleAdmin,
				IsOnline:    true,
				LastSeen:    now,
				JoinedAt:    now,
			},
		},
	}

	roomID, err := c.store.Push(ctx, "rooms", room)
	if err != nil {
		log.Printf("Failed to create room %q: %v", name, err)
		return "", writeErr("create room", "rooms", err)
	}
	log.Printf("Room %q (%s) created by %s", name, roomID, creator.UID)
	return roomID, nil
}

// SendJoinRequest записывает заявку со статусом pending. Повторная
// заявка того же пользователя перезаписывает предыдущую.
func (c *RoomAccessController) SendJoinRequest(ctx context.Context, roomID string, user models.Identity, message string) error {
	if user.UID == "" {
		return ErrInvalidIdentity
	}
	req := models.JoinRequest{
		UID:         user.UID,
		DisplayName: user.ResolvedName(),
		Email:       user.Email,
		RequestedAt: c.now().UnixMilli(),
		Status:      models.StatusPending,
		Message:     message,
	}
	path := requestPath(roomID, user.UID)
	if err := c.store.Set(ctx, path, req); err != nil {
		log.Printf("Failed to send join request to room %s: %v", roomID, err)
		return writeErr("send join request", path, err)
	}
	log.Printf("Join request from %s sent to room %s", user.UID, roomID)
	return nil
}

// ApproveJoinRequest превращает заявку в участника с ролью member.
// Запись участника и удаление заявки идут одной операцией Update.
func (c *RoomAccessController) ApproveJoinRequest(ctx context.Context, roomID, targetUID, adminUID string) error {
	if c.enforceAdmin {
		if err := c.RequireAdmin(ctx, roomID, adminUID); err != nil {
			return err
		}
	}

	reqPath := requestPath(roomID, targetUID)
	snap, err := c.store.Get(ctx, reqPath)
	if err != nil {
		return fmt.Errorf("read join request: %w", err)
	}
	if !snap.Exists() {
		log.Printf("Join request for %s in room %s not found", targetUID, roomID)
		return ErrJoinRequestNotFound
	}
	var req models.JoinRequest
	if err := snap.Decode(&req); err != nil {
		return fmt.Errorf("decode join request: %w", err)
	}

	mPath := memberPath(roomID, targetUID)
	existing, err := c.store.Get(ctx, mPath+"/role")
	if err != nil {
		return fmt.Errorf("read member: %w", err)
	}

	updates := map[string]any{reqPath: nil}
	if !existing.Exists() {
		now := c.now().UnixMilli()
		updates[mPath] = models.RoomMember{
			UID:         targetUID,
			DisplayName: req.DisplayName,
			Email:       req.Email,
			Role:        models.RoleMember,
			IsOnline:    false,
			LastSeen:    now,
			JoinedAt:    now,
			JoinedBy:    adminUID,
		}
	}
	if err := c.store.Update(ctx, updates); err != nil {
		log.Printf("Failed to approve %s in room %s: %v", targetUID, roomID, err)
		return writeErr("approve join request", reqPath, err)
	}
	log.Printf("User %s approved to join room %s by %s", targetUID, roomID, adminUID)
	return nil
}

// RejectJoinRequest удаляет заявку. Удаление отсутствующей заявки не
// ошибка.
func (c *RoomAccessController) RejectJoinRequest(ctx context.Context, roomID, targetUID string) error {
	path := requestPath(roomID, targetUID)
	if err := c.store.Set(ctx, path, nil); err != nil {
		log.Printf("Failed to reject join request for %s: %v", targetUID, err)
		return writeErr("reject join request", path, err)
	}
	log.Printf("Join request rejected for user %s in room %s", targetUID, roomID)
	return nil
}

// JoinRoom отмечает пользователя участником в сети и регистрирует
// запись isOnline=false, lastSeen=время сервера на случай обрыва
// соединения. Роль существующего участника не меняется.
func (c *RoomAccessController) JoinRoom(ctx context.Context, roomID string, user models.Identity, disconnect DisconnectRegistrar) error {
	if user.UID == "" {
		return ErrInvalidIdentity
	}
	path := memberPath(roomID, user.UID)
	existing, err := c.store.Get(ctx, path+"/role")
	if err != nil {
		return fmt.Errorf("read member: %w", err)
	}

	now := c.now().UnixMilli()
	if existing.Exists() {
		err = c.store.Set(ctx, path+"/isOnline", true)
	} else {
		err = c.store.Set(ctx, path, models.RoomMember{
			UID:         user.UID,
			DisplayName: user.ResolvedName(),
			Email:       user.Email,
			Role:        models.RoleMember,
			IsOnline:    true,
			LastSeen:    now,
			JoinedAt:    now,
		})
	}
	if err != nil {
		log.Printf("Failed to join room %s: %v", roomID, err)
		return writeErr("join room", path, err)
	}

	if disconnect != nil {
		disconnect.OnDisconnect(path+"/isOnline", false)
		disconnect.OnDisconnect(path+"/lastSeen", docstore.ServerTimestamp)
	}
	log.Printf("User %s joined room %s", user.UID, roomID)
	return nil
}

func (c *RoomAccessController) LeaveRoom(ctx context.Context, roomID, uid string) error {
	path := memberPath(roomID, uid)
	if err := c.store.Set(ctx, path, nil); err != nil {
		log.Printf("Failed to leave room %s: %v", roomID, err)
		return writeErr("leave room", path, err)
	}
	log.Printf("User %s left room %s", uid, roomID)
	return nil
}

// SetOnlineStatus пишет isOnline, а при уходе из сети еще и lastSeen.
// Для не-участника возвращает ErrNotMember, не создавая узел без роли.
func (c *RoomAccessController) SetOnlineStatus(ctx context.Context, roomID, uid string, online bool) error {
	path := memberPath(roomID, uid)
	role, err := c.store.Get(ctx, path+"/role")
	if err != nil {
		return fmt.Errorf("read member: %w", err)
	}
	if !role.Exists() {
		return ErrNotMember
	}

	updates := map[string]any{path + "/isOnline": online}
	if !online {
		updates[path+"/lastSeen"] = c.now().UnixMilli()
	}
	if err := c.store.Update(ctx, updates); err != nil {
		log.Printf("Failed to set online status for %s in room %s: %v", uid, roomID, err)
		return writeErr("set online status", path, err)
	}
	return nil
}

// GetRoomMembers читает участников один раз. Отсутствующая комната
// дает пустой список.
func (c *RoomAccessController) GetRoomMembers(ctx context.Context, roomID string) ([]models.RoomMember, error) {
	snap, err := c.store.Get(ctx, membersPath(roomID))
	if err != nil {
		return nil, fmt.Errorf("read members: %w", err)
	}
	members := make([]models.RoomMember, 0, len(snap.Children()))
	for _, child := range snap.Children() {
		var m models.RoomMember
		if err := child.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode member %s: %w", child.Key(), err)
		}
		if m.UID == "" {
			m.UID = child.Key()
		}
		members = append(members, m)
	}
	return members, nil
}

// MembershipState возвращает состояние пользователя в комнате.
func (c *RoomAccessController) MembershipState(ctx context.Context, roomID, uid string) (Membership, error) {
	name, err := c.store.Get(ctx, roomPath(roomID)+"/name")
	if err != nil {
		return "", err
	}
	if !name.Exists() {
		return "", ErrRoomNotFound
	}

	role, err := c.store.Get(ctx, memberPath(roomID, uid)+"/role")
	if err != nil {
		return "", err
	}
	switch models.Role(fmt.Sprint(role.Value())) {
	case models.RoleAdmin:
		return MembershipAdmin, nil
	case models.RoleMember:
		return MembershipMember, nil
	}

	req, err := c.store.Get(ctx, requestPath(roomID, uid))
	if err != nil {
		return "", err
	}
	if req.Exists() {
		return MembershipPending, nil
	}
	return MembershipNone, nil
}

func (c *RoomAccessController) RequireAdmin(ctx context.Context, roomID, uid string) error {
	state, err := c.MembershipState(ctx, roomID, uid)
	if err != nil {
		return err
	}
	if state != MembershipAdmin {
		return ErrNotAdmin
	}
	return nil
}

func (c *RoomAccessController) RequireMember(ctx context.Context, roomID, uid string) error {
	state, err := c.MembershipState(ctx, roomID, uid)
	if err != nil {
		return err
	}
	if state != MembershipAdmin && state != MembershipMember {
		return ErrNotMember
	}
	return nil
}

// ListJoinRequests возвращает заявки комнаты по возрастанию requestedAt.
func (c *RoomAccessController) ListJoinRequests(ctx context.Context, roomID string) ([]models.JoinRequest, error) {
	snap, err := c.store.Get(ctx, requestsPath(roomID))
	if err != nil {
		return nil, fmt.Errorf("read join requests: %w", err)
	}
	requests := make([]models.JoinRequest, 0, len(snap.Children()))
	for _, child := range snap.Children() {
		var r models.JoinRequest
		if err := child.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode join request %s: %w", child.Key(), err)
		}
		requests = append(requests, r)
	}
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].RequestedAt < requests[j].RequestedAt
	})
	return requests, nil
}
