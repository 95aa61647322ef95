package handlers

import (
	"context"
	"log"
	"strings"

	"github.com/dudaji/dudaji-chat/internal/docstore"
	"github.com/dudaji/dudaji-chat/internal/models"
	"github.com/dudaji/dudaji-chat/internal/services"
	"github.com/dudaji/dudaji-chat/internal/websocket"
)

// MessageHandler выполняет команды, пришедшие по WebSocket: подписки
// на пути docstore и присутствие в комнатах.
type MessageHandler struct {
	store  docstore.Store
	access *services.RoomAccessController
}

func NewMessageHandler(store docstore.Store, access *services.RoomAccessController) *MessageHandler {
	return &MessageHandler{store: store, access: access}
}

func (h *MessageHandler) HandleMessage(client *websocket.Client, msg *websocket.Message) error {
	ctx := context.Background()

	switch msg.Type {
	case websocket.TypeSubscribe:
		return h.handleSubscribe(ctx, client, msg)

	case websocket.TypeUnsubscribe:
		if !client.RemoveSubscription(strings.Trim(msg.Path, "/")) {
			return websocket.ErrInvalidMessage
		}
		return nil

	case websocket.TypeRoomSelect, websocket.TypeRoomDeselect:
		if msg.RoomID == "" {
			return websocket.ErrInvalidMessage
		}
		online := msg.Type == websocket.TypeRoomSelect
		return h.access.SetOnlineStatus(ctx, msg.RoomID, client.Identity.UID, online)

	case websocket.TypeRoomJoin:
		if msg.RoomID == "" {
			return websocket.ErrInvalidMessage
		}
		if err := h.access.RequireMember(ctx, msg.RoomID, client.Identity.UID); err != nil {
			return err
		}
		return h.access.JoinRoom(ctx, msg.RoomID, client.Identity, client.Hooks)

	default:
		log.Printf("Unknown message type: %s", msg.Type)
		return nil
	}
}

func (h *MessageHandler) handleSubscribe(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	path := strings.Trim(msg.Path, "/")
	if err := h.authorize(ctx, client.Identity.UID, path); err != nil {
		return err
	}

	uid := client.Identity.UID
	unsub, err := h.store.Subscribe(ctx, path, func(snap docstore.Snapshot) {
		snap, ok := h.visible(ctx, uid, path, snap)
		if !ok {
			return
		}
		if err := client.SendSnapshot(snap); err != nil {
			log.Printf("Client %s: snapshot %s dropped: %v", client.ID, snap.Path(), err)
		}
	})
	if err != nil {
		return err
	}
	client.AddSubscription(path, unsub)
	return nil
}

// authorize решает, может ли uid читать path:
// rooms доступен всем (снимок урезается в visible),
// rooms/{id}/joinRequests... только админам, остальное внутри
// rooms/{id} только участникам, users/{uid} только самому пользователю.
func (h *MessageHandler) authorize(ctx context.Context, uid, path string) error {
	segs := strings.Split(path, "/")
	switch {
	case path == "":
		return websocket.ErrInvalidMessage
	case segs[0] == "rooms" && len(segs) == 1:
		return nil
	case segs[0] == "rooms" && len(segs) >= 3 && segs[2] == "joinRequests":
		return h.access.RequireAdmin(ctx, segs[1], uid)
	case segs[0] == "rooms":
		return h.access.RequireMember(ctx, segs[1], uid)
	case segs[0] == "users" && len(segs) >= 2 && segs[1] == uid:
		return nil
	default:
		return websocket.ErrUnauthorized
	}
}

// visible урезает снимок до того, что uid может видеть в момент
// доставки. Снимки rooms и rooms/{id} содержат все поддерево, поэтому
// из каждой комнаты убираются ветки, закрытые для пользователя. Более
// глубокие пути заново проходят authorize: после выхода из комнаты
// сообщения перестают приходить.
func (h *MessageHandler) visible(ctx context.Context, uid, path string, snap docstore.Snapshot) (docstore.Snapshot, bool) {
	segs := strings.Split(path, "/")
	if segs[0] != "rooms" {
		return snap, true
	}
	switch len(segs) {
	case 1:
		rooms, ok := snap.Value().(map[string]any)
		if !ok {
			return snap, true
		}
		out := make(map[string]any, len(rooms))
		for id, room := range rooms {
			out[id] = roomView(room, uid)
		}
		return docstore.NewSnapshot(snap.Path(), out), true
	case 2:
		return docstore.NewSnapshot(snap.Path(), roomView(snap.Value(), uid)), true
	default:
		if err := h.authorize(ctx, uid, path); err != nil {
			return docstore.Snapshot{}, false
		}
		return snap, true
	}
}

// roomView возвращает копию комнаты для uid: админ видит все,
// участник все кроме заявок, остальные только метаданные и свою заявку.
// Исходное значение не меняется, оно общее с деревом хранилища.
func roomView(value any, uid string) any {
	room, ok := value.(map[string]any)
	if !ok {
		return value
	}
	role := roleOf(room, uid)
	if role == models.RoleAdmin {
		return room
	}

	out := make(map[string]any, len(room))
	for k, child := range room {
		switch k {
		case "joinRequests":
			requests, _ := child.(map[string]any)
			if own, ok := requests[uid]; ok {
				out[k] = map[string]any{uid: own}
			}
		case "members", "messages":
			if role == models.RoleMember {
				out[k] = child
			}
		default:
			out[k] = child
		}
	}
	return out
}

func roleOf(room map[string]any, uid string) models.Role {
	members, _ := room["members"].(map[string]any)
	member, _ := members[uid].(map[string]any)
	role, _ := member["role"].(string)
	return models.Role(role)
}
