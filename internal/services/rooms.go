package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dudaji/dudaji-chat/internal/models"
)

// RoomSummary: строка списка комнат.
type RoomSummary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Avatar      string      `json:"avatar"`
	CreatedBy   string      `json:"createdBy"`
	CreatedAt   int64       `json:"createdAt"`
	IsPrivate   bool        `json:"isPrivate"`
	Role        models.Role `json:"role,omitempty"`
	MemberCount int         `json:"memberCount"`
	OnlineCount int         `json:"onlineCount"`
	LastMessage string      `json:"lastMessage"`
	Timestamp   int64       `json:"timestamp"`
}

func (c *RoomAccessController) loadRooms(ctx context.Context) ([]models.Room, error) {
	snap, err := c.store.Get(ctx, "rooms")
	if err != nil {
		return nil, fmt.Errorf("read rooms: %w", err)
	}
	rooms := make([]models.Room, 0, len(snap.Children()))
	for _, child := range snap.Children() {
		var room models.Room
		if err := child.Decode(&room); err != nil {
			return nil, fmt.Errorf("decode room %s: %w", child.Key(), err)
		}
		room.ID = child.Key()
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func summarize(room models.Room) RoomSummary {
	s := RoomSummary{
		ID:          room.ID,
		Name:        room.Name,
		Avatar:      room.Avatar,
		CreatedBy:   room.CreatedBy,
		CreatedAt:   room.CreatedAt,
		IsPrivate:   room.IsPrivate,
		MemberCount: len(room.Members),
		LastMessage: "No messages yet",
		Timestamp:   room.CreatedAt,
	}
	if s.Name == "" {
		s.Name = "Room " + truncate(room.ID, 8)
	}
	if s.Avatar == "" {
		s.Avatar = models.DefaultRoomAvatar
	}
	for _, m := range room.Members {
		if m.IsOnline {
			s.OnlineCount++
		}
	}

	var latest *models.Message
	for id, msg := range room.Messages {
		msg := msg
		msg.ID = id
		if latest == nil || msg.Timestamp > latest.Timestamp ||
			(msg.Timestamp == latest.Timestamp && msg.ID > latest.ID) {
			latest = &msg
		}
	}
	if latest != nil {
		s.LastMessage = latest.Preview()
		s.Timestamp = latest.Timestamp
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ListRooms возвращает комнаты, где у пользователя есть роль, начиная
// с самой свежей активности.
func (c *RoomAccessController) ListRooms(ctx context.Context, uid string) ([]RoomSummary, error) {
	rooms, err := c.loadRooms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoomSummary, 0)
	for _, room := range rooms {
		member, ok := room.Members[uid]
		if !ok || (member.Role != models.RoleAdmin && member.Role != models.RoleMember) {
			continue
		}
		s := summarize(room)
		s.Role = member.Role
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// SearchRooms ищет комнаты по подстроке имени без учета регистра.
// Комнаты, где пользователь уже участник или ждет одобрения,
// пропускаются.
func (c *RoomAccessController) SearchRooms(ctx context.Context, query, uid string) ([]RoomSummary, error) {
	rooms, err := c.loadRooms(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]RoomSummary, 0)
	for _, room := range rooms {
		if _, ok := room.Members[uid]; ok {
			continue
		}
		if _, ok := room.JoinRequests[uid]; ok {
			continue
		}
		if !strings.Contains(strings.ToLower(room.Name), query) {
			continue
		}
		out = append(out, summarize(room))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
