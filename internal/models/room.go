package models

// Role участника комнаты. Других значений не бывает.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// RequestStatus заявки на вступление. На практике хранится только
// pending: одобрение и отказ удаляют заявку.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// DefaultRoomAvatar ставится новым комнатам, если не задан другой.
const DefaultRoomAvatar = "https://cdn3.iconfinder.com/data/icons/communication-media-malibu-vol-1/128/group-chat-1024.png"

// Room хранится по пути rooms/{roomId}. ID берется из ключа узла.
type Room struct {
	ID           string                 `json:"-"`
	Name         string                 `json:"name"`
	CreatedBy    string                 `json:"createdBy"`
	CreatedAt    int64                  `json:"createdAt"`
	IsPrivate    bool                   `json:"isPrivate"`
	Avatar       string                 `json:"avatar"`
	Members      map[string]RoomMember  `json:"members,omitempty"`
	JoinRequests map[string]JoinRequest `json:"joinRequests,omitempty"`
	Messages     map[string]Message     `json:"messages,omitempty"`
}

// RoomMember: снимок личности на момент вступления плюс присутствие.
type RoomMember struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	IsOnline    bool   `json:"isOnline"`
	LastSeen    int64  `json:"lastSeen,omitempty"`
	JoinedAt    int64  `json:"joinedAt"`
	JoinedBy    string `json:"joinedBy,omitempty"`
}

type JoinRequest struct {
	UID         string        `json:"uid"`
	DisplayName string        `json:"displayName"`
	Email       string        `json:"email"`
	RequestedAt int64         `json:"requestedAt"`
	Status      RequestStatus `json:"status"`
	Message     string        `json:"message,omitempty"`
}
