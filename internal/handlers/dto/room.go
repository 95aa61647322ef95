package dto

type CreateRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateRoomResponse struct {
	ID string `json:"id"`
}

type JoinRequestRequest struct {
	Message string `json:"message" binding:"max=500"`
}

type PresenceRequest struct {
	Online *bool `json:"online" binding:"required"`
}

type MembershipResponse struct {
	RoomID string `json:"roomId"`
	UID    string `json:"uid"`
	State  string `json:"state"`
}
