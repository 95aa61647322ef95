package dto

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"max=50"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	UID            string `json:"uid"`
	DisplayName    string `json:"displayName,omitempty"`
	Email          string `json:"email"`
	Token          string `json:"token"`
	TokenExpiresAt string `json:"tokenExpiresAt"`
}
