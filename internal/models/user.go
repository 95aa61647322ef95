package models

import (
	"time"

	"github.com/google/uuid"
)

// Account: учетная запись провайдера идентификации (Postgres).
type Account struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	DisplayName  string
	PasswordHash string `gorm:"not null"`
	PhotoURL     string
	LastSeenAt   time.Time
	CreatedAt    time.Time
}

// Identity описывает аутентифицированного пользователя (uid, имя, email).
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// ResolvedName возвращает отображаемое имя: displayName, затем email,
// затем "Anonymous".
func (i Identity) ResolvedName() string {
	switch {
	case i.DisplayName != "":
		return i.DisplayName
	case i.Email != "":
		return i.Email
	default:
		return "Anonymous"
	}
}

// UserProfile хранится по пути users/{uid}.
type UserProfile struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}
