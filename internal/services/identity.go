package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dudaji/dudaji-chat/internal/database"
	"github.com/dudaji/dudaji-chat/internal/docstore"
	"github.com/dudaji/dudaji-chat/internal/models"
	"github.com/dudaji/dudaji-chat/pkg/auth"
)

// AccountStore хранит учетные записи. Реализуется database.Database.
type AccountStore interface {
	SaveAccount(account *models.Account) error
	FindAccountByEmail(email string) (*models.Account, error)
	GetAccount(id string) (*models.Account, error)
	UpdateLastSeen(id string) error
	DeleteAccount(id string) error
}

// TokenRevoker запоминает отозванные токены до их истечения.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

type Session struct {
	Identity  models.Identity `json:"identity"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// IdentityService: провайдер идентификации: регистрация, вход, выход.
type IdentityService struct {
	accounts AccountStore
	store    docstore.Store
	tokens   *auth.JWTManager
	revoker  TokenRevoker
	now      func() time.Time
}

func NewIdentityService(accounts AccountStore, store docstore.Store, tokens *auth.JWTManager, revoker TokenRevoker) *IdentityService {
	return &IdentityService{
		accounts: accounts,
		store:    store,
		tokens:   tokens,
		revoker:  revoker,
		now:      time.Now,
	}
}

func (s *IdentityService) Register(ctx context.Context, email, password, displayName string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
		LastSeenAt:   s.now(),
	}
	if err := s.accounts.SaveAccount(account); err != nil {
		if errors.Is(err, database.ErrAccountExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("save account: %w", err)
	}

	id := identityOf(account)
	profile := models.UserProfile{
		Email:       account.Email,
		DisplayName: account.DisplayName,
		PhotoURL:    account.PhotoURL,
		CreatedAt:   s.now().UnixMilli(),
	}
	if err := s.store.Set(ctx, userPath(id.UID), profile); err != nil {
		log.Printf("Failed to save profile for %s: %v", id.UID, err)
		// Учетная запись без профиля не остается.
		if delErr := s.accounts.DeleteAccount(id.UID); delErr != nil {
			log.Printf("Failed to roll back account %s: %v", id.UID, delErr)
		}
		return nil, writeErr("save profile", userPath(id.UID), err)
	}
	log.Printf("User %s registered", id.UID)
	return s.issue(id)
}

// Login выдаёт JWT и обновляет last_seen
func (s *IdentityService) Login(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.accounts.FindAccountByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.accounts.UpdateLastSeen(account.ID.String()); err != nil {
		log.Printf("Failed to update last seen for %s: %v", account.ID, err)
	}
	return s.issue(identityOf(account))
}

// Logout отзывает токен до момента его истечения.
func (s *IdentityService) Logout(ctx context.Context, token string) error {
	exp, err := s.tokens.Expiry(token)
	if err != nil {
		return ErrInvalidCredentials
	}
	ttl := exp.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.revoker.Revoke(ctx, token, ttl)
}

// Profile читает users/{uid}. Если профиль не был записан, он
// собирается из учетной записи.
func (s *IdentityService) Profile(ctx context.Context, uid string) (*models.UserProfile, error) {
	snap, err := s.store.Get(ctx, userPath(uid))
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return s.profileFromAccount(uid)
	}
	var profile models.UserProfile
	if err := snap.Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}

func (s *IdentityService) profileFromAccount(uid string) (*models.UserProfile, error) {
	account, err := s.accounts.GetAccount(uid)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &models.UserProfile{
		Email:       account.Email,
		DisplayName: account.DisplayName,
		PhotoURL:    account.PhotoURL,
		CreatedAt:   account.CreatedAt.UnixMilli(),
	}, nil
}

func (s *IdentityService) issue(id models.Identity) (*Session, error) {
	token, expires, err := s.tokens.Generate(id.UID, id.DisplayName, id.Email)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{Identity: id, Token: token, ExpiresAt: expires}, nil
}

func identityOf(a *models.Account) models.Identity {
	return models.Identity{UID: a.ID.String(), DisplayName: a.DisplayName, Email: a.Email}
}
