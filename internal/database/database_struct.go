package database

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// Database хранит учетные записи пользователей.
type Database struct {
	db *gorm.DB
}
