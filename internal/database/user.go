package database

import (
	"errors"
	"strings"
	"time"

	"github.com/dudaji/dudaji-chat/internal/models"
	"gorm.io/gorm"
)

func (d *Database) SaveAccount(account *models.Account) error {
	account.Email = strings.ToLower(account.Email)
	if err := d.db.Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

func (d *Database) GetAccount(id string) (*models.Account, error) {
	account := models.Account{}
	if err := d.db.First(&account, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (d *Database) FindAccountByEmail(email string) (*models.Account, error) {
	account := models.Account{}
	if err := d.db.Where("email = ?", strings.ToLower(email)).First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (d *Database) UpdateLastSeen(id string) error {
	return d.db.Model(&models.Account{}).Where("id = ?", id).Update("last_seen_at", time.Now()).Error
}

// DeleteAccount удаляет учетную запись. Отсутствие записи не ошибка.
func (d *Database) DeleteAccount(id string) error {
	return d.db.Delete(&models.Account{}, "id = ?", id).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAccountNotFound
	}
	return err
}
