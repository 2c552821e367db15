package gorm

import (
	"context"
	"errors"
	"strings"

	"github.com/ichigozero/taskdesk/usersvc"
	libgorm "gorm.io/gorm"
)

type accountRepository struct {
	db *libgorm.DB
}

func NewAccountRepository(db *libgorm.DB) usersvc.AccountRepository {
	return &accountRepository{db}
}

func (r *accountRepository) Create(ctx context.Context, a *usersvc.Account) error {
	a.Email = normalizeEmail(a.Email)
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *accountRepository) Find(ctx context.Context, id uint64) (usersvc.Account, error) {
	var a usersvc.Account
	err := r.db.WithContext(ctx).First(&a, id).Error
	return a, translate(err)
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (usersvc.Account, error) {
	var a usersvc.Account
	err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&a).Error
	return a, translate(err)
}

func (r *accountRepository) FindAll(ctx context.Context) ([]usersvc.Account, error) {
	var accounts []usersvc.Account
	err := r.db.WithContext(ctx).Order("name asc").Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) Save(ctx context.Context, a *usersvc.Account) error {
	a.Email = normalizeEmail(a.Email)
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *accountRepository) Delete(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).Delete(&usersvc.Account{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return usersvc.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	result := r.db.WithContext(ctx).
		Model(&usersvc.Account{ID: id}).
		Updates(map[string]interface{}{
			"password":    hash,
			"token_epoch": libgorm.Expr("token_epoch + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return usersvc.ErrAccountNotFound
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, libgorm.ErrRecordNotFound) {
		return usersvc.ErrAccountNotFound
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
