package usersvc

import (
	"context"
	"time"

	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc/policy"
)

type Account struct {
	ID         uint64      `json:"id"`
	Name       string      `json:"name"`
	Email      string      `json:"email" gorm:"uniqueIndex;not null"`
	Password   string      `json:"-" gorm:"not null"`
	Role       policy.Role `json:"role" gorm:"not null;default:EMPLOYEE"`
	Department string      `json:"department"`
	Active     bool        `json:"isActive" gorm:"not null"`
	TokenEpoch uint64      `json:"-" gorm:"not null"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	TaskCount  int64       `json:"taskCount" gorm:"-"`
}

// AccountInput carries the fields of a new account.
type AccountInput struct {
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Password   string      `json:"password"`
	Role       policy.Role `json:"role,omitempty"`
	Department string      `json:"department"`
}

// AccountPatch carries a partial update. Nil fields are left untouched.
type AccountPatch struct {
	Name       *string      `json:"name,omitempty"`
	Email      *string      `json:"email,omitempty"`
	Password   *string      `json:"password,omitempty"`
	Role       *policy.Role `json:"role,omitempty"`
	Department *string      `json:"department,omitempty"`
}

type AccountRepository interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id uint64) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindAll(ctx context.Context) ([]Account, error)
	Save(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id uint64) error
	// UpdatePassword stores a new hash and increments the credential epoch.
	UpdatePassword(ctx context.Context, id uint64, hash string) error
}

// TaskCounter reports how many tasks an account owns. Implemented by the
// task repository.
type TaskCounter interface {
	CountByOwner(ctx context.Context, ownerID uint64) (int64, error)
	CountByOwners(ctx context.Context) (map[uint64]int64, error)
}

var (
	ErrInvalidArgument = apperr.New(apperr.Validation, "invalid argument")
	ErrAccountNotFound = apperr.New(apperr.NotFound, "account not found")
	ErrEmailTaken      = apperr.New(apperr.Conflict, "email already registered")
	ErrNameRequired    = apperr.Invalid("name", "name is required")
	ErrEmailInvalid    = apperr.Invalid("email", "email is invalid")
	ErrPasswordShort   = apperr.Invalid("password", "password must be at least 6 characters")
	ErrSelfManagement  = apperr.Invalid("id", "you cannot deactivate or delete your own account")
)
