package tasksvc

import (
	"context"

	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/usersvc"
)

type accountOwners struct {
	accounts usersvc.AccountRepository
}

// NewOwnerDirectory resolves task owners from the account repository.
func NewOwnerDirectory(accounts usersvc.AccountRepository) OwnerDirectory {
	return accountOwners{accounts}
}

func (o accountOwners) Owner(ctx context.Context, id uint64) (Owner, error) {
	a, err := o.accounts.Find(ctx, id)
	if apperr.Is(err, apperr.NotFound) {
		return Owner{}, ErrOwnerInactive
	}
	if err != nil {
		return Owner{}, err
	}
	return toOwner(a), nil
}

func (o accountOwners) ActiveOwners(ctx context.Context) ([]Owner, error) {
	accounts, err := o.accounts.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	owners := make([]Owner, 0, len(accounts))
	for _, a := range accounts {
		if a.Active {
			owners = append(owners, toOwner(a))
		}
	}
	return owners, nil
}

func toOwner(a usersvc.Account) Owner {
	return Owner{ID: a.ID, Name: a.Name, Department: a.Department, Active: a.Active}
}
