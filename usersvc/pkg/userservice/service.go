package userservice

import (
	"context"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/policy"
	"github.com/ichigozero/taskdesk/usersvc"
)

const minPassword = 6

type Service interface {
	Accounts(ctx context.Context, a authsvc.Auth) ([]usersvc.Account, error)
	Account(ctx context.Context, a authsvc.Auth, id uint64) (usersvc.Account, error)
	CreateAccount(ctx context.Context, a authsvc.Auth, in usersvc.AccountInput) (usersvc.Account, error)
	UpdateAccount(ctx context.Context, a authsvc.Auth, id uint64, p usersvc.AccountPatch) (usersvc.Account, error)
	ToggleActive(ctx context.Context, a authsvc.Auth, id uint64) (usersvc.Account, error)
	DeleteAccount(ctx context.Context, a authsvc.Auth, id uint64) (bool, error)
}

func New(
	accounts usersvc.AccountRepository,
	tasks usersvc.TaskCounter,
	hasher *usersvc.PasswordHasher,
	logger log.Logger,
	requestCount metrics.Counter,
	requestLatency metrics.Histogram,
) Service {
	var svc Service
	{
		svc = NewBasicService(accounts, tasks, hasher)
		svc = LoggingMiddleware(logger)(svc)
		svc = InstrumentingMiddleware(requestCount, requestLatency)(svc)
	}
	return svc
}

type basicService struct {
	accounts usersvc.AccountRepository
	tasks    usersvc.TaskCounter
	hasher   *usersvc.PasswordHasher
}

func NewBasicService(accounts usersvc.AccountRepository, tasks usersvc.TaskCounter, hasher *usersvc.PasswordHasher) Service {
	return basicService{accounts: accounts, tasks: tasks, hasher: hasher}
}

// Accounts is open to every signed in account so task owners can be picked.
func (s basicService) Accounts(ctx context.Context, a authsvc.Auth) ([]usersvc.Account, error) {
	if a.AccountID == 0 {
		return nil, usersvc.ErrInvalidArgument
	}

	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.tasks.CountByOwners(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		accounts[i].TaskCount = counts[accounts[i].ID]
	}
	return accounts, nil
}

func (s basicService) Account(ctx context.Context, a authsvc.Auth, id uint64) (usersvc.Account, error) {
	if err := policy.Authorize(a.Role, a.AccountID, id, policy.AccountRead); err != nil {
		return usersvc.Account{}, err
	}

	account, err := s.accounts.Find(ctx, id)
	if err != nil {
		return usersvc.Account{}, err
	}
	account.TaskCount, err = s.tasks.CountByOwner(ctx, id)
	if err != nil {
		return usersvc.Account{}, err
	}
	return account, nil
}

func (s basicService) CreateAccount(ctx context.Context, a authsvc.Auth, in usersvc.AccountInput) (usersvc.Account, error) {
	if err := policy.Authorize(a.Role, a.AccountID, 0, policy.AccountCreate); err != nil {
		return usersvc.Account{}, err
	}

	account := usersvc.Account{
		Name:       strings.TrimSpace(in.Name),
		Email:      strings.ToLower(strings.TrimSpace(in.Email)),
		Role:       in.Role,
		Department: in.Department,
		Active:     true,
	}
	if account.Role == "" {
		account.Role = policy.RoleEmployee
	}
	if err := validate(account); err != nil {
		return usersvc.Account{}, err
	}
	if len(in.Password) < minPassword {
		return usersvc.Account{}, usersvc.ErrPasswordShort
	}
	if err := s.checkEmailFree(ctx, account.Email, 0); err != nil {
		return usersvc.Account{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return usersvc.Account{}, err
	}
	account.Password = hash

	if err := s.accounts.Create(ctx, &account); err != nil {
		return usersvc.Account{}, err
	}
	return account, nil
}

func (s basicService) UpdateAccount(ctx context.Context, a authsvc.Auth, id uint64, p usersvc.AccountPatch) (usersvc.Account, error) {
	if err := policy.Authorize(a.Role, a.AccountID, id, policy.AccountUpdate); err != nil {
		return usersvc.Account{}, err
	}

	account, err := s.accounts.Find(ctx, id)
	if err != nil {
		return usersvc.Account{}, err
	}

	if p.Name != nil {
		account.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		account.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.Role != nil {
		account.Role = *p.Role
	}
	if p.Department != nil {
		account.Department = *p.Department
	}
	if err := validate(account); err != nil {
		return usersvc.Account{}, err
	}
	if p.Email != nil {
		if err := s.checkEmailFree(ctx, account.Email, id); err != nil {
			return usersvc.Account{}, err
		}
	}

	var hash string
	if p.Password != nil {
		if len(*p.Password) < minPassword {
			return usersvc.Account{}, usersvc.ErrPasswordShort
		}
		if hash, err = s.hasher.Hash(*p.Password); err != nil {
			return usersvc.Account{}, err
		}
	}

	if err := s.accounts.Save(ctx, &account); err != nil {
		return usersvc.Account{}, err
	}
	if hash != "" {
		if err := s.accounts.UpdatePassword(ctx, id, hash); err != nil {
			return usersvc.Account{}, err
		}
	}
	return account, nil
}

// ToggleActive flips the active flag. Deactivation bumps the credential
// epoch so outstanding renewal credentials stop working.
func (s basicService) ToggleActive(ctx context.Context, a authsvc.Auth, id uint64) (usersvc.Account, error) {
	if err := policy.Authorize(a.Role, a.AccountID, id, policy.AccountToggle); err != nil {
		return usersvc.Account{}, err
	}
	if id == a.AccountID {
		return usersvc.Account{}, usersvc.ErrSelfManagement
	}

	account, err := s.accounts.Find(ctx, id)
	if err != nil {
		return usersvc.Account{}, err
	}

	account.Active = !account.Active
	if !account.Active {
		account.TokenEpoch++
	}
	if err := s.accounts.Save(ctx, &account); err != nil {
		return usersvc.Account{}, err
	}
	return account, nil
}

func (s basicService) DeleteAccount(ctx context.Context, a authsvc.Auth, id uint64) (bool, error) {
	if err := policy.Authorize(a.Role, a.AccountID, id, policy.AccountDelete); err != nil {
		return false, err
	}
	if id == a.AccountID {
		return false, usersvc.ErrSelfManagement
	}

	if _, err := s.accounts.Find(ctx, id); err != nil {
		return false, err
	}

	n, err := s.tasks.CountByOwner(ctx, id)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, apperr.Newf(apperr.Constraint,
			"cannot delete account: it still owns %d task(s), reassign or delete them first", n)
	}

	if err := s.accounts.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (s basicService) checkEmailFree(ctx context.Context, email string, self uint64) error {
	existing, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case apperr.Is(err, apperr.NotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return usersvc.ErrEmailTaken
	}
	return nil
}

func validate(a usersvc.Account) error {
	if a.Name == "" {
		return usersvc.ErrNameRequired
	}
	if at := strings.Index(a.Email, "@"); at < 1 || at == len(a.Email)-1 {
		return usersvc.ErrEmailInvalid
	}
	if !a.Role.Valid() {
		return apperr.Invalid("role", "role must be ADMIN or EMPLOYEE")
	}
	return nil
}

// SeedAdmin creates an administrator with the given credentials unless an
// account with that email already exists. It reports whether one was made.
func SeedAdmin(ctx context.Context, accounts usersvc.AccountRepository, hasher *usersvc.PasswordHasher, name, email, password string) (bool, error) {
	_, err := accounts.FindByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return false, err
	}
	if len(password) < minPassword {
		return false, usersvc.ErrPasswordShort
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return false, err
	}
	admin := usersvc.Account{
		Name:     name,
		Email:    email,
		Password: hash,
		Role:     policy.RoleAdmin,
		Active:   true,
	}
	if err := accounts.Create(ctx, &admin); err != nil {
		return false, err
	}
	return true, nil
}
