package userservice

import (
	"context"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/policy"
	"github.com/ichigozero/taskdesk/usersvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memAccounts struct {
	rows   map[uint64]usersvc.Account
	nextID uint64
}

func newMemAccounts(accounts ...usersvc.Account) *memAccounts {
	m := &memAccounts{rows: map[uint64]usersvc.Account{}}
	for _, a := range accounts {
		m.rows[a.ID] = a
		if a.ID > m.nextID {
			m.nextID = a.ID
		}
	}
	return m
}

func (m *memAccounts) Create(_ context.Context, a *usersvc.Account) error {
	m.nextID++
	a.ID = m.nextID
	m.rows[a.ID] = *a
	return nil
}

func (m *memAccounts) Find(_ context.Context, id uint64) (usersvc.Account, error) {
	a, ok := m.rows[id]
	if !ok {
		return usersvc.Account{}, usersvc.ErrAccountNotFound
	}
	return a, nil
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (usersvc.Account, error) {
	for _, a := range m.rows {
		if a.Email == email {
			return a, nil
		}
	}
	return usersvc.Account{}, usersvc.ErrAccountNotFound
}

func (m *memAccounts) FindAll(context.Context) ([]usersvc.Account, error) {
	var out []usersvc.Account
	for _, a := range m.rows {
		out = append(out, a)
	}
	return out, nil
}

func (m *memAccounts) Save(_ context.Context, a *usersvc.Account) error {
	m.rows[a.ID] = *a
	return nil
}

func (m *memAccounts) Delete(_ context.Context, id uint64) error {
	delete(m.rows, id)
	return nil
}

func (m *memAccounts) UpdatePassword(_ context.Context, id uint64, hash string) error {
	a := m.rows[id]
	a.Password = hash
	a.TokenEpoch++
	m.rows[id] = a
	return nil
}

type ownedTasks map[uint64]int64

func (o ownedTasks) CountByOwner(_ context.Context, ownerID uint64) (int64, error) {
	return o[ownerID], nil
}

func (o ownedTasks) CountByOwners(context.Context) (map[uint64]int64, error) {
	return o, nil
}

var (
	admin = authsvc.Auth{AccountID: 1, Role: policy.RoleAdmin}
	alice = authsvc.Auth{AccountID: 2, Role: policy.RoleEmployee}
)

func newService(accounts *memAccounts, tasks ownedTasks) Service {
	var svc Service
	{
		svc = NewBasicService(accounts, tasks, usersvc.NewPasswordHasher(bcrypt.MinCost))
		svc = LoggingMiddleware(log.NewNopLogger())(svc)
		svc = InstrumentingMiddleware(discard.NewCounter(), discard.NewHistogram())(svc)
	}
	return svc
}

func seeded() *memAccounts {
	return newMemAccounts(
		usersvc.Account{ID: 1, Name: "Admin", Email: "admin@example.com", Role: policy.RoleAdmin, Active: true},
		usersvc.Account{ID: 2, Name: "Alice", Email: "alice@example.com", Role: policy.RoleEmployee, Active: true},
		usersvc.Account{ID: 3, Name: "Bob", Email: "bob@example.com", Role: policy.RoleEmployee, Active: true},
	)
}

func TestCreateAccount(t *testing.T) {
	accounts := seeded()
	svc := newService(accounts, ownedTasks{})
	ctx := context.Background()

	in := usersvc.AccountInput{Name: "Carol", Email: " Carol@Example.com ", Password: "secret1"}

	_, err := svc.CreateAccount(ctx, alice, in)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	created, err := svc.CreateAccount(ctx, admin, in)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", created.Email)
	assert.Equal(t, policy.RoleEmployee, created.Role)
	assert.True(t, created.Active)
	assert.NotEqual(t, "secret1", accounts.rows[created.ID].Password)

	_, err = svc.CreateAccount(ctx, admin, in)
	assert.True(t, apperr.Is(err, apperr.Conflict))

	_, err = svc.CreateAccount(ctx, admin, usersvc.AccountInput{Name: "Dan", Email: "dan@example.com", Password: "123"})
	assert.Equal(t, usersvc.ErrPasswordShort, err)
}

func TestUpdateAccountEmailCollision(t *testing.T) {
	svc := newService(seeded(), ownedTasks{})
	ctx := context.Background()

	taken := "bob@example.com"
	_, err := svc.UpdateAccount(ctx, admin, 2, usersvc.AccountPatch{Email: &taken})
	assert.True(t, apperr.Is(err, apperr.Conflict))

	same := "alice@example.com"
	dept := "Finance"
	updated, err := svc.UpdateAccount(ctx, admin, 2, usersvc.AccountPatch{Email: &same, Department: &dept})
	require.NoError(t, err)
	assert.Equal(t, "Finance", updated.Department)
}

func TestUpdateAccountPasswordBumpsEpoch(t *testing.T) {
	accounts := seeded()
	svc := newService(accounts, ownedTasks{})

	pw := "another-secret"
	_, err := svc.UpdateAccount(context.Background(), admin, 2, usersvc.AccountPatch{Password: &pw})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), accounts.rows[2].TokenEpoch)
}

func TestToggleActiveBumpsEpochOnDeactivate(t *testing.T) {
	accounts := seeded()
	svc := newService(accounts, ownedTasks{})
	ctx := context.Background()

	_, err := svc.ToggleActive(ctx, alice, 3)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = svc.ToggleActive(ctx, admin, 1)
	assert.Equal(t, usersvc.ErrSelfManagement, err)

	off, err := svc.ToggleActive(ctx, admin, 2)
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.Equal(t, uint64(1), accounts.rows[2].TokenEpoch)

	on, err := svc.ToggleActive(ctx, admin, 2)
	require.NoError(t, err)
	assert.True(t, on.Active)
	assert.Equal(t, uint64(1), accounts.rows[2].TokenEpoch)
}

func TestDeleteAccountOwningTasks(t *testing.T) {
	accounts := seeded()
	svc := newService(accounts, ownedTasks{2: 3})
	ctx := context.Background()

	_, err := svc.DeleteAccount(ctx, alice, 3)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = svc.DeleteAccount(ctx, admin, 2)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Constraint))
	assert.Contains(t, err.Error(), "3 task(s)")
	assert.Contains(t, accounts.rows, uint64(2))

	ok, err := svc.DeleteAccount(ctx, admin, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotContains(t, accounts.rows, uint64(3))

	_, err = svc.DeleteAccount(ctx, admin, 3)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestAccountReads(t *testing.T) {
	svc := newService(seeded(), ownedTasks{2: 4})
	ctx := context.Background()

	accounts, err := svc.Accounts(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
	for _, a := range accounts {
		if a.ID == 2 {
			assert.Equal(t, int64(4), a.TaskCount)
		}
	}

	self, err := svc.Account(ctx, alice, 2)
	require.NoError(t, err)
	assert.Equal(t, "Alice", self.Name)

	_, err = svc.Account(ctx, alice, 3)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
}

func TestSeedAdmin(t *testing.T) {
	accounts := newMemAccounts()
	hasher := usersvc.NewPasswordHasher(bcrypt.MinCost)
	ctx := context.Background()

	created, err := SeedAdmin(ctx, accounts, hasher, "Admin", "admin@example.com", "changeme")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = SeedAdmin(ctx, accounts, hasher, "Admin", "admin@example.com", "changeme")
	require.NoError(t, err)
	assert.False(t, created)

	require.Len(t, accounts.rows, 1)
	for _, a := range accounts.rows {
		assert.Equal(t, policy.RoleAdmin, a.Role)
		assert.True(t, hasher.Verify("changeme", a.Password))
	}
}
