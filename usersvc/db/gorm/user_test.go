package gorm

import (
	"context"
	"testing"

	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc/policy"
	"github.com/ichigozero/taskdesk/usersvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	libgorm "gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRepository(t *testing.T) usersvc.AccountRepository {
	t.Helper()
	db, err := libgorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &libgorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&usersvc.Account{}))
	return NewAccountRepository(db)
}

func TestAccountRepository(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	a := usersvc.Account{Name: "Alice", Email: " Alice@Example.com", Password: "hash", Role: policy.RoleEmployee, Active: true}
	require.NoError(t, repo.Create(ctx, &a))
	require.NotZero(t, a.ID)

	found, err := repo.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
	assert.Equal(t, "alice@example.com", found.Email)

	dup := usersvc.Account{Name: "Other", Email: "alice@example.com", Password: "hash", Role: policy.RoleEmployee}
	assert.Error(t, repo.Create(ctx, &dup))

	require.NoError(t, repo.UpdatePassword(ctx, a.ID, "new-hash"))
	require.NoError(t, repo.UpdatePassword(ctx, a.ID, "newer-hash"))
	found, err = repo.Find(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "newer-hash", found.Password)
	assert.Equal(t, uint64(2), found.TokenEpoch)

	found.Active = false
	require.NoError(t, repo.Save(ctx, &found))
	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)

	require.NoError(t, repo.Delete(ctx, a.ID))
	_, err = repo.Find(ctx, a.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.True(t, apperr.Is(repo.Delete(ctx, a.ID), apperr.NotFound))
	assert.True(t, apperr.Is(repo.UpdatePassword(ctx, a.ID, "x"), apperr.NotFound))
}
