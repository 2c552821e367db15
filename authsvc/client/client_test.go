package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/inmem"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authservice"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskdesk/authsvc/policy"
	"github.com/ichigozero/taskdesk/authsvc/session"
	"github.com/ichigozero/taskdesk/usersvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type accounts struct {
	usersvc.AccountRepository
	mtx  sync.Mutex
	rows map[uint64]usersvc.Account
}

func (a *accounts) Find(_ context.Context, id uint64) (usersvc.Account, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if acc, ok := a.rows[id]; ok {
		return acc, nil
	}
	return usersvc.Account{}, usersvc.ErrAccountNotFound
}

func (a *accounts) FindByEmail(_ context.Context, email string) (usersvc.Account, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	for _, acc := range a.rows {
		if acc.Email == email {
			return acc, nil
		}
	}
	return usersvc.Account{}, usersvc.ErrAccountNotFound
}

func (a *accounts) deactivate(id uint64) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	acc := a.rows[id]
	acc.Active = false
	acc.TokenEpoch++
	a.rows[id] = acc
}

type fixture struct {
	url      string
	denylist inmem.Client
	accounts *accounts
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	hasher := usersvc.NewPasswordHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("secret1")
	require.NoError(t, err)
	repo := &accounts{rows: map[uint64]usersvc.Account{
		1: {ID: 1, Name: "Alice", Email: "alice@example.com", Password: hash, Role: policy.RoleEmployee, Active: true},
	}}

	logger := log.NewNopLogger()
	denylist := inmem.NewMemoryClient()
	svc := authservice.New(repo, hasher, authservice.NewTokenizer(nil), denylist, logger, discard.NewCounter(), discard.NewHistogram())
	h := authtransport.NewHTTPHandler(mux.NewRouter(), authendpoint.New(svc, logger), denylist, logger)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return fixture{url: srv.URL, denylist: denylist, accounts: repo}
}

func TestCoordinatorRenewsThroughClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	logger := log.NewNopLogger()

	auth, err := New(f.url, http.DefaultClient, logger)
	require.NoError(t, err)
	s, err := auth.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, auth.RefreshToken())
	require.NotEmpty(t, s.Tokens.AccessUUID)

	coordinator := session.NewCoordinator(http.DefaultTransport, auth, session.WithStore(session.NewMemoryStore(s.Tokens.AccessToken)))
	api, err := authtransport.NewHTTPClient(f.url, &http.Client{Transport: coordinator}, logger)
	require.NoError(t, err)

	_, err = api.Profile(ctx, authsvc.Auth{})
	require.NoError(t, err)

	// Revoking the access credential makes the server answer 401 as it
	// would after expiry.
	require.NoError(t, f.denylist.Revoke(ctx, s.Tokens.AccessUUID, time.Now().Add(time.Hour)))
	before := auth.RefreshToken()

	profile, err := api.Profile(ctx, authsvc.Auth{})
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.Name)
	assert.NotEqual(t, s.Tokens.AccessToken, coordinator.Access())
	assert.NotEqual(t, before, auth.RefreshToken())

	require.NoError(t, auth.Logout(ctx, api))
	assert.Empty(t, auth.RefreshToken())

	_, err = api.Profile(ctx, authsvc.Auth{})
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSessionExpired)
	assert.True(t, coordinator.SignedOut())
}

func TestLogoutAfterRenewalRevokesRotatedCookie(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	logger := log.NewNopLogger()

	auth, err := New(f.url, http.DefaultClient, logger)
	require.NoError(t, err)
	s, err := auth.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, s.Tokens.AccessUUID)

	var rotated string
	coordinator := session.NewCoordinator(http.DefaultTransport, auth,
		session.WithStore(session.NewMemoryStore(s.Tokens.AccessToken)),
		session.OnRenew(func(string) { rotated = auth.RefreshToken() }),
	)
	api, err := authtransport.NewHTTPClient(f.url, &http.Client{Transport: coordinator}, logger)
	require.NoError(t, err)

	// The logout call itself hits the 401 and is retried after renewal.
	require.NoError(t, f.denylist.Revoke(ctx, s.Tokens.AccessUUID, time.Now().Add(time.Hour)))
	require.NoError(t, auth.Logout(ctx, api))
	require.NotEmpty(t, rotated)
	assert.NotEqual(t, s.Tokens.RefreshToken, rotated)

	plain, err := authtransport.NewHTTPClient(f.url, http.DefaultClient, logger)
	require.NoError(t, err)
	_, err = plain.Refresh(ctx, rotated)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestEditRequestSwapsOnlyRenewalCookie(t *testing.T) {
	c := &Client{}
	c.SetRefreshToken("current")

	r := httptest.NewRequest("POST", "/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})
	r.AddCookie(&http.Cookie{Name: authsvc.RefreshCookieName, Value: "old"})
	c.EditRequest(r)

	got, err := r.Cookie(authsvc.RefreshCookieName)
	require.NoError(t, err)
	assert.Equal(t, "current", got.Value)
	theme, err := r.Cookie("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", theme.Value)

	bare := httptest.NewRequest("GET", "/auth/me", nil)
	c.EditRequest(bare)
	assert.Empty(t, bare.Header.Get("Cookie"))
}

func TestDeactivatedAccountIsSignedOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	logger := log.NewNopLogger()

	auth, err := New(f.url, http.DefaultClient, logger)
	require.NoError(t, err)
	s, err := auth.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, s.Tokens.AccessUUID)

	var cause error
	coordinator := session.NewCoordinator(http.DefaultTransport, auth,
		session.WithStore(session.NewMemoryStore(s.Tokens.AccessToken)),
		session.OnSignOut(func(err error) { cause = err }),
	)
	api, err := authtransport.NewHTTPClient(f.url, &http.Client{Transport: coordinator}, logger)
	require.NoError(t, err)

	f.accounts.deactivate(1)
	require.NoError(t, f.denylist.Revoke(ctx, s.Tokens.AccessUUID, time.Now().Add(time.Hour)))

	_, err = api.Profile(ctx, authsvc.Auth{})
	assert.ErrorIs(t, err, session.ErrSessionExpired)
	require.Error(t, cause)
	assert.Equal(t, authsvc.ErrRefreshInvalid.Error(), cause.Error())
	assert.Empty(t, auth.RefreshToken())
}
