package authservice

import (
	"context"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/inmem"
	"github.com/ichigozero/taskdesk/usersvc"
)

const minPassword = 6

// Session is the outcome of a sign in or a renewal.
type Session struct {
	Account usersvc.Account
	Tokens  Pair
}

type Service interface {
	Login(ctx context.Context, email, password string) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	Logout(ctx context.Context, a authsvc.Auth, refreshToken string) (bool, error)
	ChangePassword(ctx context.Context, a authsvc.Auth, current, next string) (bool, error)
	Profile(ctx context.Context, a authsvc.Auth) (usersvc.Account, error)
}

func New(
	accounts usersvc.AccountRepository,
	hasher *usersvc.PasswordHasher,
	t Tokenizer,
	c inmem.Client,
	logger log.Logger,
	requestCount metrics.Counter,
	requestLatency metrics.Histogram,
) Service {
	var svc Service
	{
		svc = NewBasicService(accounts, hasher, t, c)
		svc = LoggingMiddleware(logger)(svc)
		svc = InstrumentingMiddleware(requestCount, requestLatency)(svc)
	}
	return svc
}

type basicService struct {
	accounts  usersvc.AccountRepository
	hasher    *usersvc.PasswordHasher
	tokenizer Tokenizer
	client    inmem.Client
}

func NewBasicService(accounts usersvc.AccountRepository, hasher *usersvc.PasswordHasher, t Tokenizer, c inmem.Client) Service {
	return &basicService{accounts: accounts, hasher: hasher, tokenizer: t, client: c}
}

func (s *basicService) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, authsvc.ErrInvalidCredentials
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if apperr.Is(err, apperr.NotFound) {
		return Session{}, authsvc.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !s.hasher.Verify(password, account.Password) {
		return Session{}, authsvc.ErrInvalidCredentials
	}
	if !account.Active {
		return Session{}, authsvc.ErrAccountInactive
	}

	pair, err := s.tokenizer.Generate(account)
	if err != nil {
		return Session{}, err
	}
	return Session{Account: account, Tokens: pair}, nil
}

// Refresh rotates the credential pair. The presented renewal credential is
// revoked so it cannot be replayed.
func (s *basicService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, authsvc.ErrRefreshMissing
	}

	claims, err := s.tokenizer.ParseRefresh(refreshToken)
	if err != nil {
		return Session{}, err
	}

	revoked, err := s.client.IsRevoked(ctx, claims.Id)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, authsvc.ErrRefreshInvalid
	}

	account, err := s.accounts.Find(ctx, claims.AccountID)
	if apperr.Is(err, apperr.NotFound) {
		return Session{}, authsvc.ErrRefreshInvalid
	}
	if err != nil {
		return Session{}, err
	}
	if !account.Active || account.TokenEpoch != claims.Epoch {
		return Session{}, authsvc.ErrRefreshInvalid
	}

	pair, err := s.tokenizer.Generate(account)
	if err != nil {
		return Session{}, err
	}
	if err := s.client.Revoke(ctx, claims.Id, time.Unix(claims.ExpiresAt, 0)); err != nil {
		return Session{}, err
	}
	return Session{Account: account, Tokens: pair}, nil
}

// Logout revokes the access credential of a and, when it belongs to the same
// account, the accompanying renewal credential.
func (s *basicService) Logout(ctx context.Context, a authsvc.Auth, refreshToken string) (bool, error) {
	if a.AccessUUID == "" {
		return false, authsvc.ErrInvalidArgument
	}

	if err := s.client.Revoke(ctx, a.AccessUUID, time.Unix(a.ExpiresAt, 0)); err != nil {
		return false, err
	}

	if refreshToken == "" {
		return true, nil
	}
	claims, err := s.tokenizer.ParseRefresh(refreshToken)
	if err != nil || claims.AccountID != a.AccountID {
		return true, nil
	}
	if err := s.client.Revoke(ctx, claims.Id, time.Unix(claims.ExpiresAt, 0)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *basicService) ChangePassword(ctx context.Context, a authsvc.Auth, current, next string) (bool, error) {
	account, err := s.accounts.Find(ctx, a.AccountID)
	if err != nil {
		return false, err
	}
	if !s.hasher.Verify(current, account.Password) {
		return false, authsvc.ErrWrongPassword
	}
	if len(next) < minPassword {
		return false, authsvc.ErrWeakPassword
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return false, err
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return false, err
	}
	return true, nil
}

func (s *basicService) Profile(ctx context.Context, a authsvc.Auth) (usersvc.Account, error) {
	return s.accounts.Find(ctx, a.AccountID)
}
