package userendpoint

import (
	"context"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/usersvc"
	"github.com/ichigozero/taskdesk/usersvc/pkg/userservice"
)

type Set struct {
	AccountsEndpoint      endpoint.Endpoint
	AccountEndpoint       endpoint.Endpoint
	CreateAccountEndpoint endpoint.Endpoint
	UpdateAccountEndpoint endpoint.Endpoint
	ToggleActiveEndpoint  endpoint.Endpoint
	DeleteAccountEndpoint endpoint.Endpoint
}

func New(svc userservice.Service, logger log.Logger) Set {
	var accountsEndpoint endpoint.Endpoint
	{
		accountsEndpoint = MakeAccountsEndpoint(svc)
		accountsEndpoint = LoggingMiddleware(log.With(logger, "method", "Accounts"))(accountsEndpoint)
	}
	var accountEndpoint endpoint.Endpoint
	{
		accountEndpoint = MakeAccountEndpoint(svc)
		accountEndpoint = LoggingMiddleware(log.With(logger, "method", "Account"))(accountEndpoint)
	}
	var createAccountEndpoint endpoint.Endpoint
	{
		createAccountEndpoint = MakeCreateAccountEndpoint(svc)
		createAccountEndpoint = LoggingMiddleware(log.With(logger, "method", "CreateAccount"))(createAccountEndpoint)
	}
	var updateAccountEndpoint endpoint.Endpoint
	{
		updateAccountEndpoint = MakeUpdateAccountEndpoint(svc)
		updateAccountEndpoint = LoggingMiddleware(log.With(logger, "method", "UpdateAccount"))(updateAccountEndpoint)
	}
	var toggleActiveEndpoint endpoint.Endpoint
	{
		toggleActiveEndpoint = MakeToggleActiveEndpoint(svc)
		toggleActiveEndpoint = LoggingMiddleware(log.With(logger, "method", "ToggleActive"))(toggleActiveEndpoint)
	}
	var deleteAccountEndpoint endpoint.Endpoint
	{
		deleteAccountEndpoint = MakeDeleteAccountEndpoint(svc)
		deleteAccountEndpoint = LoggingMiddleware(log.With(logger, "method", "DeleteAccount"))(deleteAccountEndpoint)
	}
	return Set{
		AccountsEndpoint:      accountsEndpoint,
		AccountEndpoint:       accountEndpoint,
		CreateAccountEndpoint: createAccountEndpoint,
		UpdateAccountEndpoint: updateAccountEndpoint,
		ToggleActiveEndpoint:  toggleActiveEndpoint,
		DeleteAccountEndpoint: deleteAccountEndpoint,
	}
}

func (s Set) Accounts(ctx context.Context, _ authsvc.Auth) ([]usersvc.Account, error) {
	resp, err := s.AccountsEndpoint(ctx, AccountsRequest{})
	if err != nil {
		return nil, err
	}
	response := resp.(AccountsResponse)
	return response.Accounts, response.Err
}

func (s Set) Account(ctx context.Context, _ authsvc.Auth, id uint64) (usersvc.Account, error) {
	resp, err := s.AccountEndpoint(ctx, AccountRequest{ID: id})
	if err != nil {
		return usersvc.Account{}, err
	}
	response := resp.(AccountResponse)
	return response.Account, response.Err
}

func (s Set) CreateAccount(ctx context.Context, _ authsvc.Auth, in usersvc.AccountInput) (usersvc.Account, error) {
	resp, err := s.CreateAccountEndpoint(ctx, CreateAccountRequest{Input: in})
	if err != nil {
		return usersvc.Account{}, err
	}
	response := resp.(CreateAccountResponse)
	return response.Account, response.Err
}

func (s Set) UpdateAccount(ctx context.Context, _ authsvc.Auth, id uint64, p usersvc.AccountPatch) (usersvc.Account, error) {
	resp, err := s.UpdateAccountEndpoint(ctx, UpdateAccountRequest{ID: id, Patch: p})
	if err != nil {
		return usersvc.Account{}, err
	}
	response := resp.(AccountResponse)
	return response.Account, response.Err
}

func (s Set) ToggleActive(ctx context.Context, _ authsvc.Auth, id uint64) (usersvc.Account, error) {
	resp, err := s.ToggleActiveEndpoint(ctx, ToggleActiveRequest{ID: id})
	if err != nil {
		return usersvc.Account{}, err
	}
	response := resp.(AccountResponse)
	return response.Account, response.Err
}

func (s Set) DeleteAccount(ctx context.Context, _ authsvc.Auth, id uint64) (bool, error) {
	resp, err := s.DeleteAccountEndpoint(ctx, DeleteAccountRequest{ID: id})
	if err != nil {
		return false, err
	}
	response := resp.(DeleteAccountResponse)
	return response.Result, response.Err
}

func MakeAccountsEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return AccountsResponse{Err: err}, nil
		}
		accounts, err := s.Accounts(ctx, auth)
		return AccountsResponse{Accounts: accounts, Err: err}, nil
	}
}

func MakeAccountEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return AccountResponse{Err: err}, nil
		}
		req := request.(AccountRequest)
		a, err := s.Account(ctx, auth, req.ID)
		return AccountResponse{Account: a, Err: err}, nil
	}
}

func MakeCreateAccountEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return CreateAccountResponse{Err: err}, nil
		}
		req := request.(CreateAccountRequest)
		a, err := s.CreateAccount(ctx, auth, req.Input)
		return CreateAccountResponse{Account: a, Err: err}, nil
	}
}

func MakeUpdateAccountEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return AccountResponse{Err: err}, nil
		}
		req := request.(UpdateAccountRequest)
		a, err := s.UpdateAccount(ctx, auth, req.ID, req.Patch)
		return AccountResponse{Account: a, Err: err}, nil
	}
}

func MakeToggleActiveEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return AccountResponse{Err: err}, nil
		}
		req := request.(ToggleActiveRequest)
		a, err := s.ToggleActive(ctx, auth, req.ID)
		return AccountResponse{Account: a, Err: err}, nil
	}
}

func MakeDeleteAccountEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return DeleteAccountResponse{Err: err}, nil
		}
		req := request.(DeleteAccountRequest)
		ok, err := s.DeleteAccount(ctx, auth, req.ID)
		return DeleteAccountResponse{Result: ok, Err: err}, nil
	}
}

var (
	_ endpoint.Failer = AccountsResponse{}
	_ endpoint.Failer = AccountResponse{}
	_ endpoint.Failer = CreateAccountResponse{}
	_ endpoint.Failer = DeleteAccountResponse{}
)

type AccountsRequest struct{}

type AccountsResponse struct {
	Accounts []usersvc.Account `json:"users"`
	Err      error             `json:"-"`
}

func (r AccountsResponse) Failed() error { return r.Err }

type AccountRequest struct {
	ID uint64
}

type CreateAccountRequest struct {
	Input usersvc.AccountInput
}

// CreateAccountResponse answers 201 Created.
type CreateAccountResponse struct {
	Account usersvc.Account `json:"user"`
	Err     error           `json:"-"`
}

func (r CreateAccountResponse) Failed() error { return r.Err }

func (r CreateAccountResponse) StatusCode() int { return http.StatusCreated }

type UpdateAccountRequest struct {
	ID    uint64
	Patch usersvc.AccountPatch
}

type ToggleActiveRequest struct {
	ID uint64
}

type AccountResponse struct {
	Account usersvc.Account `json:"user"`
	Err     error           `json:"-"`
}

func (r AccountResponse) Failed() error { return r.Err }

type DeleteAccountRequest struct {
	ID uint64
}

type DeleteAccountResponse struct {
	Result bool  `json:"result"`
	Err    error `json:"-"`
}

func (r DeleteAccountResponse) Failed() error { return r.Err }
