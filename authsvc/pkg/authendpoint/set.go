package authendpoint

import (
	"context"
	"time"

	stdjwt "github.com/dgrijalva/jwt-go"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authservice"
	"github.com/ichigozero/taskdesk/usersvc"
	"golang.org/x/time/rate"
)

type Set struct {
	LoginEndpoint          endpoint.Endpoint
	RefreshEndpoint        endpoint.Endpoint
	LogoutEndpoint         endpoint.Endpoint
	ChangePasswordEndpoint endpoint.Endpoint
	ProfileEndpoint        endpoint.Endpoint
}

// New builds the endpoints. Sign in attempts are limited to one per second
// with a burst of five, shared by every caller.
func New(svc authservice.Service, logger log.Logger) Set {
	return NewWithLimiter(svc, logger, rate.NewLimiter(rate.Every(time.Second), 5))
}

func NewWithLimiter(svc authservice.Service, logger log.Logger, limit *rate.Limiter) Set {
	var loginEndpoint endpoint.Endpoint
	{
		loginEndpoint = MakeLoginEndpoint(svc)
		loginEndpoint = ratelimit.NewErroringLimiter(limit)(loginEndpoint)
		loginEndpoint = LoggingMiddleware(log.With(logger, "method", "Login"))(loginEndpoint)
	}

	var refreshEndpoint endpoint.Endpoint
	{
		refreshEndpoint = MakeRefreshEndpoint(svc)
		refreshEndpoint = LoggingMiddleware(log.With(logger, "method", "Refresh"))(refreshEndpoint)
	}

	var logoutEndpoint endpoint.Endpoint
	{
		logoutEndpoint = MakeLogoutEndpoint(svc)
		logoutEndpoint = LoggingMiddleware(log.With(logger, "method", "Logout"))(logoutEndpoint)
	}

	var changePasswordEndpoint endpoint.Endpoint
	{
		changePasswordEndpoint = MakeChangePasswordEndpoint(svc)
		changePasswordEndpoint = LoggingMiddleware(log.With(logger, "method", "ChangePassword"))(changePasswordEndpoint)
	}

	var profileEndpoint endpoint.Endpoint
	{
		profileEndpoint = MakeProfileEndpoint(svc)
		profileEndpoint = LoggingMiddleware(log.With(logger, "method", "Profile"))(profileEndpoint)
	}

	return Set{
		LoginEndpoint:          loginEndpoint,
		RefreshEndpoint:        refreshEndpoint,
		LogoutEndpoint:         logoutEndpoint,
		ChangePasswordEndpoint: changePasswordEndpoint,
		ProfileEndpoint:        profileEndpoint,
	}
}

// Login on the client side returns the renewal cookie value as the refresh
// token. It is opaque to the client and only useful for sending back.
func (s Set) Login(ctx context.Context, email, password string) (authservice.Session, error) {
	response, err := s.LoginEndpoint(ctx, LoginRequest{Email: email, Password: password})
	if err != nil {
		return authservice.Session{}, err
	}

	resp := response.(LoginResponse)
	if resp.Err != nil {
		return authservice.Session{}, resp.Err
	}
	return authservice.Session{
		Account: resp.Account,
		Tokens:  accessPair(resp.AccessToken, resp.Refresh, resp.RefreshExpires),
	}, nil
}

func (s Set) Refresh(ctx context.Context, refreshToken string) (authservice.Session, error) {
	response, err := s.RefreshEndpoint(ctx, RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return authservice.Session{}, err
	}

	resp := response.(RefreshResponse)
	if resp.Err != nil {
		return authservice.Session{}, resp.Err
	}
	return authservice.Session{
		Tokens: accessPair(resp.AccessToken, resp.Refresh, resp.RefreshExpires),
	}, nil
}

// accessPair fills the access id and expiry from the access credential's
// claims. The client cannot verify the signature; the server does that on
// every call.
func accessPair(access, refresh string, refreshExpires time.Time) authservice.Pair {
	p := authservice.Pair{AccessToken: access, RefreshToken: refresh, RefreshExpires: refreshExpires}
	var claims authsvc.Claims
	if _, _, err := new(stdjwt.Parser).ParseUnverified(access, &claims); err == nil {
		p.AccessUUID = claims.Id
		p.AccessExpires = time.Unix(claims.ExpiresAt, 0)
	}
	return p
}

func (s Set) Logout(ctx context.Context, _ authsvc.Auth, refreshToken string) (bool, error) {
	response, err := s.LogoutEndpoint(ctx, LogoutRequest{RefreshToken: refreshToken})
	if err != nil {
		return false, err
	}

	resp := response.(LogoutResponse)
	return resp.Success, resp.Err
}

func (s Set) ChangePassword(ctx context.Context, _ authsvc.Auth, current, next string) (bool, error) {
	response, err := s.ChangePasswordEndpoint(ctx, ChangePasswordRequest{CurrentPassword: current, NewPassword: next})
	if err != nil {
		return false, err
	}

	resp := response.(ChangePasswordResponse)
	return resp.Success, resp.Err
}

func (s Set) Profile(ctx context.Context, _ authsvc.Auth) (usersvc.Account, error) {
	response, err := s.ProfileEndpoint(ctx, ProfileRequest{})
	if err != nil {
		return usersvc.Account{}, err
	}

	resp := response.(ProfileResponse)
	return resp.Account, resp.Err
}

func MakeLoginEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(LoginRequest)
		session, err := s.Login(ctx, req.Email, req.Password)

		return LoginResponse{
			Account:        session.Account,
			AccessToken:    session.Tokens.AccessToken,
			Refresh:        session.Tokens.RefreshToken,
			RefreshExpires: session.Tokens.RefreshExpires,
			Err:            err,
		}, nil
	}
}

func MakeRefreshEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(RefreshRequest)
		session, err := s.Refresh(ctx, req.RefreshToken)

		return RefreshResponse{
			AccessToken:    session.Tokens.AccessToken,
			Refresh:        session.Tokens.RefreshToken,
			RefreshExpires: session.Tokens.RefreshExpires,
			Err:            err,
		}, nil
	}
}

func MakeLogoutEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return LogoutResponse{Err: err}, nil
		}

		req := request.(LogoutRequest)
		ok, err := s.Logout(ctx, auth, req.RefreshToken)

		return LogoutResponse{Success: ok, Err: err}, nil
	}
}

func MakeChangePasswordEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return ChangePasswordResponse{Err: err}, nil
		}

		req := request.(ChangePasswordRequest)
		ok, err := s.ChangePassword(ctx, auth, req.CurrentPassword, req.NewPassword)

		return ChangePasswordResponse{Success: ok, Err: err}, nil
	}
}

func MakeProfileEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return ProfileResponse{Err: err}, nil
		}

		_ = request.(ProfileRequest)
		account, err := s.Profile(ctx, auth)

		return ProfileResponse{Account: account, Err: err}, nil
	}
}

var (
	_ endpoint.Failer = LoginResponse{}
	_ endpoint.Failer = RefreshResponse{}
	_ endpoint.Failer = LogoutResponse{}
	_ endpoint.Failer = ChangePasswordResponse{}
	_ endpoint.Failer = ProfileResponse{}
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the renewal credential out of band; the transport
// moves Refresh into a cookie.
type LoginResponse struct {
	Account        usersvc.Account `json:"account"`
	AccessToken    string          `json:"accessToken"`
	Refresh        string          `json:"-"`
	RefreshExpires time.Time       `json:"-"`
	Err            error           `json:"-"`
}

func (r LoginResponse) Failed() error { return r.Err }

type RefreshRequest struct {
	RefreshToken string `json:"-"`
}

type RefreshResponse struct {
	AccessToken    string    `json:"accessToken"`
	Refresh        string    `json:"-"`
	RefreshExpires time.Time `json:"-"`
	Err            error     `json:"-"`
}

func (r RefreshResponse) Failed() error { return r.Err }

type LogoutRequest struct {
	RefreshToken string `json:"-"`
}

type LogoutResponse struct {
	Success bool  `json:"success"`
	Err     error `json:"-"`
}

func (r LogoutResponse) Failed() error { return r.Err }

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type ChangePasswordResponse struct {
	Success bool  `json:"success"`
	Err     error `json:"-"`
}

func (r ChangePasswordResponse) Failed() error { return r.Err }

type ProfileRequest struct{}

type ProfileResponse struct {
	Account usersvc.Account `json:"account"`
	Err     error           `json:"-"`
}

func (r ProfileResponse) Failed() error { return r.Err }
