package authsvc

import (
	"context"
	"os"

	stdjwt "github.com/dgrijalva/jwt-go"
	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc/policy"
)

var (
	AppEnv         = getEnv("APP_ENV", "development")
	AccessSecret   = getEnv("ACCESS_SECRET", "access-secret")
	RefreshSecret  = getEnv("REFRESH_SECRET", "refresh-secret")
	CookieHashKey  = getEnv("COOKIE_HASH_KEY", "very-secret")
	CookieBlockKey = getEnv("COOKIE_BLOCK_KEY", "a-lots-of-secret")
)

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = fallback
	}
	return value
}

func IsProduction() bool { return AppEnv == "production" }

// IsDevelopment reports whether error responses may carry internal detail.
func IsDevelopment() bool { return AppEnv == "development" }

// RefreshCookieName is the http-only cookie carrying the renewal credential.
const RefreshCookieName = "refreshToken"

// Claims is the payload of both access and renewal credentials. The two are
// told apart by the secret they are signed with.
type Claims struct {
	AccountID uint64      `json:"account_id"`
	Role      policy.Role `json:"role"`
	Epoch     uint64      `json:"epoch,omitempty"`
	stdjwt.StandardClaims
}

// ClaimsFactory is a go-kit auth/jwt ClaimsFactory for Claims.
func ClaimsFactory() stdjwt.Claims {
	return &Claims{}
}

// Auth is the authenticated caller of a request.
type Auth struct {
	AccessUUID string
	AccountID  uint64
	Role       policy.Role
	ExpiresAt  int64
}

func (a Auth) IsAdmin() bool { return a.Role == policy.RoleAdmin }

type contextKey string

const AuthContextKey contextKey = "Auth"

func NewContext(ctx context.Context, a Auth) context.Context {
	return context.WithValue(ctx, AuthContextKey, a)
}

func FromContext(ctx context.Context) (Auth, error) {
	a, ok := ctx.Value(AuthContextKey).(Auth)
	if !ok || a.AccountID == 0 {
		return Auth{}, ErrAuthContextMissing
	}
	return a, nil
}

var (
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "invalid email or password")
	ErrAccountInactive    = apperr.New(apperr.Forbidden, "account is deactivated, contact an administrator")
	ErrRefreshInvalid     = apperr.New(apperr.Unauthorized, "refresh token invalid or expired")
	ErrRefreshMissing     = apperr.New(apperr.Unauthorized, "refresh token not found")
	ErrTokenRevoked       = apperr.New(apperr.Unauthorized, "token has been revoked")
	ErrClaimsMissing      = apperr.New(apperr.Unauthorized, "JWT claims was not passed through the context")
	ErrClaimsInvalid      = apperr.New(apperr.Unauthorized, "JWT claims was invalid")
	ErrAuthContextMissing = apperr.New(apperr.Unauthorized, "not authenticated")
	ErrWrongPassword      = apperr.Invalid("currentPassword", "current password is incorrect")
	ErrWeakPassword       = apperr.Invalid("newPassword", "new password must be at least 6 characters")
	ErrInvalidArgument    = apperr.New(apperr.Validation, "invalid argument")
)
