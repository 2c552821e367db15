package authtransport

import (
	"context"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/inmem"
)

// NewAuthenticater turns the claims left by kitjwt.NewParser into an
// authsvc.Auth on the context, rejecting revoked credentials.
func NewAuthenticater(c inmem.Client) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (response interface{}, err error) {
			claims, ok := ctx.Value(kitjwt.JWTClaimsContextKey).(*authsvc.Claims)
			if !ok {
				return nil, authsvc.ErrClaimsMissing
			}
			if claims.Id == "" || claims.AccountID == 0 || !claims.Role.Valid() {
				return nil, authsvc.ErrClaimsInvalid
			}

			revoked, err := c.IsRevoked(ctx, claims.Id)
			if err != nil {
				return nil, err
			}
			if revoked {
				return nil, authsvc.ErrTokenRevoked
			}

			ctx = authsvc.NewContext(ctx, authsvc.Auth{
				AccessUUID: claims.Id,
				AccountID:  claims.AccountID,
				Role:       claims.Role,
				ExpiresAt:  claims.ExpiresAt,
			})
			return next(ctx, request)
		}
	}
}

// Bearer wraps e with access credential parsing and the authenticater.
// Pair it with ServerBefore(kitjwt.HTTPToContext()) on the transport.
func Bearer(e endpoint.Endpoint, c inmem.Client) endpoint.Endpoint {
	e = NewAuthenticater(c)(e)
	return kitjwt.NewParser(accessKey, stdjwt.SigningMethodHS256, authsvc.ClaimsFactory)(e)
}

func accessKey(*stdjwt.Token) (interface{}, error) {
	return []byte(authsvc.AccessSecret), nil
}

// Classify turns bearer parsing failures from go-kit's jwt package into
// Unauthorized errors. Other errors are returned unchanged.
func Classify(err error) error {
	switch err {
	case kitjwt.ErrTokenContextMissing,
		kitjwt.ErrTokenInvalid,
		kitjwt.ErrTokenExpired,
		kitjwt.ErrTokenMalformed,
		kitjwt.ErrTokenNotActive,
		kitjwt.ErrUnexpectedSigningMethod:
		return apperr.Wrap(apperr.Unauthorized, err.Error(), err)
	}
	return err
}
