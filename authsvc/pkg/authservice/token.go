package authservice

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/usersvc"
	"github.com/twinj/uuid"
)

// Pair is a freshly issued access and renewal credential.
type Pair struct {
	AccessToken    string
	AccessUUID     string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshUUID    string
	RefreshExpires time.Time
}

type Tokenizer interface {
	Generate(a usersvc.Account) (Pair, error)
	// ParseRefresh verifies a renewal credential and returns its claims.
	ParseRefresh(token string) (*authsvc.Claims, error)
}

type tokenizer struct {
	now func() time.Time
}

func NewTokenizer(now func() time.Time) Tokenizer {
	if now == nil {
		now = time.Now
	}
	return &tokenizer{now: now}
}

var (
	uuidV4 = uuid.NewV4
	uuidV5 = uuid.NewV5
)

func (t *tokenizer) Generate(a usersvc.Account) (Pair, error) {
	now := t.now()
	p := Pair{
		AccessUUID:     uuidV4().String(),
		AccessExpires:  now.Add(AccessTokenExpiry()),
		RefreshExpires: now.Add(RefreshTokenExpiry()),
	}
	p.RefreshUUID = uuidV5(uuid.NameSpaceURL, p.AccessUUID).String()

	var err error
	p.AccessToken, err = sign(a, p.AccessUUID, now, p.AccessExpires, authsvc.AccessSecret)
	if err != nil {
		return Pair{}, err
	}
	p.RefreshToken, err = sign(a, p.RefreshUUID, now, p.RefreshExpires, authsvc.RefreshSecret)
	if err != nil {
		return Pair{}, err
	}
	return p, nil
}

func sign(a usersvc.Account, id string, issued, expires time.Time, secret string) (string, error) {
	claims := authsvc.Claims{
		AccountID: a.ID,
		Role:      a.Role,
		Epoch:     a.TokenEpoch,
		StandardClaims: jwt.StandardClaims{
			Id:        id,
			IssuedAt:  issued.Unix(),
			ExpiresAt: expires.Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (t *tokenizer) ParseRefresh(token string) (*authsvc.Claims, error) {
	claims := &authsvc.Claims{}
	parser := jwt.Parser{SkipClaimsValidation: true}
	_, err := parser.ParseWithClaims(token, claims, func(tk *jwt.Token) (interface{}, error) {
		if tk.Method != jwt.SigningMethodHS256 {
			return nil, authsvc.ErrRefreshInvalid
		}
		return []byte(authsvc.RefreshSecret), nil
	})
	if err != nil {
		return nil, authsvc.ErrRefreshInvalid
	}
	if !claims.VerifyExpiresAt(t.now().Unix(), true) || claims.Id == "" || claims.AccountID == 0 {
		return nil, authsvc.ErrRefreshInvalid
	}
	return claims, nil
}

func AccessTokenExpiry() time.Duration {
	return 15 * time.Minute
}

func RefreshTokenExpiry() time.Duration {
	return 7 * 24 * time.Hour
}
