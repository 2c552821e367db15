// Package client signs in against the auth routes and keeps the renewal
// cookie for a session.Coordinator.
package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authservice"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskdesk/authsvc/session"
)

var (
	_ session.Renewer       = (*Client)(nil)
	_ session.RequestEditor = (*Client)(nil)
)

type Client struct {
	svc authservice.Service

	mtx     sync.Mutex
	refresh string
}

// New returns a client for the server at instance. httpClient must not
// route through a session.Coordinator, since the coordinator renews
// through this client.
func New(instance string, httpClient *http.Client, logger log.Logger) (*Client, error) {
	svc, err := authtransport.NewHTTPClient(instance, httpClient, logger)
	if err != nil {
		return nil, err
	}
	return &Client{svc: svc}, nil
}

// Login signs in and keeps the renewal cookie.
func (c *Client) Login(ctx context.Context, email, password string) (authservice.Session, error) {
	s, err := c.svc.Login(ctx, email, password)
	if err != nil {
		return authservice.Session{}, err
	}
	c.SetRefreshToken(s.Tokens.RefreshToken)
	return s, nil
}

// Renew exchanges the renewal cookie for a new access credential and keeps
// the rotated cookie.
func (c *Client) Renew(ctx context.Context) (string, error) {
	s, err := c.svc.Refresh(ctx, c.RefreshToken())
	if err != nil {
		return "", err
	}
	if s.Tokens.RefreshToken != "" {
		c.SetRefreshToken(s.Tokens.RefreshToken)
	}
	return s.Tokens.AccessToken, nil
}

func (c *Client) Discard(context.Context) error {
	c.SetRefreshToken("")
	return nil
}

// EditRequest swaps a renewal cookie on r for the one currently held. A call
// retried after a renewal would otherwise replay the rotated-out cookie.
func (c *Client) EditRequest(r *http.Request) {
	old, err := r.Cookie(authsvc.RefreshCookieName)
	current := c.RefreshToken()
	if err != nil || current == "" || old.Value == current {
		return
	}

	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, cookie := range cookies {
		if cookie.Name == authsvc.RefreshCookieName {
			cookie.Value = current
		}
		r.AddCookie(cookie)
	}
}

// Logout revokes the credentials held by the coordinator-backed service
// svc and forgets the renewal cookie.
func (c *Client) Logout(ctx context.Context, svc authservice.Service) error {
	_, err := svc.Logout(ctx, authsvc.Auth{}, c.RefreshToken())
	c.SetRefreshToken("")
	return err
}

func (c *Client) RefreshToken() string {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.refresh
}

func (c *Client) SetRefreshToken(token string) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.refresh = token
}
