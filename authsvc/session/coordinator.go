// Package session keeps a client signed in. Coordinator is an
// http.RoundTripper that attaches the access credential to every call and,
// when the server answers 401, renews it with at most one exchange in
// flight no matter how many calls failed at once.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned to every call waiting on a renewal that
// failed. The client is signed out afterwards.
var ErrSessionExpired = errors.New("session expired, sign in again")

// Renewer exchanges the renewal credential for a new access credential.
type Renewer interface {
	Renew(ctx context.Context) (string, error)
	// Discard forgets the renewal credential.
	Discard(ctx context.Context) error
}

// RequestEditor is implemented by renewers whose renewal credential also
// rides on ordinary calls. EditRequest runs before every send, retries
// included, so a retried call carries the credential issued by the renewal.
type RequestEditor interface {
	EditRequest(r *http.Request)
}

const DefaultRenewTimeout = 10 * time.Second

type Coordinator struct {
	next    http.RoundTripper
	renewer Renewer
	store   Store
	timeout time.Duration
	logger  log.Logger
	group   singleflight.Group

	mtx       sync.Mutex
	signedOut bool
	onSignOut func(error)
	onRenew   func(string)
}

type Option func(*Coordinator)

func WithStore(s Store) Option { return func(c *Coordinator) { c.store = s } }

func WithRenewTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

func WithLogger(logger log.Logger) Option { return func(c *Coordinator) { c.logger = logger } }

// OnSignOut registers f to run once each time the coordinator signs out.
func OnSignOut(f func(cause error)) Option { return func(c *Coordinator) { c.onSignOut = f } }

// OnRenew registers f to run with every newly issued access credential.
func OnRenew(f func(token string)) Option { return func(c *Coordinator) { c.onRenew = f } }

func NewCoordinator(next http.RoundTripper, r Renewer, options ...Option) *Coordinator {
	if next == nil {
		next = http.DefaultTransport
	}
	c := &Coordinator{
		next:    next,
		renewer: r,
		store:   NewMemoryStore(""),
		timeout: DefaultRenewTimeout,
		logger:  log.NewNopLogger(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// SignIn stores token and leaves the signed out state.
func (c *Coordinator) SignIn(token string) {
	c.store.SetAccess(token)
	c.mtx.Lock()
	c.signedOut = false
	c.mtx.Unlock()
}

func (c *Coordinator) SignedOut() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.signedOut
}

func (c *Coordinator) Access() string { return c.store.Access() }

func (c *Coordinator) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	if err := bufferBody(r); err != nil {
		return nil, err
	}

	token := c.store.Access()
	resp, err := c.send(r, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || c.SignedOut() {
		return resp, err
	}

	fresh, err := c.renew(token)
	drain(resp)
	if err != nil {
		return nil, err
	}

	retry, err := rewind(r)
	if err != nil {
		return nil, err
	}
	return c.send(retry, fresh)
}

func (c *Coordinator) send(r *http.Request, token string) (*http.Response, error) {
	req := r.Clone(r.Context())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if e, ok := c.renewer.(RequestEditor); ok {
		e.EditRequest(req)
	}
	return c.next.RoundTrip(req)
}

// renew returns a credential newer than stale, running one exchange for all
// concurrent callers. A caller whose credential was already replaced gets
// the current one without another exchange.
func (c *Coordinator) renew(stale string) (string, error) {
	if current := c.store.Access(); current != "" && current != stale {
		return current, nil
	}

	v, err, shared := c.group.Do("renew", func() (interface{}, error) {
		if current := c.store.Access(); current != "" && current != stale {
			return current, nil
		}
		if c.SignedOut() {
			return nil, ErrSessionExpired
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		token, err := c.renewer.Renew(ctx)
		if err != nil {
			c.signOut(err)
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}

		c.store.SetAccess(token)
		if c.onRenew != nil {
			c.onRenew(token)
		}
		level.Debug(c.logger).Log("msg", "access credential renewed")
		return token, nil
	})
	if err != nil {
		return "", err
	}
	level.Debug(c.logger).Log("msg", "renewal settled", "shared", shared)
	return v.(string), nil
}

func (c *Coordinator) signOut(cause error) {
	c.mtx.Lock()
	if c.signedOut {
		c.mtx.Unlock()
		return
	}
	c.signedOut = true
	c.mtx.Unlock()

	c.store.SetAccess("")

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.renewer.Discard(ctx); err != nil {
		level.Warn(c.logger).Log("msg", "discard renewal credential", "err", err)
	}

	level.Info(c.logger).Log("msg", "signed out", "cause", cause)
	if c.onSignOut != nil {
		c.onSignOut(cause)
	}
}

// bufferBody makes a body without GetBody replayable.
func bufferBody(r *http.Request) error {
	if r.Body == nil || r.Body == http.NoBody || r.GetBody != nil {
		return nil
	}
	b, err := ioutil.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		return err
	}
	r.Body = ioutil.NopCloser(bytes.NewReader(b))
	r.GetBody = func() (io.ReadCloser, error) {
		return ioutil.NopCloser(bytes.NewReader(b)), nil
	}
	return nil
}

func rewind(r *http.Request) (*http.Request, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return r, nil
	}
	body, err := r.GetBody()
	if err != nil {
		return nil, err
	}
	retry := r.Clone(r.Context())
	retry.Body = body
	return retry, nil
}

func drain(resp *http.Response) {
	io.Copy(ioutil.Discard, resp.Body)
	resp.Body.Close()
}
