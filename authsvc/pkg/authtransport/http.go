package authtransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/inmem"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authservice"
)

const cookiePath = "/auth"

// NewHTTPHandler mounts the /auth routes on r.
func NewHTTPHandler(r *mux.Router, endpoints authendpoint.Set, denylist inmem.Client, logger log.Logger) *mux.Router {
	cookie := newRefreshCookie()

	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
	}
	bearerOptions := append(options, httptransport.ServerBefore(kitjwt.HTTPToContext()))

	loginHandler := httptransport.NewServer(
		endpoints.LoginEndpoint,
		decodeHTTPLoginRequest,
		cookie.encodeHTTPLoginResponse,
		options...,
	)

	refreshHandler := httptransport.NewServer(
		endpoints.RefreshEndpoint,
		cookie.decodeHTTPRefreshRequest,
		cookie.encodeHTTPRefreshResponse,
		options...,
	)

	logoutHandler := httptransport.NewServer(
		Bearer(endpoints.LogoutEndpoint, denylist),
		cookie.decodeHTTPLogoutRequest,
		cookie.encodeHTTPLogoutResponse,
		bearerOptions...,
	)

	profileHandler := httptransport.NewServer(
		Bearer(endpoints.ProfileEndpoint, denylist),
		decodeHTTPProfileRequest,
		encodeHTTPGenericResponse,
		bearerOptions...,
	)

	changePasswordHandler := httptransport.NewServer(
		Bearer(endpoints.ChangePasswordEndpoint, denylist),
		decodeHTTPChangePasswordRequest,
		encodeHTTPGenericResponse,
		bearerOptions...,
	)

	r.Methods("POST").Path("/auth/login").Handler(loginHandler)
	r.Methods("POST").Path("/auth/refresh").Handler(refreshHandler)
	r.Methods("POST").Path("/auth/logout").Handler(logoutHandler)
	r.Methods("GET").Path("/auth/me").Handler(profileHandler)
	r.Methods("PATCH").Path("/auth/me/password").Handler(changePasswordHandler)

	return r
}

// NewHTTPClient returns an authservice.Service backed by the server at
// instance. The refresh token it hands out is the opaque renewal cookie
// value, not the credential itself.
func NewHTTPClient(instance string, client *http.Client, logger log.Logger) (authservice.Service, error) {
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return nil, err
	}

	options := []httptransport.ClientOption{
		httptransport.SetClient(client),
		httptransport.ClientFinalizer(func(_ context.Context, err error) {
			if err != nil {
				logger.Log("transport", "http", "err", err)
			}
		}),
	}

	return authendpoint.Set{
		LoginEndpoint: httptransport.NewClient(
			"POST", copyURL(u, "/auth/login"), encodeHTTPLoginRequest, decodeHTTPLoginResponse, options...,
		).Endpoint(),
		RefreshEndpoint: httptransport.NewClient(
			"POST", copyURL(u, "/auth/refresh"), encodeHTTPRefreshRequest, decodeHTTPRefreshResponse, options...,
		).Endpoint(),
		LogoutEndpoint: httptransport.NewClient(
			"POST", copyURL(u, "/auth/logout"), encodeHTTPLogoutRequest, decodeHTTPLogoutResponse, options...,
		).Endpoint(),
		ChangePasswordEndpoint: httptransport.NewClient(
			"PATCH", copyURL(u, "/auth/me/password"), encodeHTTPGenericRequest, decodeHTTPChangePasswordResponse, options...,
		).Endpoint(),
		ProfileEndpoint: httptransport.NewClient(
			"GET", copyURL(u, "/auth/me"), encodeHTTPProfileRequest, decodeHTTPProfileResponse, options...,
		).Endpoint(),
	}, nil
}

func copyURL(base *url.URL, path string) *url.URL {
	next := *base
	next.Path = strings.TrimSuffix(next.Path, "/") + path
	return &next
}

func errorEncoder(_ context.Context, err error, w http.ResponseWriter) {
	err = Classify(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	code := err2code(err)
	w.WriteHeader(code)
	if code == http.StatusTooManyRequests {
		json.NewEncoder(w).Encode(apperr.Body{Error: "too many sign in attempts, try again shortly"})
		return
	}
	json.NewEncoder(w).Encode(apperr.NewBody(err, authsvc.IsDevelopment()))
}

func err2code(err error) int {
	if errors.Is(err, ratelimit.ErrLimited) {
		return http.StatusTooManyRequests
	}
	return apperr.StatusCode(err)
}

// refreshCookie moves the renewal credential in and out of an http-only
// cookie scoped to the /auth routes.
type refreshCookie struct {
	codec *securecookie.SecureCookie
}

func newRefreshCookie() refreshCookie {
	codec := securecookie.New([]byte(authsvc.CookieHashKey), []byte(authsvc.CookieBlockKey))
	codec.MaxAge(int(authservice.RefreshTokenExpiry() / time.Second))
	return refreshCookie{codec}
}

func (c refreshCookie) set(w http.ResponseWriter, token string, expires time.Time) error {
	encoded, err := c.codec.Encode(authsvc.RefreshCookieName, token)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authsvc.RefreshCookieName,
		Value:    encoded,
		Path:     cookiePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   authsvc.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c refreshCookie) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authsvc.RefreshCookieName,
		Value:    "",
		Path:     cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   authsvc.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

// read returns the renewal credential, or "" when the cookie is absent.
func (c refreshCookie) read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(authsvc.RefreshCookieName)
	if err == http.ErrNoCookie {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var token string
	if err := c.codec.Decode(authsvc.RefreshCookieName, cookie.Value, &token); err != nil {
		return "", authsvc.ErrRefreshInvalid
	}
	return token, nil
}

func decodeHTTPLoginRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req authendpoint.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "malformed request body", err)
	}
	return req, nil
}

func (c refreshCookie) encodeHTTPLoginResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	resp := response.(authendpoint.LoginResponse)
	if resp.Err == nil {
		if err := c.set(w, resp.Refresh, resp.RefreshExpires); err != nil {
			return err
		}
	}
	return encodeHTTPGenericResponse(ctx, w, resp)
}

func (c refreshCookie) decodeHTTPRefreshRequest(_ context.Context, r *http.Request) (interface{}, error) {
	token, err := c.read(r)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, authsvc.ErrRefreshMissing
	}
	return authendpoint.RefreshRequest{RefreshToken: token}, nil
}

func (c refreshCookie) encodeHTTPRefreshResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	resp := response.(authendpoint.RefreshResponse)
	if resp.Err == nil {
		if err := c.set(w, resp.Refresh, resp.RefreshExpires); err != nil {
			return err
		}
	}
	return encodeHTTPGenericResponse(ctx, w, resp)
}

// decodeHTTPLogoutRequest tolerates a missing or unreadable cookie; logout
// still revokes the access credential.
func (c refreshCookie) decodeHTTPLogoutRequest(_ context.Context, r *http.Request) (interface{}, error) {
	token, _ := c.read(r)
	return authendpoint.LogoutRequest{RefreshToken: token}, nil
}

func (c refreshCookie) encodeHTTPLogoutResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	c.clear(w)
	return encodeHTTPGenericResponse(ctx, w, response)
}

func decodeHTTPProfileRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return authendpoint.ProfileRequest{}, nil
}

func decodeHTTPChangePasswordRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req authendpoint.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "malformed request body", err)
	}
	return req, nil
}

// encodeHTTPGenericResponse is a transport/http.EncodeResponseFunc that encodes
// the response as JSON to the response writer. Primarily useful in a server.
func encodeHTTPGenericResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(response)
}

// encodeHTTPGenericRequest is a transport/http.EncodeRequestFunc that
// JSON-encodes any request to the request body. Primarily useful in a client.
func encodeHTTPGenericRequest(_ context.Context, r *http.Request, request interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(request); err != nil {
		return err
	}
	b := buf.Bytes()
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	r.ContentLength = int64(len(b))
	r.Body = ioutil.NopCloser(bytes.NewReader(b))
	r.GetBody = func() (io.ReadCloser, error) {
		return ioutil.NopCloser(bytes.NewReader(b)), nil
	}
	return nil
}

func encodeHTTPLoginRequest(ctx context.Context, r *http.Request, request interface{}) error {
	return encodeHTTPGenericRequest(ctx, r, request.(authendpoint.LoginRequest))
}

func encodeHTTPRefreshRequest(_ context.Context, r *http.Request, request interface{}) error {
	addCookie(r, request.(authendpoint.RefreshRequest).RefreshToken)
	return nil
}

func encodeHTTPLogoutRequest(_ context.Context, r *http.Request, request interface{}) error {
	addCookie(r, request.(authendpoint.LogoutRequest).RefreshToken)
	return nil
}

func encodeHTTPProfileRequest(_ context.Context, _ *http.Request, _ interface{}) error {
	return nil
}

func addCookie(r *http.Request, value string) {
	if value != "" {
		r.AddCookie(&http.Cookie{Name: authsvc.RefreshCookieName, Value: value})
	}
}

// renewalCookie returns the renewal cookie set on r, if any.
func renewalCookie(r *http.Response) (string, time.Time) {
	for _, c := range r.Cookies() {
		if c.Name == authsvc.RefreshCookieName && c.Value != "" {
			return c.Value, c.Expires
		}
	}
	return "", time.Time{}
}

// decodeHTTPResponse decodes a 2xx body into v. 4xx answers come back as
// failed, 5xx answers as err.
func decodeHTTPResponse(r *http.Response, v interface{}) (failed error, err error) {
	switch {
	case r.StatusCode >= 500:
		return nil, apperr.FromResponse(r)
	case r.StatusCode == http.StatusTooManyRequests:
		return nil, ratelimit.ErrLimited
	case r.StatusCode >= 300:
		return apperr.FromResponse(r), nil
	}
	return nil, json.NewDecoder(r.Body).Decode(v)
}

func decodeHTTPLoginResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp authendpoint.LoginResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	resp.Refresh, resp.RefreshExpires = renewalCookie(r)
	return resp, err
}

func decodeHTTPRefreshResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp authendpoint.RefreshResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	resp.Refresh, resp.RefreshExpires = renewalCookie(r)
	return resp, err
}

func decodeHTTPLogoutResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp authendpoint.LogoutResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPChangePasswordResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp authendpoint.ChangePasswordResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPProfileResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp authendpoint.ProfileResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}
