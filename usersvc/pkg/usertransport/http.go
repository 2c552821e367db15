package usertransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/circuitbreaker"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/inmem"
	"github.com/ichigozero/taskdesk/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskdesk/usersvc/pkg/userendpoint"
	"github.com/ichigozero/taskdesk/usersvc/pkg/userservice"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

func NewHTTPHandler(r *mux.Router, endpoints userendpoint.Set, denylist inmem.Client, logger log.Logger) *mux.Router {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
		httptransport.ServerBefore(kitjwt.HTTPToContext()),
	}

	handler := func(e endpoint.Endpoint, dec httptransport.DecodeRequestFunc) http.Handler {
		return httptransport.NewServer(authtransport.Bearer(e, denylist), dec, encodeHTTPGenericResponse, options...)
	}

	r.Methods("GET").Path("/users").Handler(handler(endpoints.AccountsEndpoint, decodeHTTPAccountsRequest))
	r.Methods("POST").Path("/users").Handler(handler(endpoints.CreateAccountEndpoint, decodeHTTPCreateAccountRequest))
	r.Methods("GET").Path("/users/{id:[0-9]+}").Handler(handler(endpoints.AccountEndpoint, decodeHTTPAccountRequest))
	r.Methods("PUT").Path("/users/{id:[0-9]+}").Handler(handler(endpoints.UpdateAccountEndpoint, decodeHTTPUpdateAccountRequest))
	r.Methods("DELETE").Path("/users/{id:[0-9]+}").Handler(handler(endpoints.DeleteAccountEndpoint, decodeHTTPDeleteAccountRequest))
	r.Methods("PATCH").Path("/users/{id:[0-9]+}/toggle").Handler(handler(endpoints.ToggleActiveEndpoint, decodeHTTPToggleActiveRequest))

	return r
}

// NewHTTPClient returns a userservice.Service backed by the server at
// instance. Authentication is left to client's transport.
func NewHTTPClient(instance string, client *http.Client, logger log.Logger) (userservice.Service, error) {
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return nil, err
	}

	options := []httptransport.ClientOption{
		httptransport.SetClient(client),
	}

	makeEndpoint := func(name, method string, enc httptransport.EncodeRequestFunc, dec httptransport.DecodeResponseFunc) endpoint.Endpoint {
		next := *u
		var e endpoint.Endpoint
		{
			e = httptransport.NewClient(method, &next, enc, dec, options...).Endpoint()
			e = ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Every(time.Second), 100))(e)
			e = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:    name,
				Timeout: 30 * time.Second,
				OnStateChange: func(name string, from, to gobreaker.State) {
					logger.Log("breaker", name, "from", from, "to", to)
				},
			}))(e)
		}
		return e
	}

	return userendpoint.Set{
		AccountsEndpoint:      makeEndpoint("Accounts", "GET", encodeHTTPAccountsRequest, decodeHTTPAccountsResponse),
		AccountEndpoint:       makeEndpoint("Account", "GET", encodeHTTPAccountRequest, decodeHTTPAccountResponse),
		CreateAccountEndpoint: makeEndpoint("CreateAccount", "POST", encodeHTTPCreateAccountRequest, decodeHTTPCreateAccountResponse),
		UpdateAccountEndpoint: makeEndpoint("UpdateAccount", "PUT", encodeHTTPUpdateAccountRequest, decodeHTTPAccountResponse),
		ToggleActiveEndpoint:  makeEndpoint("ToggleActive", "PATCH", encodeHTTPToggleActiveRequest, decodeHTTPAccountResponse),
		DeleteAccountEndpoint: makeEndpoint("DeleteAccount", "DELETE", encodeHTTPDeleteAccountRequest, decodeHTTPDeleteAccountResponse),
	}, nil
}

func errorEncoder(_ context.Context, err error, w http.ResponseWriter) {
	err = authtransport.Classify(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(apperr.StatusCode(err))
	json.NewEncoder(w).Encode(apperr.NewBody(err, authsvc.IsDevelopment()))
}

var ErrBadRouting = errors.New("inconsistent mapping between route and handler (programmer error)")

func accountID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, ErrBadRouting
	}
	return id, nil
}

func decodeJSON(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}
	var e *apperr.Error
	if errors.As(err, &e) {
		return e
	}
	return apperr.Wrap(apperr.Validation, "malformed request body", err)
}

func decodeHTTPAccountsRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return userendpoint.AccountsRequest{}, nil
}

func decodeHTTPAccountRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := accountID(r)
	if err != nil {
		return nil, err
	}
	return userendpoint.AccountRequest{ID: id}, nil
}

func decodeHTTPCreateAccountRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req userendpoint.CreateAccountRequest
	if err := decodeJSON(r, &req.Input); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeHTTPUpdateAccountRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := accountID(r)
	if err != nil {
		return nil, err
	}
	req := userendpoint.UpdateAccountRequest{ID: id}
	if err := decodeJSON(r, &req.Patch); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeHTTPToggleActiveRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := accountID(r)
	if err != nil {
		return nil, err
	}
	return userendpoint.ToggleActiveRequest{ID: id}, nil
}

func decodeHTTPDeleteAccountRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := accountID(r)
	if err != nil {
		return nil, err
	}
	return userendpoint.DeleteAccountRequest{ID: id}, nil
}

func encodeHTTPGenericResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if sc, ok := response.(httptransport.StatusCoder); ok {
		w.WriteHeader(sc.StatusCode())
	}
	return json.NewEncoder(w).Encode(response)
}

func setPath(r *http.Request, format string, args ...interface{}) {
	r.URL.Path = strings.TrimSuffix(r.URL.Path, "/") + fmt.Sprintf(format, args...)
}

func encodeJSON(r *http.Request, v interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
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

func encodeHTTPAccountsRequest(_ context.Context, r *http.Request, _ interface{}) error {
	setPath(r, "/users")
	return nil
}

func encodeHTTPAccountRequest(_ context.Context, r *http.Request, request interface{}) error {
	setPath(r, "/users/%d", request.(userendpoint.AccountRequest).ID)
	return nil
}

func encodeHTTPCreateAccountRequest(_ context.Context, r *http.Request, request interface{}) error {
	setPath(r, "/users")
	return encodeJSON(r, request.(userendpoint.CreateAccountRequest).Input)
}

func encodeHTTPUpdateAccountRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(userendpoint.UpdateAccountRequest)
	setPath(r, "/users/%d", req.ID)
	return encodeJSON(r, req.Patch)
}

func encodeHTTPToggleActiveRequest(_ context.Context, r *http.Request, request interface{}) error {
	setPath(r, "/users/%d/toggle", request.(userendpoint.ToggleActiveRequest).ID)
	return nil
}

func encodeHTTPDeleteAccountRequest(_ context.Context, r *http.Request, request interface{}) error {
	setPath(r, "/users/%d", request.(userendpoint.DeleteAccountRequest).ID)
	return nil
}

// decodeHTTPResponse mirrors the task client: 4xx answers are returned as
// failed, 5xx answers as err.
func decodeHTTPResponse(r *http.Response, v interface{}) (failed error, err error) {
	switch {
	case r.StatusCode >= 500:
		return nil, apperr.FromResponse(r)
	case r.StatusCode >= 300:
		return apperr.FromResponse(r), nil
	}
	return nil, json.NewDecoder(r.Body).Decode(v)
}

func decodeHTTPAccountsResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp userendpoint.AccountsResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPAccountResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp userendpoint.AccountResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPCreateAccountResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp userendpoint.CreateAccountResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPDeleteAccountResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp userendpoint.DeleteAccountResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}
