package tasktransport

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
	"github.com/ichigozero/taskdesk/tasksvc"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/taskservice"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// NewHTTPHandler mounts the task and dashboard routes on r. Every route
// requires a bearer access credential.
func NewHTTPHandler(r *mux.Router, endpoints taskendpoint.Set, denylist inmem.Client, logger log.Logger) *mux.Router {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
		httptransport.ServerBefore(kitjwt.HTTPToContext()),
	}

	handler := func(e endpoint.Endpoint, dec httptransport.DecodeRequestFunc) http.Handler {
		return httptransport.NewServer(
			authtransport.Bearer(e, denylist),
			dec,
			encodeHTTPGenericResponse,
			options...,
		)
	}

	r.Methods("GET").Path("/tasks").Handler(handler(endpoints.TasksEndpoint, decodeHTTPTasksRequest))
	r.Methods("POST").Path("/tasks").Handler(handler(endpoints.CreateTaskEndpoint, decodeHTTPCreateTaskRequest))
	r.Methods("GET").Path("/tasks/my").Handler(handler(endpoints.MyTasksEndpoint, decodeHTTPMyTasksRequest))
	r.Methods("GET").Path("/tasks/user/{user_id:[0-9]+}").Handler(handler(endpoints.TasksByOwnerEndpoint, decodeHTTPTasksByOwnerRequest))
	r.Methods("GET").Path("/tasks/{task_id:[0-9]+}").Handler(handler(endpoints.TaskEndpoint, decodeHTTPTaskRequest))
	r.Methods("PUT").Path("/tasks/{task_id:[0-9]+}").Handler(handler(endpoints.UpdateTaskEndpoint, decodeHTTPUpdateTaskRequest))
	r.Methods("DELETE").Path("/tasks/{task_id:[0-9]+}").Handler(handler(endpoints.DeleteTaskEndpoint, decodeHTTPDeleteTaskRequest))
	r.Methods("PATCH").Path("/tasks/{task_id:[0-9]+}/status").Handler(handler(endpoints.UpdateStatusEndpoint, decodeHTTPUpdateStatusRequest))
	r.Methods("GET").Path("/tasks/{task_id:[0-9]+}/comments").Handler(handler(endpoints.CommentsEndpoint, decodeHTTPCommentsRequest))
	r.Methods("POST").Path("/tasks/{task_id:[0-9]+}/comments").Handler(handler(endpoints.AddCommentEndpoint, decodeHTTPAddCommentRequest))
	r.Methods("DELETE").Path("/tasks/{task_id:[0-9]+}/comments/{comment_id:[0-9]+}").Handler(handler(endpoints.DeleteCommentEndpoint, decodeHTTPDeleteCommentRequest))
	r.Methods("GET").Path("/dashboard/stats").Handler(handler(endpoints.StatsEndpoint, decodeHTTPStatsRequest))
	r.Methods("GET").Path("/dashboard/overview").Handler(handler(endpoints.OverviewEndpoint, decodeHTTPOverviewRequest))

	return r
}

// NewHTTPClient returns a taskservice.Service backed by the HTTP server at
// instance. client carries the credential; pass one whose transport is a
// session.Coordinator.
func NewHTTPClient(instance string, client *http.Client, logger log.Logger) (taskservice.Service, error) {
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

	// Limits are per endpoint. Failing calls trip the breaker; 4xx answers
	// are decoded into the response and do not count as failures.
	limiter := func() endpoint.Middleware {
		return ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Every(time.Second), 100))
	}
	breaker := func(name string) endpoint.Middleware {
		return circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Log("breaker", name, "from", from, "to", to)
			},
		}))
	}
	makeEndpoint := func(name, method string, enc httptransport.EncodeRequestFunc, dec httptransport.DecodeResponseFunc) endpoint.Endpoint {
		var e endpoint.Endpoint
		{
			e = httptransport.NewClient(method, copyURL(u), enc, dec, options...).Endpoint()
			e = limiter()(e)
			e = breaker(name)(e)
		}
		return e
	}

	return taskendpoint.Set{
		CreateTaskEndpoint:    makeEndpoint("CreateTask", "POST", encodeHTTPCreateTaskRequest, decodeHTTPCreateTaskResponse),
		TasksEndpoint:         makeEndpoint("Tasks", "GET", encodeHTTPTasksRequest, decodeHTTPTasksResponse),
		MyTasksEndpoint:       makeEndpoint("MyTasks", "GET", encodeHTTPMyTasksRequest, decodeHTTPTaskListResponse),
		TasksByOwnerEndpoint:  makeEndpoint("TasksByOwner", "GET", encodeHTTPTasksByOwnerRequest, decodeHTTPTaskListResponse),
		TaskEndpoint:          makeEndpoint("Task", "GET", encodeHTTPTaskRequest, decodeHTTPTaskResponse),
		UpdateTaskEndpoint:    makeEndpoint("UpdateTask", "PUT", encodeHTTPUpdateTaskRequest, decodeHTTPTaskResponse),
		UpdateStatusEndpoint:  makeEndpoint("UpdateStatus", "PATCH", encodeHTTPUpdateStatusRequest, decodeHTTPTaskResponse),
		DeleteTaskEndpoint:    makeEndpoint("DeleteTask", "DELETE", encodeHTTPDeleteTaskRequest, decodeHTTPDeleteResponse),
		CommentsEndpoint:      makeEndpoint("Comments", "GET", encodeHTTPCommentsRequest, decodeHTTPCommentsResponse),
		AddCommentEndpoint:    makeEndpoint("AddComment", "POST", encodeHTTPAddCommentRequest, decodeHTTPAddCommentResponse),
		DeleteCommentEndpoint: makeEndpoint("DeleteComment", "DELETE", encodeHTTPDeleteCommentRequest, decodeHTTPDeleteResponse),
		StatsEndpoint:         makeEndpoint("Stats", "GET", encodeHTTPStatsRequest, decodeHTTPStatsResponse),
		OverviewEndpoint:      makeEndpoint("Overview", "GET", encodeHTTPOverviewRequest, decodeHTTPOverviewResponse),
	}, nil
}

func copyURL(base *url.URL) *url.URL {
	next := *base
	return &next
}

func errorEncoder(_ context.Context, err error, w http.ResponseWriter) {
	err = authtransport.Classify(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(apperr.StatusCode(err))
	json.NewEncoder(w).Encode(apperr.NewBody(err, authsvc.IsDevelopment()))
}

// ErrBadRouting is returned when an expected path variable is missing.
// It always indicates programmer error.
var ErrBadRouting = errors.New("inconsistent mapping between route and handler (programmer error)")

func pathID(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, ErrBadRouting
	}
	return id, nil
}

// decodeJSON keeps classified errors raised by enum decoding and reports
// anything else as a malformed body.
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

func decodeHTTPCreateTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req taskendpoint.CreateTaskRequest
	if err := decodeJSON(r, &req.Input); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeHTTPTasksRequest(_ context.Context, r *http.Request) (interface{}, error) {
	f, err := filterFromQuery(r.URL.Query())
	if err != nil {
		return nil, err
	}
	return taskendpoint.TasksRequest{Filter: f}, nil
}

func filterFromQuery(q url.Values) (tasksvc.Filter, error) {
	f := tasksvc.Filter{
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}

	for _, v := range splitList(q.Get("status")) {
		s := tasksvc.Status(v)
		if !s.Valid() {
			return f, apperr.Invalid("status", fmt.Sprintf("unknown status %q", v))
		}
		f.Statuses = append(f.Statuses, s)
	}
	for _, v := range splitList(q.Get("priority")) {
		p := tasksvc.Priority(v)
		if !p.Valid() {
			return f, apperr.Invalid("priority", fmt.Sprintf("unknown priority %q", v))
		}
		f.Priorities = append(f.Priorities, p)
	}

	if v := q.Get("ownerId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, apperr.Invalid("ownerId", "ownerId must be a number")
		}
		f.OwnerID = id
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"dueBefore", &f.DueBefore}, {"dueAfter", &f.DueAfter}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Invalid(p.name, p.name+" must be an RFC 3339 timestamp")
		}
		*p.dst = &t
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &f.Page}, {"limit", &f.Limit}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, apperr.Invalid(p.name, p.name+" must be a number")
		}
		*p.dst = n
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, strings.ToUpper(v))
		}
	}
	return out
}

func decodeHTTPMyTasksRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return taskendpoint.MyTasksRequest{}, nil
}

func decodeHTTPTasksByOwnerRequest(_ context.Context, r *http.Request) (interface{}, error) {
	ownerID, err := pathID(r, "user_id")
	if err != nil {
		return nil, err
	}
	return taskendpoint.TasksByOwnerRequest{OwnerID: ownerID}, nil
}

func decodeHTTPTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		return nil, err
	}
	return taskendpoint.TaskRequest{TaskID: taskID}, nil
}

func decodeHTTPUpdateTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		return nil, err
	}

	req := taskendpoint.UpdateTaskRequest{TaskID: taskID}
	if err := decodeJSON(r, &req.Patch); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeHTTPUpdateStatusRequest(_ context.Context, r *http.Request) (interface{}, error) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		return nil, err
	}

	var req taskendpoint.UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Status == "" {
		return nil, apperr.Invalid("status", "status is required")
	}
	req.TaskID = taskID
	return req, nil
}

func decodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		return nil, err
	}
	return taskendpoint.DeleteTaskRequest{TaskID: taskID}, nil
}

func decodeHTTPCommentsRequest(_ context.Context, r *http.Request) (interface{}, error) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		return nil, err
	}
	return taskendpoint.CommentsRequest{TaskID: taskID}, nil
}

func decodeHTTPAddCommentRequest(_ context.Context, r *http.Request) (interface{}, error) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		return nil, err
	}

	var req taskendpoint.AddCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	req.TaskID = taskID
	return req, nil
}

func decodeHTTPDeleteCommentRequest(_ context.Context, r *http.Request) (interface{}, error) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		return nil, err
	}
	commentID, err := pathID(r, "comment_id")
	if err != nil {
		return nil, err
	}
	return taskendpoint.DeleteCommentRequest{TaskID: taskID, CommentID: commentID}, nil
}

func decodeHTTPStatsRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return taskendpoint.StatsRequest{}, nil
}

func decodeHTTPOverviewRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return taskendpoint.OverviewRequest{}, nil
}

// encodeHTTPGenericResponse is a transport/http.EncodeResponseFunc that encodes
// the response as JSON to the response writer. Primarily useful in a server.
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

// encodeJSON sets the body and GetBody so the request can be replayed after
// a credential renewal.
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

func encodeHTTPCreateTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.CreateTaskRequest)
	setPath(r, "/tasks")
	return encodeJSON(r, req.Input)
}

func encodeHTTPTasksRequest(_ context.Context, r *http.Request, request interface{}) error {
	f := request.(taskendpoint.TasksRequest).Filter
	setPath(r, "/tasks")

	q := url.Values{}
	if len(f.Statuses) > 0 {
		s := make([]string, len(f.Statuses))
		for i, v := range f.Statuses {
			s[i] = string(v)
		}
		q.Set("status", strings.Join(s, ","))
	}
	if len(f.Priorities) > 0 {
		p := make([]string, len(f.Priorities))
		for i, v := range f.Priorities {
			p[i] = string(v)
		}
		q.Set("priority", strings.Join(p, ","))
	}
	if f.OwnerID != 0 {
		q.Set("ownerId", strconv.FormatUint(f.OwnerID, 10))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.DueBefore != nil {
		q.Set("dueBefore", f.DueBefore.Format(time.RFC3339))
	}
	if f.DueAfter != nil {
		q.Set("dueAfter", f.DueAfter.Format(time.RFC3339))
	}
	if f.SortBy != "" {
		q.Set("sortBy", f.SortBy)
	}
	if f.SortOrder != "" {
		q.Set("sortOrder", f.SortOrder)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	r.URL.RawQuery = q.Encode()
	return nil
}

func encodeHTTPMyTasksRequest(_ context.Context, r *http.Request, _ interface{}) error {
	setPath(r, "/tasks/my")
	return nil
}

func encodeHTTPTasksByOwnerRequest(_ context.Context, r *http.Request, request interface{}) error {
	setPath(r, "/tasks/user/%d", request.(taskendpoint.TasksByOwnerRequest).OwnerID)
	return nil
}

func encodeHTTPTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	setPath(r, "/tasks/%d", request.(taskendpoint.TaskRequest).TaskID)
	return nil
}

func encodeHTTPUpdateTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.UpdateTaskRequest)
	setPath(r, "/tasks/%d", req.TaskID)
	return encodeJSON(r, req.Patch)
}

func encodeHTTPUpdateStatusRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.UpdateStatusRequest)
	setPath(r, "/tasks/%d/status", req.TaskID)
	return encodeJSON(r, req)
}

func encodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	setPath(r, "/tasks/%d", request.(taskendpoint.DeleteTaskRequest).TaskID)
	return nil
}

func encodeHTTPCommentsRequest(_ context.Context, r *http.Request, request interface{}) error {
	setPath(r, "/tasks/%d/comments", request.(taskendpoint.CommentsRequest).TaskID)
	return nil
}

func encodeHTTPAddCommentRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.AddCommentRequest)
	setPath(r, "/tasks/%d/comments", req.TaskID)
	return encodeJSON(r, req)
}

func encodeHTTPDeleteCommentRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.DeleteCommentRequest)
	setPath(r, "/tasks/%d/comments/%d", req.TaskID, req.CommentID)
	return nil
}

func encodeHTTPStatsRequest(_ context.Context, r *http.Request, _ interface{}) error {
	setPath(r, "/dashboard/stats")
	return nil
}

func encodeHTTPOverviewRequest(_ context.Context, r *http.Request, _ interface{}) error {
	setPath(r, "/dashboard/overview")
	return nil
}

// decodeHTTPResponse decodes a 2xx body into v. 4xx answers come back as
// failed so they reach the caller through the response; 5xx answers are
// returned as err.
func decodeHTTPResponse(r *http.Response, v interface{}) (failed error, err error) {
	switch {
	case r.StatusCode >= 500:
		return nil, apperr.FromResponse(r)
	case r.StatusCode >= 300:
		return apperr.FromResponse(r), nil
	}
	return nil, json.NewDecoder(r.Body).Decode(v)
}

func decodeHTTPCreateTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.CreateTaskResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPTasksResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.TasksResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPTaskListResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.TaskListResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.TaskResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPDeleteResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.DeleteResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPCommentsResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.CommentsResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPAddCommentResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.AddCommentResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPStatsResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.StatsResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}

func decodeHTTPOverviewResponse(_ context.Context, r *http.Response) (interface{}, error) {
	var resp taskendpoint.OverviewResponse
	failed, err := decodeHTTPResponse(r, &resp)
	resp.Err = failed
	return resp, err
}
