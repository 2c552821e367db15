package tasktransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	stdjwt "github.com/dgrijalva/jwt-go"
	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/inmem"
	"github.com/ichigozero/taskdesk/authsvc/policy"
	"github.com/ichigozero/taskdesk/tasksvc"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/taskservice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	taskservice.Service
	seen   authsvc.Auth
	filter tasksvc.Filter
	status tasksvc.Status
	next   *string
}

func (s *stubService) Tasks(_ context.Context, a authsvc.Auth, f tasksvc.Filter) (tasksvc.TaskPage, error) {
	s.seen, s.filter = a, f
	return tasksvc.TaskPage{
		Tasks:      []tasksvc.Task{{ID: 1, Title: "Ship it", Status: tasksvc.StatusPending, Priority: tasksvc.PriorityMedium}},
		Pagination: tasksvc.Pagination{Page: 1, Limit: 20, Total: 1, TotalPages: 1},
	}, nil
}

func (s *stubService) UpdateStatus(_ context.Context, a authsvc.Auth, taskID uint64, status tasksvc.Status, nextStep *string) (tasksvc.Task, error) {
	s.seen, s.status, s.next = a, status, nextStep
	if nextStep == nil && status.Open() {
		return tasksvc.Task{}, tasksvc.ErrNextStepRequired
	}
	return tasksvc.Task{ID: taskID, Status: status, Priority: tasksvc.PriorityMedium, NextStep: nextStep}, nil
}

var shipped = func() tasksvc.Task {
	due := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	done := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return tasksvc.Task{
		ID:           5,
		Title:        "Ship it",
		Description:  "Cut the release branch",
		Status:       tasksvc.StatusCompleted,
		Priority:     tasksvc.PriorityHigh,
		DueDate:      &due,
		CompletedAt:  &done,
		OwnerID:      7,
		CreatedByID:  1,
		CreatedAt:    created,
		UpdatedAt:    done,
		CommentCount: 1,
		Comments: []tasksvc.Comment{
			{ID: 11, Content: "tagged v1.2.0", TaskID: 5, AuthorID: 7, CreatedAt: done},
		},
	}
}()

func (s *stubService) Task(_ context.Context, a authsvc.Auth, taskID uint64) (tasksvc.Task, error) {
	s.seen = a
	if taskID != shipped.ID {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	return shipped, nil
}

func (s *stubService) CreateTask(_ context.Context, a authsvc.Auth, in tasksvc.TaskInput) (tasksvc.Task, error) {
	s.seen = a
	return tasksvc.Task{ID: 8, Title: in.Title, Status: tasksvc.StatusPending, Priority: tasksvc.PriorityMedium, NextStep: in.NextStep, OwnerID: a.AccountID}, nil
}

func (s *stubService) AddComment(_ context.Context, a authsvc.Auth, taskID uint64, content string) (tasksvc.Comment, error) {
	s.seen = a
	return tasksvc.Comment{ID: 12, Content: content, TaskID: taskID, AuthorID: a.AccountID}, nil
}

func (s *stubService) DeleteTask(_ context.Context, a authsvc.Auth, taskID uint64) (bool, error) {
	s.seen = a
	return false, apperr.New(apperr.Forbidden, "not allowed to delete this task")
}

func (s *stubService) Stats(context.Context, authsvc.Auth) (tasksvc.Stats, error) {
	return tasksvc.Stats{}, errTest
}

var errTest = errors.New("pq: connection refused")

func accessToken(t *testing.T, id string, accountID uint64, role policy.Role, exp time.Time) string {
	t.Helper()
	claims := authsvc.Claims{
		AccountID: accountID,
		Role:      role,
		StandardClaims: stdjwt.StandardClaims{
			Id:        id,
			ExpiresAt: exp.Unix(),
		},
	}
	token, err := stdjwt.NewWithClaims(stdjwt.SigningMethodHS256, claims).SignedString([]byte(authsvc.AccessSecret))
	require.NoError(t, err)
	return token
}

type bearer struct {
	token string
	next  http.RoundTripper
}

func (b bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(r)
}

func newServer(t *testing.T, svc taskservice.Service, denylist inmem.Client) *httptest.Server {
	t.Helper()
	logger := log.NewNopLogger()
	h := NewHTTPHandler(mux.NewRouter(), taskendpoint.New(svc, logger), denylist, logger)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	svc := &stubService{}
	srv := newServer(t, svc, inmem.NewMemoryClient())

	token := accessToken(t, "access-1", 7, policy.RoleEmployee, time.Now().Add(time.Minute))
	client, err := NewHTTPClient(srv.URL, &http.Client{Transport: bearer{token, http.DefaultTransport}}, log.NewNopLogger())
	require.NoError(t, err)

	ctx := context.Background()
	page, err := client.Tasks(ctx, authsvc.Auth{}, tasksvc.Filter{
		Statuses: []tasksvc.Status{tasksvc.StatusPending, tasksvc.StatusInProgress},
		Search:   "ship",
		Page:     2,
	})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, "Ship it", page.Tasks[0].Title)
	assert.Equal(t, int64(1), page.Pagination.Total)

	assert.Equal(t, uint64(7), svc.seen.AccountID)
	assert.Equal(t, "access-1", svc.seen.AccessUUID)
	assert.Equal(t, []tasksvc.Status{tasksvc.StatusPending, tasksvc.StatusInProgress}, svc.filter.Statuses)
	assert.Equal(t, "ship", svc.filter.Search)
	assert.Equal(t, 2, svc.filter.Page)

	_, err = client.UpdateStatus(ctx, authsvc.Auth{}, 3, tasksvc.StatusInProgress, nil)
	assert.True(t, apperr.Is(err, apperr.Validation))

	next := "call the vendor"
	task, err := client.UpdateStatus(ctx, authsvc.Auth{}, 3, tasksvc.StatusInProgress, &next)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), task.ID)
	assert.Equal(t, next, *svc.next)

	_, err = client.DeleteTask(ctx, authsvc.Auth{}, 3)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	assert.Equal(t, "not allowed to delete this task", err.Error())
}

func TestClientDecodesFullTask(t *testing.T) {
	svc := &stubService{}
	srv := newServer(t, svc, inmem.NewMemoryClient())

	token := accessToken(t, "access-1", 7, policy.RoleEmployee, time.Now().Add(time.Minute))
	client, err := NewHTTPClient(srv.URL, &http.Client{Transport: bearer{token, http.DefaultTransport}}, log.NewNopLogger())
	require.NoError(t, err)

	task, err := client.Task(context.Background(), authsvc.Auth{}, shipped.ID)
	require.NoError(t, err)
	assert.Equal(t, shipped.Title, task.Title)
	assert.Equal(t, tasksvc.StatusCompleted, task.Status)
	assert.Equal(t, tasksvc.PriorityHigh, task.Priority)
	assert.Nil(t, task.NextStep)
	require.NotNil(t, task.DueDate)
	assert.True(t, shipped.DueDate.Equal(*task.DueDate))
	require.NotNil(t, task.CompletedAt)
	assert.True(t, shipped.CompletedAt.Equal(*task.CompletedAt))
	assert.Equal(t, shipped.OwnerID, task.OwnerID)
	assert.Equal(t, shipped.CommentCount, task.CommentCount)
	require.Len(t, task.Comments, 1)
	assert.Equal(t, "tagged v1.2.0", task.Comments[0].Content)

	_, err = client.Task(context.Background(), authsvc.Auth{}, 99)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestCreateAnswersCreated(t *testing.T) {
	svc := &stubService{}
	srv := newServer(t, svc, inmem.NewMemoryClient())
	token := accessToken(t, "a", 7, policy.RoleEmployee, time.Now().Add(time.Minute))

	resp := doPost(t, srv.URL+"/tasks", token, `{"title":"Ship it","nextStep":"cut the branch"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var created taskendpoint.CreateTaskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, uint64(8), created.Task.ID)

	resp = doPost(t, srv.URL+"/tasks/8/comments", token, `{"content":"on it"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var comment taskendpoint.AddCommentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&comment))
	assert.Equal(t, "on it", comment.Comment.Content)
	assert.Equal(t, uint64(8), comment.Comment.TaskID)

	client, err := NewHTTPClient(srv.URL, &http.Client{Transport: bearer{token, http.DefaultTransport}}, log.NewNopLogger())
	require.NoError(t, err)
	next := "cut the branch"
	task, err := client.CreateTask(context.Background(), authsvc.Auth{}, tasksvc.TaskInput{Title: "Ship it", NextStep: &next})
	require.NoError(t, err)
	assert.Equal(t, tasksvc.PriorityMedium, task.Priority)
	c, err := client.AddComment(context.Background(), authsvc.Auth{}, task.ID, "on it")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), c.ID)
}

func TestHandlerRejectsMissingOrRevokedCredential(t *testing.T) {
	denylist := inmem.NewMemoryClient()
	srv := newServer(t, &stubService{}, denylist)

	resp, err := http.Get(srv.URL + "/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	expired := accessToken(t, "old", 7, policy.RoleEmployee, time.Now().Add(-time.Minute))
	assert.Equal(t, http.StatusUnauthorized, doGet(t, srv.URL+"/tasks", expired).StatusCode)

	token := accessToken(t, "revoked", 7, policy.RoleEmployee, time.Now().Add(time.Minute))
	assert.Equal(t, http.StatusOK, doGet(t, srv.URL+"/tasks", token).StatusCode)

	require.NoError(t, denylist.Revoke(context.Background(), "revoked", time.Now().Add(time.Minute)))
	resp = doGet(t, srv.URL+"/tasks", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body apperr.Body
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, authsvc.ErrTokenRevoked.Error(), body.Error)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	srv := newServer(t, &stubService{}, inmem.NewMemoryClient())
	token := accessToken(t, "a", 7, policy.RoleEmployee, time.Now().Add(time.Minute))

	assert.Equal(t, http.StatusBadRequest, doGet(t, srv.URL+"/tasks?status=ARCHIVED", token).StatusCode)

	req, err := http.NewRequest("PATCH", srv.URL+"/tasks/3/status", strings.NewReader(`{"status":"DONE"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInternalErrorDetails(t *testing.T) {
	srv := newServer(t, &stubService{}, inmem.NewMemoryClient())
	token := accessToken(t, "a", 1, policy.RoleAdmin, time.Now().Add(time.Minute))

	resp := doGet(t, srv.URL+"/dashboard/stats", token)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body apperr.Body
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "internal server error", body.Error)
	if authsvc.IsDevelopment() {
		assert.Equal(t, "pq: connection refused", body.Details)
	} else {
		assert.Empty(t, body.Details)
	}
}

func doGet(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func doPost(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("POST", url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
