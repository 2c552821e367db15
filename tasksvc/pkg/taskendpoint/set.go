package taskendpoint

import (
	"context"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/tasksvc"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/taskservice"
)

// Set collects the task endpoints. On the client side it also implements
// taskservice.Service; the Auth argument is ignored there because the
// credential travels in the Authorization header.
type Set struct {
	CreateTaskEndpoint    endpoint.Endpoint
	TasksEndpoint         endpoint.Endpoint
	MyTasksEndpoint       endpoint.Endpoint
	TasksByOwnerEndpoint  endpoint.Endpoint
	TaskEndpoint          endpoint.Endpoint
	UpdateTaskEndpoint    endpoint.Endpoint
	UpdateStatusEndpoint  endpoint.Endpoint
	DeleteTaskEndpoint    endpoint.Endpoint
	CommentsEndpoint      endpoint.Endpoint
	AddCommentEndpoint    endpoint.Endpoint
	DeleteCommentEndpoint endpoint.Endpoint
	StatsEndpoint         endpoint.Endpoint
	OverviewEndpoint      endpoint.Endpoint
}

func New(svc taskservice.Service, logger log.Logger) Set {
	var createTaskEndpoint endpoint.Endpoint
	{
		createTaskEndpoint = MakeCreateTaskEndpoint(svc)
		createTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "CreateTask"))(createTaskEndpoint)
	}
	var tasksEndpoint endpoint.Endpoint
	{
		tasksEndpoint = MakeTasksEndpoint(svc)
		tasksEndpoint = LoggingMiddleware(log.With(logger, "method", "Tasks"))(tasksEndpoint)
	}
	var myTasksEndpoint endpoint.Endpoint
	{
		myTasksEndpoint = MakeMyTasksEndpoint(svc)
		myTasksEndpoint = LoggingMiddleware(log.With(logger, "method", "MyTasks"))(myTasksEndpoint)
	}
	var tasksByOwnerEndpoint endpoint.Endpoint
	{
		tasksByOwnerEndpoint = MakeTasksByOwnerEndpoint(svc)
		tasksByOwnerEndpoint = LoggingMiddleware(log.With(logger, "method", "TasksByOwner"))(tasksByOwnerEndpoint)
	}
	var taskEndpoint endpoint.Endpoint
	{
		taskEndpoint = MakeTaskEndpoint(svc)
		taskEndpoint = LoggingMiddleware(log.With(logger, "method", "Task"))(taskEndpoint)
	}
	var updateTaskEndpoint endpoint.Endpoint
	{
		updateTaskEndpoint = MakeUpdateTaskEndpoint(svc)
		updateTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "UpdateTask"))(updateTaskEndpoint)
	}
	var updateStatusEndpoint endpoint.Endpoint
	{
		updateStatusEndpoint = MakeUpdateStatusEndpoint(svc)
		updateStatusEndpoint = LoggingMiddleware(log.With(logger, "method", "UpdateStatus"))(updateStatusEndpoint)
	}
	var deleteTaskEndpoint endpoint.Endpoint
	{
		deleteTaskEndpoint = MakeDeleteTaskEndpoint(svc)
		deleteTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "DeleteTask"))(deleteTaskEndpoint)
	}
	var commentsEndpoint endpoint.Endpoint
	{
		commentsEndpoint = MakeCommentsEndpoint(svc)
		commentsEndpoint = LoggingMiddleware(log.With(logger, "method", "Comments"))(commentsEndpoint)
	}
	var addCommentEndpoint endpoint.Endpoint
	{
		addCommentEndpoint = MakeAddCommentEndpoint(svc)
		addCommentEndpoint = LoggingMiddleware(log.With(logger, "method", "AddComment"))(addCommentEndpoint)
	}
	var deleteCommentEndpoint endpoint.Endpoint
	{
		deleteCommentEndpoint = MakeDeleteCommentEndpoint(svc)
		deleteCommentEndpoint = LoggingMiddleware(log.With(logger, "method", "DeleteComment"))(deleteCommentEndpoint)
	}
	var statsEndpoint endpoint.Endpoint
	{
		statsEndpoint = MakeStatsEndpoint(svc)
		statsEndpoint = LoggingMiddleware(log.With(logger, "method", "Stats"))(statsEndpoint)
	}
	var overviewEndpoint endpoint.Endpoint
	{
		overviewEndpoint = MakeOverviewEndpoint(svc)
		overviewEndpoint = LoggingMiddleware(log.With(logger, "method", "Overview"))(overviewEndpoint)
	}

	return Set{
		CreateTaskEndpoint:    createTaskEndpoint,
		TasksEndpoint:         tasksEndpoint,
		MyTasksEndpoint:       myTasksEndpoint,
		TasksByOwnerEndpoint:  tasksByOwnerEndpoint,
		TaskEndpoint:          taskEndpoint,
		UpdateTaskEndpoint:    updateTaskEndpoint,
		UpdateStatusEndpoint:  updateStatusEndpoint,
		DeleteTaskEndpoint:    deleteTaskEndpoint,
		CommentsEndpoint:      commentsEndpoint,
		AddCommentEndpoint:    addCommentEndpoint,
		DeleteCommentEndpoint: deleteCommentEndpoint,
		StatsEndpoint:         statsEndpoint,
		OverviewEndpoint:      overviewEndpoint,
	}
}

func (s Set) CreateTask(ctx context.Context, _ authsvc.Auth, in tasksvc.TaskInput) (tasksvc.Task, error) {
	resp, err := s.CreateTaskEndpoint(ctx, CreateTaskRequest{Input: in})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(CreateTaskResponse)
	return response.Task, response.Err
}

func (s Set) Tasks(ctx context.Context, _ authsvc.Auth, f tasksvc.Filter) (tasksvc.TaskPage, error) {
	resp, err := s.TasksEndpoint(ctx, TasksRequest{Filter: f})
	if err != nil {
		return tasksvc.TaskPage{}, err
	}
	response := resp.(TasksResponse)
	return response.TaskPage, response.Err
}

func (s Set) MyTasks(ctx context.Context, _ authsvc.Auth) ([]tasksvc.Task, error) {
	resp, err := s.MyTasksEndpoint(ctx, MyTasksRequest{})
	if err != nil {
		return nil, err
	}
	response := resp.(TaskListResponse)
	return response.Tasks, response.Err
}

func (s Set) TasksByOwner(ctx context.Context, _ authsvc.Auth, ownerID uint64) ([]tasksvc.Task, error) {
	resp, err := s.TasksByOwnerEndpoint(ctx, TasksByOwnerRequest{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	response := resp.(TaskListResponse)
	return response.Tasks, response.Err
}

func (s Set) Task(ctx context.Context, _ authsvc.Auth, taskID uint64) (tasksvc.Task, error) {
	resp, err := s.TaskEndpoint(ctx, TaskRequest{TaskID: taskID})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(TaskResponse)
	return response.Task, response.Err
}

func (s Set) UpdateTask(ctx context.Context, _ authsvc.Auth, taskID uint64, p tasksvc.TaskPatch) (tasksvc.Task, error) {
	resp, err := s.UpdateTaskEndpoint(ctx, UpdateTaskRequest{TaskID: taskID, Patch: p})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(TaskResponse)
	return response.Task, response.Err
}

func (s Set) UpdateStatus(ctx context.Context, _ authsvc.Auth, taskID uint64, status tasksvc.Status, nextStep *string) (tasksvc.Task, error) {
	resp, err := s.UpdateStatusEndpoint(ctx, UpdateStatusRequest{TaskID: taskID, Status: status, NextStep: nextStep})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(TaskResponse)
	return response.Task, response.Err
}

func (s Set) DeleteTask(ctx context.Context, _ authsvc.Auth, taskID uint64) (bool, error) {
	resp, err := s.DeleteTaskEndpoint(ctx, DeleteTaskRequest{TaskID: taskID})
	if err != nil {
		return false, err
	}
	response := resp.(DeleteResponse)
	return response.Result, response.Err
}

func (s Set) Comments(ctx context.Context, _ authsvc.Auth, taskID uint64) ([]tasksvc.Comment, error) {
	resp, err := s.CommentsEndpoint(ctx, CommentsRequest{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	response := resp.(CommentsResponse)
	return response.Comments, response.Err
}

func (s Set) AddComment(ctx context.Context, _ authsvc.Auth, taskID uint64, content string) (tasksvc.Comment, error) {
	resp, err := s.AddCommentEndpoint(ctx, AddCommentRequest{TaskID: taskID, Content: content})
	if err != nil {
		return tasksvc.Comment{}, err
	}
	response := resp.(AddCommentResponse)
	return response.Comment, response.Err
}

func (s Set) DeleteComment(ctx context.Context, _ authsvc.Auth, taskID, commentID uint64) (bool, error) {
	resp, err := s.DeleteCommentEndpoint(ctx, DeleteCommentRequest{TaskID: taskID, CommentID: commentID})
	if err != nil {
		return false, err
	}
	response := resp.(DeleteResponse)
	return response.Result, response.Err
}

func (s Set) Stats(ctx context.Context, _ authsvc.Auth) (tasksvc.Stats, error) {
	resp, err := s.StatsEndpoint(ctx, StatsRequest{})
	if err != nil {
		return tasksvc.Stats{}, err
	}
	response := resp.(StatsResponse)
	return response.Stats, response.Err
}

func (s Set) Overview(ctx context.Context, _ authsvc.Auth) ([]tasksvc.OwnerOverview, error) {
	resp, err := s.OverviewEndpoint(ctx, OverviewRequest{})
	if err != nil {
		return nil, err
	}
	response := resp.(OverviewResponse)
	return response.Employees, response.Err
}

func MakeCreateTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return CreateTaskResponse{Err: err}, nil
		}

		req := request.(CreateTaskRequest)
		t, err := s.CreateTask(ctx, auth, req.Input)
		return CreateTaskResponse{Task: t, Err: err}, nil
	}
}

func MakeTasksEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return TasksResponse{Err: err}, nil
		}

		req := request.(TasksRequest)
		p, err := s.Tasks(ctx, auth, req.Filter)
		return TasksResponse{TaskPage: p, Err: err}, nil
	}
}

func MakeMyTasksEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return TaskListResponse{Err: err}, nil
		}

		_ = request.(MyTasksRequest)
		t, err := s.MyTasks(ctx, auth)
		return TaskListResponse{Tasks: t, Err: err}, nil
	}
}

func MakeTasksByOwnerEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return TaskListResponse{Err: err}, nil
		}

		req := request.(TasksByOwnerRequest)
		t, err := s.TasksByOwner(ctx, auth, req.OwnerID)
		return TaskListResponse{Tasks: t, Err: err}, nil
	}
}

func MakeTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return TaskResponse{Err: err}, nil
		}

		req := request.(TaskRequest)
		t, err := s.Task(ctx, auth, req.TaskID)
		return TaskResponse{Task: t, Err: err}, nil
	}
}

func MakeUpdateTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return TaskResponse{Err: err}, nil
		}

		req := request.(UpdateTaskRequest)
		t, err := s.UpdateTask(ctx, auth, req.TaskID, req.Patch)
		return TaskResponse{Task: t, Err: err}, nil
	}
}

func MakeUpdateStatusEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return TaskResponse{Err: err}, nil
		}

		req := request.(UpdateStatusRequest)
		t, err := s.UpdateStatus(ctx, auth, req.TaskID, req.Status, req.NextStep)
		return TaskResponse{Task: t, Err: err}, nil
	}
}

func MakeDeleteTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return DeleteResponse{Err: err}, nil
		}

		req := request.(DeleteTaskRequest)
		r, err := s.DeleteTask(ctx, auth, req.TaskID)
		return DeleteResponse{Result: r, Err: err}, nil
	}
}

func MakeCommentsEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return CommentsResponse{Err: err}, nil
		}

		req := request.(CommentsRequest)
		c, err := s.Comments(ctx, auth, req.TaskID)
		return CommentsResponse{Comments: c, Err: err}, nil
	}
}

func MakeAddCommentEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return AddCommentResponse{Err: err}, nil
		}

		req := request.(AddCommentRequest)
		c, err := s.AddComment(ctx, auth, req.TaskID, req.Content)
		return AddCommentResponse{Comment: c, Err: err}, nil
	}
}

func MakeDeleteCommentEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return DeleteResponse{Err: err}, nil
		}

		req := request.(DeleteCommentRequest)
		r, err := s.DeleteComment(ctx, auth, req.TaskID, req.CommentID)
		return DeleteResponse{Result: r, Err: err}, nil
	}
}

func MakeStatsEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return StatsResponse{Err: err}, nil
		}

		_ = request.(StatsRequest)
		st, err := s.Stats(ctx, auth)
		return StatsResponse{Stats: st, Err: err}, nil
	}
}

func MakeOverviewEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := authsvc.FromContext(ctx)
		if err != nil {
			return OverviewResponse{Err: err}, nil
		}

		_ = request.(OverviewRequest)
		o, err := s.Overview(ctx, auth)
		return OverviewResponse{Employees: o, Err: err}, nil
	}
}

var (
	_ endpoint.Failer = CreateTaskResponse{}
	_ endpoint.Failer = TasksResponse{}
	_ endpoint.Failer = TaskListResponse{}
	_ endpoint.Failer = TaskResponse{}
	_ endpoint.Failer = DeleteResponse{}
	_ endpoint.Failer = CommentsResponse{}
	_ endpoint.Failer = AddCommentResponse{}
	_ endpoint.Failer = StatsResponse{}
	_ endpoint.Failer = OverviewResponse{}
)

type CreateTaskRequest struct {
	Input tasksvc.TaskInput
}

type CreateTaskResponse struct {
	Task tasksvc.Task `json:"task"`
	Err  error        `json:"-"`
}

func (r CreateTaskResponse) Failed() error { return r.Err }

func (r CreateTaskResponse) StatusCode() int { return http.StatusCreated }

type TasksRequest struct {
	Filter tasksvc.Filter
}

type TasksResponse struct {
	tasksvc.TaskPage
	Err error `json:"-"`
}

func (r TasksResponse) Failed() error { return r.Err }

type MyTasksRequest struct{}

type TasksByOwnerRequest struct {
	OwnerID uint64
}

type TaskListResponse struct {
	Tasks []tasksvc.Task `json:"tasks"`
	Err   error          `json:"-"`
}

func (r TaskListResponse) Failed() error { return r.Err }

type TaskRequest struct {
	TaskID uint64
}

type TaskResponse struct {
	Task tasksvc.Task `json:"task"`
	Err  error        `json:"-"`
}

func (r TaskResponse) Failed() error { return r.Err }

type UpdateTaskRequest struct {
	TaskID uint64
	Patch  tasksvc.TaskPatch
}

type UpdateStatusRequest struct {
	TaskID   uint64         `json:"-"`
	Status   tasksvc.Status `json:"status"`
	NextStep *string        `json:"nextStep,omitempty"`
}

type DeleteTaskRequest struct {
	TaskID uint64
}

type DeleteResponse struct {
	Result bool  `json:"result"`
	Err    error `json:"-"`
}

func (r DeleteResponse) Failed() error { return r.Err }

type CommentsRequest struct {
	TaskID uint64
}

type CommentsResponse struct {
	Comments []tasksvc.Comment `json:"comments"`
	Err      error             `json:"-"`
}

func (r CommentsResponse) Failed() error { return r.Err }

type AddCommentRequest struct {
	TaskID  uint64 `json:"-"`
	Content string `json:"content"`
}

type AddCommentResponse struct {
	Comment tasksvc.Comment `json:"comment"`
	Err     error           `json:"-"`
}

func (r AddCommentResponse) Failed() error { return r.Err }

func (r AddCommentResponse) StatusCode() int { return http.StatusCreated }

type DeleteCommentRequest struct {
	TaskID    uint64
	CommentID uint64
}

type StatsRequest struct{}

type StatsResponse struct {
	Stats tasksvc.Stats `json:"stats"`
	Err   error         `json:"-"`
}

func (r StatsResponse) Failed() error { return r.Err }

type OverviewRequest struct{}

type OverviewResponse struct {
	Employees []tasksvc.OwnerOverview `json:"employees"`
	Err       error                   `json:"-"`
}

func (r OverviewResponse) Failed() error { return r.Err }
