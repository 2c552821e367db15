package taskservice

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/tasksvc"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

func (mw loggingMiddleware) CreateTask(ctx context.Context, a authsvc.Auth, in tasksvc.TaskInput) (t tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "CreateTask",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"owner_id", t.OwnerID,
			"task_id", t.ID,
			"status", t.Status,
			"err", err,
		)
	}()
	return mw.next.CreateTask(ctx, a, in)
}

func (mw loggingMiddleware) Tasks(ctx context.Context, a authsvc.Auth, f tasksvc.Filter) (p tasksvc.TaskPage, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Tasks",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"owner_id", f.OwnerID,
			"page", f.Page,
			"total", p.Pagination.Total,
			"err", err,
		)
	}()
	return mw.next.Tasks(ctx, a, f)
}

func (mw loggingMiddleware) MyTasks(ctx context.Context, a authsvc.Auth) (t []tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "MyTasks",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"count", len(t),
			"err", err,
		)
	}()
	return mw.next.MyTasks(ctx, a)
}

func (mw loggingMiddleware) TasksByOwner(ctx context.Context, a authsvc.Auth, ownerID uint64) (t []tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "TasksByOwner",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"owner_id", ownerID,
			"err", err,
		)
	}()
	return mw.next.TasksByOwner(ctx, a, ownerID)
}

func (mw loggingMiddleware) Task(ctx context.Context, a authsvc.Auth, taskID uint64) (t tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Task",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"task_id", taskID,
			"err", err,
		)
	}()
	return mw.next.Task(ctx, a, taskID)
}

func (mw loggingMiddleware) UpdateTask(ctx context.Context, a authsvc.Auth, taskID uint64, p tasksvc.TaskPatch) (t tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "UpdateTask",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"task_id", taskID,
			"status", t.Status,
			"err", err,
		)
	}()
	return mw.next.UpdateTask(ctx, a, taskID, p)
}

func (mw loggingMiddleware) UpdateStatus(ctx context.Context, a authsvc.Auth, taskID uint64, status tasksvc.Status, nextStep *string) (t tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "UpdateStatus",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"task_id", taskID,
			"status", status,
			"err", err,
		)
	}()
	return mw.next.UpdateStatus(ctx, a, taskID, status, nextStep)
}

func (mw loggingMiddleware) DeleteTask(ctx context.Context, a authsvc.Auth, taskID uint64) (result bool, err error) {
	defer func() {
		mw.logger.Log(
			"method", "DeleteTask",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"task_id", taskID,
			"result", result,
			"err", err,
		)
	}()
	return mw.next.DeleteTask(ctx, a, taskID)
}

func (mw loggingMiddleware) Comments(ctx context.Context, a authsvc.Auth, taskID uint64) (c []tasksvc.Comment, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Comments",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"task_id", taskID,
			"err", err,
		)
	}()
	return mw.next.Comments(ctx, a, taskID)
}

func (mw loggingMiddleware) AddComment(ctx context.Context, a authsvc.Auth, taskID uint64, content string) (c tasksvc.Comment, err error) {
	defer func() {
		mw.logger.Log(
			"method", "AddComment",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"task_id", taskID,
			"comment_id", c.ID,
			"err", err,
		)
	}()
	return mw.next.AddComment(ctx, a, taskID, content)
}

func (mw loggingMiddleware) DeleteComment(ctx context.Context, a authsvc.Auth, taskID, commentID uint64) (result bool, err error) {
	defer func() {
		mw.logger.Log(
			"method", "DeleteComment",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"task_id", taskID,
			"comment_id", commentID,
			"result", result,
			"err", err,
		)
	}()
	return mw.next.DeleteComment(ctx, a, taskID, commentID)
}

func (mw loggingMiddleware) Stats(ctx context.Context, a authsvc.Auth) (s tasksvc.Stats, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Stats",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"err", err,
		)
	}()
	return mw.next.Stats(ctx, a)
}

func (mw loggingMiddleware) Overview(ctx context.Context, a authsvc.Auth) (o []tasksvc.OwnerOverview, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Overview",
			"access_uuid", a.AccessUUID,
			"account_id", a.AccountID,
			"owners", len(o),
			"err", err,
		)
	}()
	return mw.next.Overview(ctx, a)
}

func InstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return instrumentingMiddleware{counter, latency, next}
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func (mw instrumentingMiddleware) observe(method string, begin time.Time) {
	mw.requestCount.With("method", method).Add(1)
	mw.requestLatency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mw instrumentingMiddleware) CreateTask(ctx context.Context, a authsvc.Auth, in tasksvc.TaskInput) (tasksvc.Task, error) {
	defer mw.observe("create_task", time.Now())
	return mw.next.CreateTask(ctx, a, in)
}

func (mw instrumentingMiddleware) Tasks(ctx context.Context, a authsvc.Auth, f tasksvc.Filter) (tasksvc.TaskPage, error) {
	defer mw.observe("tasks", time.Now())
	return mw.next.Tasks(ctx, a, f)
}

func (mw instrumentingMiddleware) MyTasks(ctx context.Context, a authsvc.Auth) ([]tasksvc.Task, error) {
	defer mw.observe("my_tasks", time.Now())
	return mw.next.MyTasks(ctx, a)
}

func (mw instrumentingMiddleware) TasksByOwner(ctx context.Context, a authsvc.Auth, ownerID uint64) ([]tasksvc.Task, error) {
	defer mw.observe("tasks_by_owner", time.Now())
	return mw.next.TasksByOwner(ctx, a, ownerID)
}

func (mw instrumentingMiddleware) Task(ctx context.Context, a authsvc.Auth, taskID uint64) (tasksvc.Task, error) {
	defer mw.observe("task", time.Now())
	return mw.next.Task(ctx, a, taskID)
}

func (mw instrumentingMiddleware) UpdateTask(ctx context.Context, a authsvc.Auth, taskID uint64, p tasksvc.TaskPatch) (tasksvc.Task, error) {
	defer mw.observe("update_task", time.Now())
	return mw.next.UpdateTask(ctx, a, taskID, p)
}

func (mw instrumentingMiddleware) UpdateStatus(ctx context.Context, a authsvc.Auth, taskID uint64, status tasksvc.Status, nextStep *string) (tasksvc.Task, error) {
	defer mw.observe("update_status", time.Now())
	return mw.next.UpdateStatus(ctx, a, taskID, status, nextStep)
}

func (mw instrumentingMiddleware) DeleteTask(ctx context.Context, a authsvc.Auth, taskID uint64) (bool, error) {
	defer mw.observe("delete_task", time.Now())
	return mw.next.DeleteTask(ctx, a, taskID)
}

func (mw instrumentingMiddleware) Comments(ctx context.Context, a authsvc.Auth, taskID uint64) ([]tasksvc.Comment, error) {
	defer mw.observe("comments", time.Now())
	return mw.next.Comments(ctx, a, taskID)
}

func (mw instrumentingMiddleware) AddComment(ctx context.Context, a authsvc.Auth, taskID uint64, content string) (tasksvc.Comment, error) {
	defer mw.observe("add_comment", time.Now())
	return mw.next.AddComment(ctx, a, taskID, content)
}

func (mw instrumentingMiddleware) DeleteComment(ctx context.Context, a authsvc.Auth, taskID, commentID uint64) (bool, error) {
	defer mw.observe("delete_comment", time.Now())
	return mw.next.DeleteComment(ctx, a, taskID, commentID)
}

func (mw instrumentingMiddleware) Stats(ctx context.Context, a authsvc.Auth) (tasksvc.Stats, error) {
	defer mw.observe("stats", time.Now())
	return mw.next.Stats(ctx, a)
}

func (mw instrumentingMiddleware) Overview(ctx context.Context, a authsvc.Auth) ([]tasksvc.OwnerOverview, error) {
	defer mw.observe("overview", time.Now())
	return mw.next.Overview(ctx, a)
}
