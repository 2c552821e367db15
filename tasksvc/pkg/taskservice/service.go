package taskservice

import (
	"context"
	"math"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/policy"
	"github.com/ichigozero/taskdesk/tasksvc"
)

type Service interface {
	CreateTask(ctx context.Context, a authsvc.Auth, in tasksvc.TaskInput) (tasksvc.Task, error)
	Tasks(ctx context.Context, a authsvc.Auth, f tasksvc.Filter) (tasksvc.TaskPage, error)
	MyTasks(ctx context.Context, a authsvc.Auth) ([]tasksvc.Task, error)
	TasksByOwner(ctx context.Context, a authsvc.Auth, ownerID uint64) ([]tasksvc.Task, error)
	Task(ctx context.Context, a authsvc.Auth, taskID uint64) (tasksvc.Task, error)
	UpdateTask(ctx context.Context, a authsvc.Auth, taskID uint64, p tasksvc.TaskPatch) (tasksvc.Task, error)
	UpdateStatus(ctx context.Context, a authsvc.Auth, taskID uint64, status tasksvc.Status, nextStep *string) (tasksvc.Task, error)
	DeleteTask(ctx context.Context, a authsvc.Auth, taskID uint64) (bool, error)
	Comments(ctx context.Context, a authsvc.Auth, taskID uint64) ([]tasksvc.Comment, error)
	AddComment(ctx context.Context, a authsvc.Auth, taskID uint64, content string) (tasksvc.Comment, error)
	DeleteComment(ctx context.Context, a authsvc.Auth, taskID, commentID uint64) (bool, error)
	Stats(ctx context.Context, a authsvc.Auth) (tasksvc.Stats, error)
	Overview(ctx context.Context, a authsvc.Auth) ([]tasksvc.OwnerOverview, error)
}

func New(
	t tasksvc.TaskRepository,
	c tasksvc.CommentRepository,
	o tasksvc.OwnerDirectory,
	logger log.Logger,
	requestCount metrics.Counter,
	requestLatency metrics.Histogram,
) Service {
	var svc Service
	{
		svc = NewBasicService(t, c, o, time.Now)
		svc = LoggingMiddleware(logger)(svc)
		svc = InstrumentingMiddleware(requestCount, requestLatency)(svc)
	}
	return svc
}

type basicService struct {
	tasks    tasksvc.TaskRepository
	comments tasksvc.CommentRepository
	owners   tasksvc.OwnerDirectory
	now      func() time.Time
}

func NewBasicService(t tasksvc.TaskRepository, c tasksvc.CommentRepository, o tasksvc.OwnerDirectory, now func() time.Time) Service {
	return basicService{tasks: t, comments: c, owners: o, now: now}
}

func (s basicService) CreateTask(ctx context.Context, a authsvc.Auth, in tasksvc.TaskInput) (tasksvc.Task, error) {
	if a.AccountID == 0 {
		return tasksvc.Task{}, tasksvc.ErrInvalidArgument
	}

	owner := in.OwnerID
	if owner == 0 {
		owner = a.AccountID
	}
	if owner != a.AccountID {
		if err := policy.Authorize(a.Role, a.AccountID, owner, policy.TaskReassign); err != nil {
			return tasksvc.Task{}, err
		}
		if err := s.checkOwner(ctx, owner); err != nil {
			return tasksvc.Task{}, err
		}
	}

	title, err := validTitle(in.Title)
	if err != nil {
		return tasksvc.Task{}, err
	}

	status := in.Status
	if status == "" {
		status = tasksvc.StatusPending
	}
	priority := in.Priority
	if priority == "" {
		priority = tasksvc.PriorityMedium
	}

	task := tasksvc.Task{
		Title:       title,
		Description: in.Description,
		Priority:    priority,
		DueDate:     in.DueDate,
		OwnerID:     owner,
		CreatedByID: a.AccountID,
	}
	task, err = Transition(task, "", status, in.NextStep, s.now())
	if err != nil {
		return tasksvc.Task{}, err
	}

	if err := s.tasks.Create(ctx, &task); err != nil {
		return tasksvc.Task{}, err
	}
	return task, nil
}

// Tasks lists tasks matching f across all owners unless f.OwnerID narrows it.
func (s basicService) Tasks(ctx context.Context, a authsvc.Auth, f tasksvc.Filter) (tasksvc.TaskPage, error) {
	if a.AccountID == 0 {
		return tasksvc.TaskPage{}, tasksvc.ErrInvalidArgument
	}
	if err := policy.Authorize(a.Role, a.AccountID, f.OwnerID, policy.TaskRead); err != nil {
		return tasksvc.TaskPage{}, err
	}

	tasks, total, err := s.tasks.FindAll(ctx, f)
	if err != nil {
		return tasksvc.TaskPage{}, err
	}
	if tasks == nil {
		tasks = []tasksvc.Task{}
	}

	page, limit := f.Bounds()
	return tasksvc.TaskPage{
		Tasks: tasks,
		Pagination: tasksvc.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}, nil
}

func (s basicService) MyTasks(ctx context.Context, a authsvc.Auth) ([]tasksvc.Task, error) {
	if a.AccountID == 0 {
		return nil, tasksvc.ErrInvalidArgument
	}
	return s.tasks.FindByOwner(ctx, a.AccountID)
}

func (s basicService) TasksByOwner(ctx context.Context, a authsvc.Auth, ownerID uint64) ([]tasksvc.Task, error) {
	if a.AccountID == 0 || ownerID == 0 {
		return nil, tasksvc.ErrInvalidArgument
	}
	if err := policy.Authorize(a.Role, a.AccountID, ownerID, policy.TaskRead); err != nil {
		return nil, err
	}
	return s.tasks.FindByOwner(ctx, ownerID)
}

func (s basicService) Task(ctx context.Context, a authsvc.Auth, taskID uint64) (tasksvc.Task, error) {
	task, err := s.load(ctx, a, taskID, policy.TaskRead)
	if err != nil {
		return tasksvc.Task{}, err
	}

	comments, err := s.comments.FindByTask(ctx, taskID)
	if err != nil {
		return tasksvc.Task{}, err
	}
	task.Comments = comments
	return task, nil
}

func (s basicService) UpdateTask(ctx context.Context, a authsvc.Auth, taskID uint64, p tasksvc.TaskPatch) (tasksvc.Task, error) {
	current, err := s.load(ctx, a, taskID, policy.TaskUpdate)
	if err != nil {
		return tasksvc.Task{}, err
	}

	if p.OwnerID != nil && *p.OwnerID != current.OwnerID {
		if err := policy.Authorize(a.Role, a.AccountID, current.OwnerID, policy.TaskReassign); err != nil {
			return tasksvc.Task{}, err
		}
		if err := s.checkOwner(ctx, *p.OwnerID); err != nil {
			return tasksvc.Task{}, err
		}
	}

	next, err := applyPatch(current, p, s.now())
	if err != nil {
		return tasksvc.Task{}, err
	}

	if err := s.tasks.Save(ctx, &next); err != nil {
		return tasksvc.Task{}, err
	}
	return next, nil
}

func (s basicService) UpdateStatus(ctx context.Context, a authsvc.Auth, taskID uint64, status tasksvc.Status, nextStep *string) (tasksvc.Task, error) {
	current, err := s.load(ctx, a, taskID, policy.TaskUpdate)
	if err != nil {
		return tasksvc.Task{}, err
	}

	next, err := Transition(current, current.Status, status, nextStep, s.now())
	if err != nil {
		return tasksvc.Task{}, err
	}

	if err := s.tasks.Save(ctx, &next); err != nil {
		return tasksvc.Task{}, err
	}
	return next, nil
}

func (s basicService) DeleteTask(ctx context.Context, a authsvc.Auth, taskID uint64) (bool, error) {
	if _, err := s.load(ctx, a, taskID, policy.TaskDelete); err != nil {
		return false, err
	}
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return false, err
	}
	return true, nil
}

func (s basicService) Comments(ctx context.Context, a authsvc.Auth, taskID uint64) ([]tasksvc.Comment, error) {
	if _, err := s.load(ctx, a, taskID, policy.TaskRead); err != nil {
		return nil, err
	}
	return s.comments.FindByTask(ctx, taskID)
}

// AddComment is open to any signed-in account that can see the task.
func (s basicService) AddComment(ctx context.Context, a authsvc.Auth, taskID uint64, content string) (tasksvc.Comment, error) {
	if _, err := s.load(ctx, a, taskID, policy.CommentCreate); err != nil {
		return tasksvc.Comment{}, err
	}

	content, err := validComment(content)
	if err != nil {
		return tasksvc.Comment{}, err
	}

	c := tasksvc.Comment{Content: content, TaskID: taskID, AuthorID: a.AccountID}
	if err := s.comments.Create(ctx, &c); err != nil {
		return tasksvc.Comment{}, err
	}
	return c, nil
}

func (s basicService) DeleteComment(ctx context.Context, a authsvc.Auth, taskID, commentID uint64) (bool, error) {
	if a.AccountID == 0 || taskID == 0 || commentID == 0 {
		return false, tasksvc.ErrInvalidArgument
	}

	c, err := s.comments.Find(ctx, commentID)
	if err != nil {
		return false, err
	}
	if c.TaskID != taskID {
		return false, tasksvc.ErrCommentMismatch
	}
	if err := policy.Authorize(a.Role, a.AccountID, c.AuthorID, policy.CommentDelete); err != nil {
		return false, err
	}

	if err := s.comments.Delete(ctx, commentID); err != nil {
		return false, err
	}
	return true, nil
}

func (s basicService) Stats(ctx context.Context, a authsvc.Auth) (tasksvc.Stats, error) {
	if err := policy.Authorize(a.Role, a.AccountID, 0, policy.DashboardView); err != nil {
		return tasksvc.Stats{}, err
	}
	return s.tasks.Stats(ctx, s.now())
}

func (s basicService) Overview(ctx context.Context, a authsvc.Auth) ([]tasksvc.OwnerOverview, error) {
	if err := policy.Authorize(a.Role, a.AccountID, 0, policy.DashboardView); err != nil {
		return nil, err
	}

	owners, err := s.owners.ActiveOwners(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	overview := make([]tasksvc.OwnerOverview, 0, len(owners))
	for _, o := range owners {
		tasks, err := s.tasks.FindByOwner(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		overview = append(overview, tasksvc.OwnerOverview{
			ID:         o.ID,
			Name:       o.Name,
			Department: o.Department,
			Stats:      ownerStats(tasks, now),
		})
	}
	return overview, nil
}

// load fetches the task and checks op against its owner. A missing task
// is reported before any authorization decision.
func (s basicService) load(ctx context.Context, a authsvc.Auth, taskID uint64, op policy.Operation) (tasksvc.Task, error) {
	if a.AccountID == 0 || taskID == 0 {
		return tasksvc.Task{}, tasksvc.ErrInvalidArgument
	}

	task, err := s.tasks.Find(ctx, taskID)
	if err != nil {
		return tasksvc.Task{}, err
	}
	if err := policy.Authorize(a.Role, a.AccountID, task.OwnerID, op); err != nil {
		return tasksvc.Task{}, err
	}
	return task, nil
}

func (s basicService) checkOwner(ctx context.Context, id uint64) error {
	o, err := s.owners.Owner(ctx, id)
	if err != nil {
		return err
	}
	if !o.Active {
		return tasksvc.ErrOwnerInactive
	}
	return nil
}

func ownerStats(tasks []tasksvc.Task, now time.Time) tasksvc.OwnerStats {
	var st tasksvc.OwnerStats
	for _, t := range tasks {
		st.Total++
		switch t.Status {
		case tasksvc.StatusCompleted:
			st.Completed++
		case tasksvc.StatusPending:
			st.Pending++
		case tasksvc.StatusInProgress:
			st.InProgress++
		}
		if t.DueDate != nil && t.DueDate.Before(now) && !t.Status.Terminal() {
			st.Overdue++
		}
	}
	if st.Total > 0 {
		st.CompletionRate = int(math.Round(float64(st.Completed) / float64(st.Total) * 100))
	}
	return st
}
