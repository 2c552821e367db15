package tasksvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ichigozero/taskdesk/apperr"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether a task in this status still needs a next step.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if !Status(v).Valid() {
		return apperr.Invalid("status", fmt.Sprintf("unknown status %q", v))
	}
	*s = Status(v)
	return nil
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if !Priority(v).Valid() {
		return apperr.Invalid("priority", fmt.Sprintf("unknown priority %q", v))
	}
	*p = Priority(v)
	return nil
}

type Task struct {
	ID           uint64     `json:"id"`
	Title        string     `json:"title" gorm:"not null"`
	Description  string     `json:"description"`
	Status       Status     `json:"status" gorm:"not null;index"`
	Priority     Priority   `json:"priority" gorm:"not null"`
	NextStep     *string    `json:"nextStep"`
	DueDate      *time.Time `json:"dueDate"`
	CompletedAt  *time.Time `json:"completedAt"`
	OwnerID      uint64     `json:"ownerId" gorm:"not null;index"`
	CreatedByID  uint64     `json:"createdById" gorm:"not null"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CommentCount int64      `json:"commentCount" gorm:"-"`
	Comments     []Comment  `json:"comments,omitempty" gorm:"-"`
}

type Comment struct {
	ID        uint64    `json:"id"`
	Content   string    `json:"content" gorm:"not null"`
	TaskID    uint64    `json:"taskId" gorm:"not null;index"`
	AuthorID  uint64    `json:"authorId" gorm:"not null;index"`
	CreatedAt time.Time `json:"createdAt"`
}

// OptionalTime tells an explicit JSON null apart from an absent field.
type OptionalTime struct {
	Set  bool
	Time *time.Time
}

func (o *OptionalTime) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Time = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(b, &t); err != nil {
		return apperr.Invalid("dueDate", "dueDate must be an RFC 3339 timestamp")
	}
	o.Time = &t
	return nil
}

func (o OptionalTime) MarshalJSON() ([]byte, error) {
	if o.Time == nil {
		return []byte("null"), nil
	}
	return json.Marshal(o.Time)
}

// TaskInput carries the fields of a new task.
type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	NextStep    *string    `json:"nextStep"`
	DueDate     *time.Time `json:"dueDate"`
	OwnerID     uint64     `json:"ownerId"`
}

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Status      *Status      `json:"status,omitempty"`
	Priority    *Priority    `json:"priority,omitempty"`
	NextStep    *string      `json:"nextStep,omitempty"`
	DueDate     OptionalTime `json:"dueDate"`
	OwnerID     *uint64      `json:"ownerId,omitempty"`
}

// MarshalJSON leaves dueDate out unless it was explicitly set, so a client
// round trip never clears a due date by accident.
func (p TaskPatch) MarshalJSON() ([]byte, error) {
	type patch TaskPatch
	aux := struct {
		patch
		DueDate *OptionalTime `json:"dueDate,omitempty"`
	}{patch: patch(p)}
	if p.DueDate.Set {
		aux.DueDate = &p.DueDate
	}
	return json.Marshal(aux)
}

type Filter struct {
	Statuses   []Status
	Priorities []Priority
	OwnerID    uint64
	Search     string
	DueBefore  *time.Time
	DueAfter   *time.Time
	SortBy     string
	SortOrder  string
	Page       int
	Limit      int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Bounds returns the clamped page number and page size.
func (f Filter) Bounds() (page, limit int) {
	page, limit = f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type TaskPage struct {
	Tasks      []Task     `json:"tasks"`
	Pagination Pagination `json:"pagination"`
}

type Stats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"inProgress"`
	Completed  int64 `json:"completed"`
	Cancelled  int64 `json:"cancelled"`
	Urgent     int64 `json:"urgent"`
	Overdue    int64 `json:"overdue"`
}

type OwnerStats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	InProgress     int `json:"inProgress"`
	Overdue        int `json:"overdue"`
	CompletionRate int `json:"completionRate"`
}

type OwnerOverview struct {
	ID         uint64     `json:"id"`
	Name       string     `json:"name"`
	Department string     `json:"department"`
	Stats      OwnerStats `json:"stats"`
}

type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	Find(ctx context.Context, id uint64) (Task, error)
	FindAll(ctx context.Context, f Filter) ([]Task, int64, error)
	FindByOwner(ctx context.Context, ownerID uint64) ([]Task, error)
	Save(ctx context.Context, t *Task) error
	// Delete removes the task together with its comments.
	Delete(ctx context.Context, id uint64) error
	CountByOwner(ctx context.Context, ownerID uint64) (int64, error)
	CountByOwners(ctx context.Context) (map[uint64]int64, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

type CommentRepository interface {
	Create(ctx context.Context, c *Comment) error
	Find(ctx context.Context, id uint64) (Comment, error)
	FindByTask(ctx context.Context, taskID uint64) ([]Comment, error)
	Delete(ctx context.Context, id uint64) error
}

// Owner is the slice of an account the task service needs.
type Owner struct {
	ID         uint64
	Name       string
	Department string
	Active     bool
}

// OwnerDirectory resolves task owners. Implemented on top of the account
// repository.
type OwnerDirectory interface {
	Owner(ctx context.Context, id uint64) (Owner, error)
	ActiveOwners(ctx context.Context) ([]Owner, error)
}

var (
	ErrInvalidArgument  = apperr.New(apperr.Validation, "invalid argument")
	ErrTaskNotFound     = apperr.New(apperr.NotFound, "task not found")
	ErrCommentNotFound  = apperr.New(apperr.NotFound, "comment not found")
	ErrNextStepRequired = apperr.Invalid("nextStep", "nextStep is required (at least 3 characters) while a task is PENDING or IN_PROGRESS")
	ErrNextStepTooLong  = apperr.Invalid("nextStep", "nextStep must be at most 500 characters")
	ErrTitleTooShort    = apperr.Invalid("title", "title must be at least 3 characters")
	ErrCommentEmpty     = apperr.Invalid("content", "comment cannot be empty")
	ErrCommentTooLong   = apperr.Invalid("content", "comment must be at most 2000 characters")
	ErrOwnerInactive    = apperr.Invalid("ownerId", "owner must be an active account")
	ErrCommentMismatch  = apperr.New(apperr.NotFound, "comment does not belong to this task")
)
