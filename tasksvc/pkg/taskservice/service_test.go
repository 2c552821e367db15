package taskservice

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/ichigozero/taskdesk/apperr"
	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/authsvc/policy"
	"github.com/ichigozero/taskdesk/tasksvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	admin    = authsvc.Auth{AccessUUID: "a", AccountID: 1, Role: policy.RoleAdmin}
	alice    = authsvc.Auth{AccessUUID: "b", AccountID: 2, Role: policy.RoleEmployee}
	bob      = authsvc.Auth{AccessUUID: "c", AccountID: 3, Role: policy.RoleEmployee}
)

type memTasks struct {
	rows   map[uint64]tasksvc.Task
	nextID uint64
	saves  int
}

func (m *memTasks) Create(_ context.Context, t *tasksvc.Task) error {
	m.nextID++
	t.ID = m.nextID
	m.rows[t.ID] = *t
	return nil
}

func (m *memTasks) Find(_ context.Context, id uint64) (tasksvc.Task, error) {
	t, ok := m.rows[id]
	if !ok {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	return t, nil
}

func (m *memTasks) FindAll(_ context.Context, f tasksvc.Filter) ([]tasksvc.Task, int64, error) {
	var out []tasksvc.Task
	for _, t := range m.rows {
		if f.OwnerID == 0 || t.OwnerID == f.OwnerID {
			out = append(out, t)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memTasks) FindByOwner(_ context.Context, ownerID uint64) ([]tasksvc.Task, error) {
	var out []tasksvc.Task
	for _, t := range m.rows {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) Save(_ context.Context, t *tasksvc.Task) error {
	if _, ok := m.rows[t.ID]; !ok {
		return tasksvc.ErrTaskNotFound
	}
	m.saves++
	m.rows[t.ID] = *t
	return nil
}

func (m *memTasks) Delete(_ context.Context, id uint64) error {
	if _, ok := m.rows[id]; !ok {
		return tasksvc.ErrTaskNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memTasks) CountByOwner(_ context.Context, ownerID uint64) (int64, error) {
	var n int64
	for _, t := range m.rows {
		if t.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (m *memTasks) CountByOwners(context.Context) (map[uint64]int64, error) {
	counts := map[uint64]int64{}
	for _, t := range m.rows {
		counts[t.OwnerID]++
	}
	return counts, nil
}

func (m *memTasks) Stats(context.Context, time.Time) (tasksvc.Stats, error) {
	return tasksvc.Stats{Total: int64(len(m.rows))}, nil
}

type memComments struct {
	rows   map[uint64]tasksvc.Comment
	nextID uint64
}

func (m *memComments) Create(_ context.Context, c *tasksvc.Comment) error {
	m.nextID++
	c.ID = m.nextID
	m.rows[c.ID] = *c
	return nil
}

func (m *memComments) Find(_ context.Context, id uint64) (tasksvc.Comment, error) {
	c, ok := m.rows[id]
	if !ok {
		return tasksvc.Comment{}, tasksvc.ErrCommentNotFound
	}
	return c, nil
}

func (m *memComments) FindByTask(_ context.Context, taskID uint64) ([]tasksvc.Comment, error) {
	var out []tasksvc.Comment
	for _, c := range m.rows {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memComments) Delete(_ context.Context, id uint64) error {
	delete(m.rows, id)
	return nil
}

type memOwners map[uint64]tasksvc.Owner

func (m memOwners) Owner(_ context.Context, id uint64) (tasksvc.Owner, error) {
	o, ok := m[id]
	if !ok {
		return tasksvc.Owner{}, tasksvc.ErrOwnerInactive
	}
	return o, nil
}

func (m memOwners) ActiveOwners(context.Context) ([]tasksvc.Owner, error) {
	var out []tasksvc.Owner
	for _, o := range m {
		if o.Active {
			out = append(out, o)
		}
	}
	return out, nil
}

type fixture struct {
	svc      Service
	tasks    *memTasks
	comments *memComments
}

func newFixture() fixture {
	tasks := &memTasks{rows: map[uint64]tasksvc.Task{}}
	comments := &memComments{rows: map[uint64]tasksvc.Comment{}}
	owners := memOwners{
		1: {ID: 1, Name: "Admin", Active: true},
		2: {ID: 2, Name: "Alice", Active: true},
		3: {ID: 3, Name: "Bob", Active: true},
		4: {ID: 4, Name: "Gone", Active: false},
	}

	var svc Service
	{
		svc = NewBasicService(tasks, comments, owners, func() time.Time { return fixedNow })
		svc = LoggingMiddleware(log.NewNopLogger())(svc)
		svc = InstrumentingMiddleware(discard.NewCounter(), discard.NewHistogram())(svc)
	}
	return fixture{svc: svc, tasks: tasks, comments: comments}
}

func str(s string) *string { return &s }

func status(s tasksvc.Status) *tasksvc.Status { return &s }

func (f fixture) seed(t *testing.T, a authsvc.Auth) tasksvc.Task {
	t.Helper()
	task, err := f.svc.CreateTask(context.Background(), a, tasksvc.TaskInput{
		Title:    "Write report",
		NextStep: str("collect numbers"),
	})
	require.NoError(t, err)
	return task
}

func TestCreateTaskDefaults(t *testing.T) {
	f := newFixture()

	task := f.seed(t, alice)

	assert.Equal(t, alice.AccountID, task.OwnerID)
	assert.Equal(t, alice.AccountID, task.CreatedByID)
	assert.Equal(t, tasksvc.StatusPending, task.Status)
	assert.Equal(t, tasksvc.PriorityMedium, task.Priority)
	require.NotNil(t, task.NextStep)
	assert.Equal(t, "collect numbers", *task.NextStep)
}

func TestCreateTaskRequiresNextStep(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateTask(context.Background(), alice, tasksvc.TaskInput{Title: "Write report"})
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.Empty(t, f.tasks.rows)
}

func TestCreateTaskOwnerAssignment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateTask(ctx, alice, tasksvc.TaskInput{Title: "For bob", NextStep: str("call bob"), OwnerID: bob.AccountID})
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	task, err := f.svc.CreateTask(ctx, admin, tasksvc.TaskInput{Title: "For bob", NextStep: str("call bob"), OwnerID: bob.AccountID})
	require.NoError(t, err)
	assert.Equal(t, bob.AccountID, task.OwnerID)
	assert.Equal(t, admin.AccountID, task.CreatedByID)

	_, err = f.svc.CreateTask(ctx, admin, tasksvc.TaskInput{Title: "For gone", NextStep: str("call"), OwnerID: 4})
	assert.Equal(t, tasksvc.ErrOwnerInactive, err)
}

func TestOpenStatusRequiresNextStep(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.seed(t, alice)

	for _, ns := range []*string{nil, str(""), str("  ab  ")} {
		_, err := f.svc.UpdateStatus(ctx, alice, task.ID, tasksvc.StatusInProgress, ns)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.Validation))

		var e *apperr.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "nextStep", e.Field)
	}

	updated, err := f.svc.UpdateStatus(ctx, alice, task.ID, tasksvc.StatusInProgress, str("  abc  "))
	require.NoError(t, err)
	assert.Equal(t, tasksvc.StatusInProgress, updated.Status)
	assert.Equal(t, "abc", *updated.NextStep)
}

func TestCompletedAlwaysNormalizes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.seed(t, alice)

	updated, err := f.svc.UpdateStatus(ctx, alice, task.ID, tasksvc.StatusCompleted, str("ignored next step"))
	require.NoError(t, err)
	assert.Nil(t, updated.NextStep)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, fixedNow, *updated.CompletedAt)

	stored := f.tasks.rows[task.ID]
	assert.Nil(t, stored.NextStep)
	assert.NotNil(t, stored.CompletedAt)
}

func TestCancelledClearsBoth(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.seed(t, alice)

	_, err := f.svc.UpdateStatus(ctx, alice, task.ID, tasksvc.StatusCompleted, nil)
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(ctx, alice, task.ID, tasksvc.StatusCancelled, str("whatever"))
	require.NoError(t, err)
	assert.Nil(t, updated.NextStep)
	assert.Nil(t, updated.CompletedAt)
}

func TestReopenCompletedTask(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.seed(t, alice)

	_, err := f.svc.UpdateStatus(ctx, alice, task.ID, tasksvc.StatusCompleted, nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, alice, task.ID, tasksvc.StatusPending, nil)
	assert.True(t, apperr.Is(err, apperr.Validation))

	_, err = f.svc.UpdateTask(ctx, alice, task.ID, tasksvc.TaskPatch{Status: status(tasksvc.StatusPending)})
	assert.True(t, apperr.Is(err, apperr.Validation))

	reopened, err := f.svc.UpdateStatus(ctx, alice, task.ID, tasksvc.StatusPending, str("start over"))
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
	assert.Equal(t, "start over", *reopened.NextStep)
}

func TestUpdateTaskKeepsStoredNextStep(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.seed(t, alice)

	updated, err := f.svc.UpdateTask(ctx, alice, task.ID, tasksvc.TaskPatch{Title: str("Write final report")})
	require.NoError(t, err)
	assert.Equal(t, "Write final report", updated.Title)
	assert.Equal(t, "collect numbers", *updated.NextStep)
}

func TestUpdateTaskDueDate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.seed(t, alice)

	due := fixedNow.Add(48 * time.Hour)
	updated, err := f.svc.UpdateTask(ctx, alice, task.ID, tasksvc.TaskPatch{DueDate: tasksvc.OptionalTime{Set: true, Time: &due}})
	require.NoError(t, err)
	require.NotNil(t, updated.DueDate)

	updated, err = f.svc.UpdateTask(ctx, alice, task.ID, tasksvc.TaskPatch{Title: str("Other title")})
	require.NoError(t, err)
	assert.NotNil(t, updated.DueDate)

	updated, err = f.svc.UpdateTask(ctx, alice, task.ID, tasksvc.TaskPatch{DueDate: tasksvc.OptionalTime{Set: true}})
	require.NoError(t, err)
	assert.Nil(t, updated.DueDate)
}

func TestEmployeeCannotTouchOthersTasks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.seed(t, alice)

	_, err := f.svc.UpdateTask(ctx, bob, task.ID, tasksvc.TaskPatch{Title: str("Hijacked")})
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = f.svc.UpdateStatus(ctx, bob, task.ID, tasksvc.StatusCompleted, nil)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = f.svc.DeleteTask(ctx, bob, task.ID)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	seen, err := f.svc.Task(ctx, bob, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write report", seen.Title)

	assert.Equal(t, 0, f.tasks.saves)

	_, err = f.svc.UpdateTask(ctx, admin, task.ID, tasksvc.TaskPatch{Title: str("Admin edit")})
	assert.NoError(t, err)

	ok, err := f.svc.DeleteTask(ctx, admin, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReassignIsAdminOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.seed(t, alice)

	_, err := f.svc.UpdateTask(ctx, alice, task.ID, tasksvc.TaskPatch{OwnerID: &bob.AccountID})
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	assert.Equal(t, alice.AccountID, f.tasks.rows[task.ID].OwnerID)

	same := alice.AccountID
	_, err = f.svc.UpdateTask(ctx, alice, task.ID, tasksvc.TaskPatch{OwnerID: &same})
	assert.NoError(t, err)

	updated, err := f.svc.UpdateTask(ctx, admin, task.ID, tasksvc.TaskPatch{OwnerID: &bob.AccountID})
	require.NoError(t, err)
	assert.Equal(t, bob.AccountID, updated.OwnerID)

	inactive := uint64(4)
	_, err = f.svc.UpdateTask(ctx, admin, task.ID, tasksvc.TaskPatch{OwnerID: &inactive})
	assert.Equal(t, tasksvc.ErrOwnerInactive, err)
}

func TestMissingTaskIsNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.UpdateStatus(context.Background(), bob, 99, tasksvc.StatusCompleted, nil)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestEmployeesSeeAllTasks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seed(t, alice)
	f.seed(t, bob)

	page, err := f.svc.Tasks(ctx, alice, tasksvc.Filter{})
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 2)
	assert.Equal(t, 1, page.Pagination.TotalPages)
	assert.Equal(t, tasksvc.DefaultPageSize, page.Pagination.Limit)

	page, err = f.svc.Tasks(ctx, alice, tasksvc.Filter{OwnerID: bob.AccountID})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, bob.AccountID, page.Tasks[0].OwnerID)

	owned, err := f.svc.TasksByOwner(ctx, alice, bob.AccountID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, bob.AccountID, owned[0].OwnerID)

	mine, err := f.svc.MyTasks(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, alice.AccountID, mine[0].OwnerID)

	_, err = f.svc.Tasks(ctx, authsvc.Auth{Role: policy.RoleEmployee}, tasksvc.Filter{})
	assert.Error(t, err)
}

func TestComments(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.seed(t, alice)

	_, err := f.svc.AddComment(ctx, alice, task.ID, "   ")
	assert.Equal(t, tasksvc.ErrCommentEmpty, err)

	driveBy, err := f.svc.AddComment(ctx, bob, task.ID, "drive-by")
	require.NoError(t, err)
	assert.Equal(t, bob.AccountID, driveBy.AuthorID)

	c, err := f.svc.AddComment(ctx, alice, task.ID, " first ")
	require.NoError(t, err)
	assert.Equal(t, "first", c.Content)
	assert.Equal(t, alice.AccountID, c.AuthorID)

	withComments, err := f.svc.Task(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.Len(t, withComments.Comments, 2)

	listed, err := f.svc.Comments(ctx, bob, task.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	_, err = f.svc.DeleteComment(ctx, bob, task.ID, c.ID)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = f.svc.DeleteComment(ctx, alice, task.ID, driveBy.ID)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	ok, err := f.svc.DeleteComment(ctx, bob, task.ID, driveBy.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.DeleteComment(ctx, alice, task.ID+1, c.ID)
	assert.Equal(t, tasksvc.ErrCommentMismatch, err)

	ok, err = f.svc.DeleteComment(ctx, admin, task.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDashboardIsAdminOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.seed(t, alice)
	f.seed(t, alice)
	_, err := f.svc.UpdateStatus(ctx, alice, task.ID, tasksvc.StatusCompleted, nil)
	require.NoError(t, err)

	_, err = f.svc.Stats(ctx, alice)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	_, err = f.svc.Overview(ctx, alice)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	overview, err := f.svc.Overview(ctx, admin)
	require.NoError(t, err)
	for _, o := range overview {
		if o.ID == alice.AccountID {
			assert.Equal(t, 2, o.Stats.Total)
			assert.Equal(t, 1, o.Stats.Completed)
			assert.Equal(t, 50, o.Stats.CompletionRate)
		}
	}
}

func TestTransitionTable(t *testing.T) {
	earlier := fixedNow.Add(-time.Hour)
	completed := tasksvc.Task{Status: tasksvc.StatusCompleted, CompletedAt: &earlier}

	for _, tc := range []struct {
		name     string
		task     tasksvc.Task
		to       tasksvc.Status
		nextStep *string
		wantErr  error
		check    func(t *testing.T, got tasksvc.Task)
	}{
		{
			name:    "unknown status",
			to:      tasksvc.Status("ARCHIVED"),
			wantErr: tasksvc.ErrInvalidArgument,
		},
		{
			name:     "blank next step",
			to:       tasksvc.StatusPending,
			nextStep: str(" \t "),
			wantErr:  tasksvc.ErrNextStepRequired,
		},
		{
			name: "completed stays completed",
			task: completed,
			to:   tasksvc.StatusCompleted,
			check: func(t *testing.T, got tasksvc.Task) {
				assert.Equal(t, earlier, *got.CompletedAt)
			},
		},
		{
			name:     "reopen clears completion",
			task:     completed,
			to:       tasksvc.StatusInProgress,
			nextStep: str("next"),
			check: func(t *testing.T, got tasksvc.Task) {
				assert.Nil(t, got.CompletedAt)
				assert.Equal(t, tasksvc.StatusInProgress, got.Status)
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Transition(tc.task, tc.task.Status, tc.to, tc.nextStep, fixedNow)
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, got)
		})
	}
}

func TestTransitionRejectsLongNextStep(t *testing.T) {
	long := make([]rune, maxNextStep+1)
	for i := range long {
		long[i] = 'x'
	}
	s := string(long)

	_, err := Transition(tasksvc.Task{}, "", tasksvc.StatusPending, &s, fixedNow)
	assert.Equal(t, tasksvc.ErrNextStepTooLong, err)
}
