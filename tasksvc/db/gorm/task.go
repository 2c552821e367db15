package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ichigozero/taskdesk/tasksvc"
	stdgorm "gorm.io/gorm"
)

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"dueDate":   "due_date",
	"title":     "title",
	"status":    "status",
	"priority":  priorityRank,
}

const priorityRank = "CASE priority WHEN 'URGENT' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END"

type taskRepository struct {
	db *stdgorm.DB
}

func NewTaskRepository(db *stdgorm.DB) tasksvc.TaskRepository {
	return &taskRepository{db}
}

func (t taskRepository) Create(ctx context.Context, task *tasksvc.Task) error {
	return t.db.WithContext(ctx).Create(task).Error
}

func (t taskRepository) Find(ctx context.Context, id uint64) (tasksvc.Task, error) {
	var task tasksvc.Task
	err := t.db.WithContext(ctx).First(&task, id).Error
	if errors.Is(err, stdgorm.ErrRecordNotFound) {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	if err != nil {
		return tasksvc.Task{}, err
	}

	if err := t.attachCommentCounts(ctx, []*tasksvc.Task{&task}); err != nil {
		return tasksvc.Task{}, err
	}
	return task, nil
}

func (t taskRepository) FindAll(ctx context.Context, f tasksvc.Filter) ([]tasksvc.Task, int64, error) {
	q := t.db.WithContext(ctx).Model(&tasksvc.Task{})

	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if len(f.Priorities) > 0 {
		q = q.Where("priority IN ?", f.Priorities)
	}
	if f.OwnerID != 0 {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where(
			"(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(COALESCE(next_step, '')) LIKE ?)",
			like, like, like,
		)
	}
	if f.DueBefore != nil {
		q = q.Where("due_date <= ?", *f.DueBefore)
	}
	if f.DueAfter != nil {
		q = q.Where("due_date >= ?", *f.DueAfter)
	}

	q = q.Session(&stdgorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := f.Bounds()
	var tasks []tasksvc.Task
	err := q.Order(orderClause(f.SortBy, f.SortOrder)).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, err
	}

	if err := t.attachCommentCounts(ctx, pointers(tasks)); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (t taskRepository) FindByOwner(ctx context.Context, ownerID uint64) ([]tasksvc.Task, error) {
	var tasks []tasksvc.Task
	err := t.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order(priorityRank + " DESC").
		Order("created_at DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	if err := t.attachCommentCounts(ctx, pointers(tasks)); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (t taskRepository) Save(ctx context.Context, task *tasksvc.Task) error {
	result := t.db.WithContext(ctx).Model(task).Select("*").Omit("created_at").Updates(task)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tasksvc.ErrTaskNotFound
	}
	return nil
}

func (t taskRepository) Delete(ctx context.Context, id uint64) error {
	return t.db.WithContext(ctx).Transaction(func(tx *stdgorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&tasksvc.Comment{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&tasksvc.Task{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return tasksvc.ErrTaskNotFound
		}
		return nil
	})
}

func (t taskRepository) CountByOwner(ctx context.Context, ownerID uint64) (int64, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&tasksvc.Task{}).Where("owner_id = ?", ownerID).Count(&n).Error
	return n, err
}

func (t taskRepository) CountByOwners(ctx context.Context) (map[uint64]int64, error) {
	var rows []struct {
		OwnerID uint64
		N       int64
	}
	err := t.db.WithContext(ctx).
		Model(&tasksvc.Task{}).
		Select("owner_id, COUNT(*) AS n").
		Group("owner_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint64]int64, len(rows))
	for _, r := range rows {
		counts[r.OwnerID] = r.N
	}
	return counts, nil
}

func (t taskRepository) Stats(ctx context.Context, now time.Time) (tasksvc.Stats, error) {
	var rows []struct {
		Status tasksvc.Status
		N      int64
	}
	err := t.db.WithContext(ctx).
		Model(&tasksvc.Task{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return tasksvc.Stats{}, err
	}

	var s tasksvc.Stats
	for _, r := range rows {
		s.Total += r.N
		switch r.Status {
		case tasksvc.StatusPending:
			s.Pending = r.N
		case tasksvc.StatusInProgress:
			s.InProgress = r.N
		case tasksvc.StatusCompleted:
			s.Completed = r.N
		case tasksvc.StatusCancelled:
			s.Cancelled = r.N
		}
	}

	err = t.db.WithContext(ctx).Model(&tasksvc.Task{}).
		Where("priority = ? AND status <> ?", tasksvc.PriorityUrgent, tasksvc.StatusCompleted).
		Count(&s.Urgent).Error
	if err != nil {
		return tasksvc.Stats{}, err
	}

	err = t.db.WithContext(ctx).Model(&tasksvc.Task{}).
		Where("due_date < ? AND status NOT IN ?", now, []tasksvc.Status{tasksvc.StatusCompleted, tasksvc.StatusCancelled}).
		Count(&s.Overdue).Error
	if err != nil {
		return tasksvc.Stats{}, err
	}
	return s, nil
}

func (t taskRepository) attachCommentCounts(ctx context.Context, tasks []*tasksvc.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]uint64, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}

	var rows []struct {
		TaskID uint64
		N      int64
	}
	err := t.db.WithContext(ctx).
		Model(&tasksvc.Comment{}).
		Select("task_id, COUNT(*) AS n").
		Where("task_id IN ?", ids).
		Group("task_id").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("count comments: %w", err)
	}

	counts := make(map[uint64]int64, len(rows))
	for _, r := range rows {
		counts[r.TaskID] = r.N
	}
	for _, task := range tasks {
		task.CommentCount = counts[task.ID]
	}
	return nil
}

func orderClause(sortBy, sortOrder string) string {
	col, ok := sortColumns[sortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}
	return col + " " + dir
}

func pointers(tasks []tasksvc.Task) []*tasksvc.Task {
	out := make([]*tasksvc.Task, len(tasks))
	for i := range tasks {
		out[i] = &tasks[i]
	}
	return out
}
