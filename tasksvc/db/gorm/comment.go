package gorm

import (
	"context"
	"errors"

	"github.com/ichigozero/taskdesk/tasksvc"
	stdgorm "gorm.io/gorm"
)

type commentRepository struct {
	db *stdgorm.DB
}

func NewCommentRepository(db *stdgorm.DB) tasksvc.CommentRepository {
	return &commentRepository{db}
}

func (c commentRepository) Create(ctx context.Context, comment *tasksvc.Comment) error {
	return c.db.WithContext(ctx).Create(comment).Error
}

func (c commentRepository) Find(ctx context.Context, id uint64) (tasksvc.Comment, error) {
	var comment tasksvc.Comment
	err := c.db.WithContext(ctx).First(&comment, id).Error
	if errors.Is(err, stdgorm.ErrRecordNotFound) {
		return tasksvc.Comment{}, tasksvc.ErrCommentNotFound
	}
	return comment, err
}

func (c commentRepository) FindByTask(ctx context.Context, taskID uint64) ([]tasksvc.Comment, error) {
	var comments []tasksvc.Comment
	err := c.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error
	return comments, err
}

func (c commentRepository) Delete(ctx context.Context, id uint64) error {
	result := c.db.WithContext(ctx).Delete(&tasksvc.Comment{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tasksvc.ErrCommentNotFound
	}
	return nil
}
