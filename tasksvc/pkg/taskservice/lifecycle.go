package taskservice

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ichigozero/taskdesk/tasksvc"
)

const (
	minNextStep = 3
	maxNextStep = 500
	minTitle    = 3
	maxComment  = 2000
)

// Transition moves task from status from to status to and normalizes the
// fields each status dictates. The returned task always satisfies:
//
//	PENDING, IN_PROGRESS  nextStep set (3..500 runes), completedAt nil
//	COMPLETED             nextStep nil, completedAt set
//	CANCELLED             nextStep nil, completedAt nil
//
// nextStep is only consulted for open targets; terminal targets discard it
// whatever the caller sent. completedAt is stamped with now on entry to
// COMPLETED and kept while the task stays there.
func Transition(task tasksvc.Task, from, to tasksvc.Status, nextStep *string, now time.Time) (tasksvc.Task, error) {
	switch {
	case to.Open():
		ns, err := validNextStep(nextStep)
		if err != nil {
			return tasksvc.Task{}, err
		}
		task.NextStep = ns
		task.CompletedAt = nil
	case to == tasksvc.StatusCompleted:
		task.NextStep = nil
		if from != tasksvc.StatusCompleted || task.CompletedAt == nil {
			t := now
			task.CompletedAt = &t
		}
	case to == tasksvc.StatusCancelled:
		task.NextStep = nil
		task.CompletedAt = nil
	default:
		return tasksvc.Task{}, tasksvc.ErrInvalidArgument
	}

	task.Status = to
	return task, nil
}

// applyPatch merges p into current and runs the transition. An explicit open
// status requires the next step in the same patch; without a status the
// supplied next step, or the stored one, is used.
func applyPatch(current tasksvc.Task, p tasksvc.TaskPatch, now time.Time) (tasksvc.Task, error) {
	next := current

	if p.Title != nil {
		title, err := validTitle(*p.Title)
		if err != nil {
			return tasksvc.Task{}, err
		}
		next.Title = title
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Priority != nil {
		next.Priority = *p.Priority
	}
	if p.DueDate.Set {
		next.DueDate = p.DueDate.Time
	}
	if p.OwnerID != nil {
		next.OwnerID = *p.OwnerID
	}

	target := current.Status
	nextStep := current.NextStep
	switch {
	case p.Status != nil:
		target = *p.Status
		nextStep = p.NextStep
	case p.NextStep != nil:
		nextStep = p.NextStep
	}

	return Transition(next, current.Status, target, nextStep, now)
}

func validNextStep(s *string) (*string, error) {
	if s == nil {
		return nil, tasksvc.ErrNextStepRequired
	}
	v := strings.TrimSpace(*s)
	n := utf8.RuneCountInString(v)
	if n < minNextStep {
		return nil, tasksvc.ErrNextStepRequired
	}
	if n > maxNextStep {
		return nil, tasksvc.ErrNextStepTooLong
	}
	return &v, nil
}

func validTitle(s string) (string, error) {
	v := strings.TrimSpace(s)
	if utf8.RuneCountInString(v) < minTitle {
		return "", tasksvc.ErrTitleTooShort
	}
	return v, nil
}

func validComment(s string) (string, error) {
	v := strings.TrimSpace(s)
	n := utf8.RuneCountInString(v)
	if n == 0 {
		return "", tasksvc.ErrCommentEmpty
	}
	if n > maxComment {
		return "", tasksvc.ErrCommentTooLong
	}
	return v, nil
}
