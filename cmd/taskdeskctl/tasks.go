package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ichigozero/taskdesk/authsvc"
	"github.com/ichigozero/taskdesk/tasksvc"
	"github.com/ichigozero/taskdesk/tasksvc/pkg/taskservice"
	"github.com/spf13/cobra"
)

func newTasksCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "List and change tasks and their comments",
	}
	cmd.AddCommand(
		newTasksListCommand(a),
		newTasksMyCommand(a),
		newTasksOwnerCommand(a),
		newTasksShowCommand(a),
		newTasksCreateCommand(a),
		newTasksUpdateCommand(a),
		newTasksStatusCommand(a),
		newTasksDeleteCommand(a),
		newCommentsCommand(a),
		newCommentCommand(a),
		newUncommentCommand(a),
	)
	return cmd
}

// taskRun wraps a task command body with the service and a bounded context.
func taskRun(a *app, run func(cmd *cobra.Command, svc taskservice.Service, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, err := a.taskService()
		if err != nil {
			return err
		}
		ctx, cancel := a.context(cmd)
		defer cancel()
		cmd.SetContext(ctx)
		return run(cmd, svc, args)
	}
}

func newTasksListCommand(a *app) *cobra.Command {
	var (
		statuses, priorities []string
		f                    tasksvc.Filter
		dueBefore, dueAfter  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks visible to the signed in account",
		Args:  cobra.NoArgs,
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, _ []string) error {
			for _, s := range statuses {
				f.Statuses = append(f.Statuses, tasksvc.Status(strings.ToUpper(s)))
			}
			for _, p := range priorities {
				f.Priorities = append(f.Priorities, tasksvc.Priority(strings.ToUpper(p)))
			}
			var err error
			if f.DueBefore, err = parseDate(dueBefore); err != nil {
				return err
			}
			if f.DueAfter, err = parseDate(dueAfter); err != nil {
				return err
			}

			page, err := svc.Tasks(cmd.Context(), authsvc.Auth{}, f)
			if err != nil {
				return err
			}
			if a.json() {
				return printJSON(cmd.OutOrStdout(), page)
			}
			if err := a.printTasks(cmd.OutOrStdout(), page.Tasks); err != nil {
				return err
			}
			p := page.Pagination
			fmt.Fprintf(cmd.OutOrStdout(), "\npage %d of %d, %d task(s)\n", p.Page, p.TotalPages, p.Total)
			return nil
		}),
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&statuses, "status", nil, "filter by status, comma separated")
	flags.StringSliceVar(&priorities, "priority", nil, "filter by priority, comma separated")
	flags.Uint64Var(&f.OwnerID, "owner", 0, "filter by owner id")
	flags.StringVar(&f.Search, "search", "", "search title, description and next step")
	flags.StringVar(&dueBefore, "due-before", "", "due on or before this date")
	flags.StringVar(&dueAfter, "due-after", "", "due on or after this date")
	flags.StringVar(&f.SortBy, "sort", "", "sort column: createdAt, updatedAt, dueDate, priority, status or title")
	flags.StringVar(&f.SortOrder, "order", "", "asc or desc")
	flags.IntVar(&f.Page, "page", 1, "page number")
	flags.IntVar(&f.Limit, "limit", tasksvc.DefaultPageSize, "page size")
	return cmd
}

func newTasksMyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "my",
		Short: "List the tasks owned by the signed in account",
		Args:  cobra.NoArgs,
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, _ []string) error {
			tasks, err := svc.MyTasks(cmd.Context(), authsvc.Auth{})
			if err != nil {
				return err
			}
			return a.printTasks(cmd.OutOrStdout(), tasks)
		}),
	}
}

func newTasksOwnerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "owner ACCOUNT_ID",
		Short: "List the tasks owned by an account",
		Args:  cobra.ExactArgs(1),
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			tasks, err := svc.TasksByOwner(cmd.Context(), authsvc.Auth{}, id)
			if err != nil {
				return err
			}
			return a.printTasks(cmd.OutOrStdout(), tasks)
		}),
	}
}

func newTasksShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show TASK_ID",
		Short: "Show a task with its comments",
		Args:  cobra.ExactArgs(1),
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			t, err := svc.Task(cmd.Context(), authsvc.Auth{}, id)
			if err != nil {
				return err
			}
			return a.printTask(cmd.OutOrStdout(), t)
		}),
	}
}

func newTasksCreateCommand(a *app) *cobra.Command {
	var (
		in                    tasksvc.TaskInput
		status, priority, due string
		nextStep              string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, _ []string) error {
			in.Status = tasksvc.Status(strings.ToUpper(status))
			in.Priority = tasksvc.Priority(strings.ToUpper(priority))
			if cmd.Flags().Changed("next-step") {
				in.NextStep = &nextStep
			}
			var err error
			if in.DueDate, err = parseDate(due); err != nil {
				return err
			}

			t, err := svc.CreateTask(cmd.Context(), authsvc.Auth{}, in)
			if err != nil {
				return err
			}
			return a.printTask(cmd.OutOrStdout(), t)
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&in.Title, "title", "", "title, at least 3 characters")
	flags.StringVar(&in.Description, "description", "", "description")
	flags.StringVar(&status, "status", string(tasksvc.StatusPending), "initial status")
	flags.StringVar(&priority, "priority", string(tasksvc.PriorityMedium), "LOW, MEDIUM, HIGH or URGENT")
	flags.StringVar(&nextStep, "next-step", "", "next step, required while the task is open")
	flags.StringVar(&due, "due", "", "due date, YYYY-MM-DD or RFC 3339")
	flags.Uint64Var(&in.OwnerID, "owner", 0, "owner account id, defaults to yourself")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newTasksUpdateCommand(a *app) *cobra.Command {
	var (
		title, description, status, priority, nextStep, due string
		owner                                               uint64
		clearDue                                            bool
	)
	cmd := &cobra.Command{
		Use:   "update TASK_ID",
		Short: "Change fields of a task; only the flags given are sent",
		Args:  cobra.ExactArgs(1),
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var p tasksvc.TaskPatch
			changed := cmd.Flags().Changed
			if changed("title") {
				p.Title = &title
			}
			if changed("description") {
				p.Description = &description
			}
			if changed("status") {
				s := tasksvc.Status(strings.ToUpper(status))
				p.Status = &s
			}
			if changed("priority") {
				pr := tasksvc.Priority(strings.ToUpper(priority))
				p.Priority = &pr
			}
			if changed("next-step") {
				p.NextStep = &nextStep
			}
			if changed("owner") {
				p.OwnerID = &owner
			}
			switch {
			case clearDue:
				p.DueDate = tasksvc.OptionalTime{Set: true}
			case changed("due"):
				t, err := parseDate(due)
				if err != nil {
					return err
				}
				p.DueDate = tasksvc.OptionalTime{Set: true, Time: t}
			}

			t, err := svc.UpdateTask(cmd.Context(), authsvc.Auth{}, id, p)
			if err != nil {
				return err
			}
			return a.printTask(cmd.OutOrStdout(), t)
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "title")
	flags.StringVar(&description, "description", "", "description")
	flags.StringVar(&status, "status", "", "PENDING, IN_PROGRESS, COMPLETED or CANCELLED")
	flags.StringVar(&priority, "priority", "", "LOW, MEDIUM, HIGH or URGENT")
	flags.StringVar(&nextStep, "next-step", "", "next step")
	flags.StringVar(&due, "due", "", "due date, YYYY-MM-DD or RFC 3339")
	flags.BoolVar(&clearDue, "clear-due", false, "remove the due date")
	flags.Uint64Var(&owner, "owner", 0, "reassign to this account id (admin only)")
	return cmd
}

func newTasksStatusCommand(a *app) *cobra.Command {
	var nextStep string
	cmd := &cobra.Command{
		Use:   "status TASK_ID STATUS",
		Short: "Move a task to another status",
		Long: "Move a task to another status. Moving to PENDING or IN_PROGRESS\n" +
			"requires --next-step; COMPLETED and CANCELLED clear it.",
		Args: cobra.ExactArgs(2),
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var next *string
			if cmd.Flags().Changed("next-step") {
				next = &nextStep
			}

			t, err := svc.UpdateStatus(cmd.Context(), authsvc.Auth{}, id, tasksvc.Status(strings.ToUpper(args[1])), next)
			if err != nil {
				return err
			}
			return a.printTask(cmd.OutOrStdout(), t)
		}),
	}
	cmd.Flags().StringVar(&nextStep, "next-step", "", "next step for an open status")
	return cmd
}

func newTasksDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TASK_ID",
		Short: "Delete a task and its comments",
		Args:  cobra.ExactArgs(1),
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := svc.DeleteTask(cmd.Context(), authsvc.Auth{}, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d deleted\n", id)
			return nil
		}),
	}
}

func newCommentsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "comments TASK_ID",
		Short: "List the comments of a task",
		Args:  cobra.ExactArgs(1),
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			comments, err := svc.Comments(cmd.Context(), authsvc.Auth{}, id)
			if err != nil {
				return err
			}
			return a.printComments(cmd.OutOrStdout(), comments)
		}),
	}
}

func newCommentCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "comment TASK_ID CONTENT",
		Short: "Add a comment to a task",
		Args:  cobra.ExactArgs(2),
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := svc.AddComment(cmd.Context(), authsvc.Auth{}, id, args[1])
			if err != nil {
				return err
			}
			return a.printComments(cmd.OutOrStdout(), []tasksvc.Comment{c})
		}),
	}
}

func newUncommentCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uncomment TASK_ID COMMENT_ID",
		Short: "Delete a comment",
		Args:  cobra.ExactArgs(2),
		RunE: taskRun(a, func(cmd *cobra.Command, svc taskservice.Service, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			commentID, err := parseID(args[1])
			if err != nil {
				return err
			}
			if _, err := svc.DeleteComment(cmd.Context(), authsvc.Auth{}, taskID, commentID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "comment %d deleted\n", commentID)
			return nil
		}),
	}
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. An empty
// string yields nil.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q, use YYYY-MM-DD or RFC 3339", s)
}
