package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ichigozero/taskdesk/tasksvc"
	"github.com/ichigozero/taskdesk/usersvc"
)

func (a *app) json() bool { return a.output == "json" }

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func table(w io.Writer, header string, rows func(tw io.Writer)) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	return tw.Flush()
}

func (a *app) printAccount(w io.Writer, acc usersvc.Account) error {
	if a.json() {
		return printJSON(w, acc)
	}
	return a.printAccounts(w, []usersvc.Account{acc})
}

func (a *app) printAccounts(w io.Writer, accounts []usersvc.Account) error {
	if a.json() {
		return printJSON(w, accounts)
	}
	return table(w, "ID\tNAME\tEMAIL\tROLE\tDEPARTMENT\tACTIVE\tTASKS", func(tw io.Writer) {
		for _, acc := range accounts {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\t%d\n",
				acc.ID, acc.Name, acc.Email, acc.Role, acc.Department, acc.Active, acc.TaskCount)
		}
	})
}

func (a *app) printTasks(w io.Writer, tasks []tasksvc.Task) error {
	if a.json() {
		return printJSON(w, tasks)
	}
	return table(w, "ID\tSTATUS\tPRIORITY\tOWNER\tDUE\tTITLE\tNEXT STEP", func(tw io.Writer) {
		for _, t := range tasks {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
				t.ID, t.Status, t.Priority, t.OwnerID, date(t.DueDate), t.Title, deref(t.NextStep))
		}
	})
}

func (a *app) printTask(w io.Writer, t tasksvc.Task) error {
	if a.json() {
		return printJSON(w, t)
	}
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%d\n", t.ID)
	fmt.Fprintf(tw, "Title\t%s\n", t.Title)
	fmt.Fprintf(tw, "Status\t%s\n", t.Status)
	fmt.Fprintf(tw, "Priority\t%s\n", t.Priority)
	fmt.Fprintf(tw, "Next step\t%s\n", deref(t.NextStep))
	fmt.Fprintf(tw, "Due\t%s\n", date(t.DueDate))
	fmt.Fprintf(tw, "Completed\t%s\n", date(t.CompletedAt))
	fmt.Fprintf(tw, "Owner\t%d\n", t.OwnerID)
	if t.Description != "" {
		fmt.Fprintf(tw, "Description\t%s\n", t.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(t.Comments) > 0 {
		fmt.Fprintln(w)
		return a.printComments(w, t.Comments)
	}
	return nil
}

func (a *app) printComments(w io.Writer, comments []tasksvc.Comment) error {
	if a.json() {
		return printJSON(w, comments)
	}
	return table(w, "ID\tAUTHOR\tCREATED\tCONTENT", func(tw io.Writer) {
		for _, c := range comments {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", c.ID, c.AuthorID, c.CreatedAt.Format(time.RFC3339), c.Content)
		}
	})
}

func (a *app) printStats(w io.Writer, s tasksvc.Stats) error {
	if a.json() {
		return printJSON(w, s)
	}
	return table(w, "TOTAL\tPENDING\tIN PROGRESS\tCOMPLETED\tCANCELLED\tURGENT\tOVERDUE", func(tw io.Writer) {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			s.Total, s.Pending, s.InProgress, s.Completed, s.Cancelled, s.Urgent, s.Overdue)
	})
}

func (a *app) printOverview(w io.Writer, overview []tasksvc.OwnerOverview) error {
	if a.json() {
		return printJSON(w, overview)
	}
	return table(w, "ID\tNAME\tDEPARTMENT\tTOTAL\tPENDING\tIN PROGRESS\tCOMPLETED\tOVERDUE\tRATE", func(tw io.Writer) {
		for _, o := range overview {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d%%\n",
				o.ID, o.Name, o.Department, o.Stats.Total, o.Stats.Pending, o.Stats.InProgress,
				o.Stats.Completed, o.Stats.Overdue, o.Stats.CompletionRate)
		}
	})
}

func date(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
