// Package policy is the single authorization decision point. Every mutating
// task, comment and account operation asks Decide before touching storage.
package policy

import (
	"encoding/json"
	"fmt"

	"github.com/ichigozero/taskdesk/apperr"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleEmployee Role = "EMPLOYEE"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if !Role(s).Valid() {
		return apperr.Invalid("role", fmt.Sprintf("unknown role %q", s))
	}
	*r = Role(s)
	return nil
}

type Operation int

const (
	TaskRead Operation = iota
	TaskCreate
	TaskUpdate
	TaskDelete
	TaskReassign
	CommentCreate
	CommentDelete
	AccountCreate
	AccountUpdate
	AccountToggle
	AccountDelete
	DashboardView
	AccountRead
)

var operationNames = map[Operation]string{
	TaskRead:      "task_read",
	TaskCreate:    "task_create",
	TaskUpdate:    "task_update",
	TaskDelete:    "task_delete",
	TaskReassign:  "task_reassign",
	CommentCreate: "comment_create",
	CommentDelete: "comment_delete",
	AccountCreate: "account_create",
	AccountUpdate: "account_update",
	AccountToggle: "account_toggle",
	AccountDelete: "account_delete",
	DashboardView: "dashboard_view",
	AccountRead:   "account_read",
}

func (op Operation) String() string {
	if s, ok := operationNames[op]; ok {
		return s
	}
	return fmt.Sprintf("operation(%d)", int(op))
}

type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

// Decide answers whether requesterID, acting with role, may perform op on a
// resource controlled by ownerID. For comments ownerID is the author. For
// AccountRead it is the account itself. Any employee may read any task and
// comment on it; ownerID is ignored for those two.
func Decide(role Role, requesterID, ownerID uint64, op Operation) Decision {
	if role == RoleAdmin {
		return Allow
	}
	if role != RoleEmployee {
		return Deny
	}

	switch op {
	case TaskRead, CommentCreate:
		return Decision(requesterID != 0)
	case TaskCreate, TaskUpdate, TaskDelete, CommentDelete, AccountRead:
		return Decision(requesterID != 0 && requesterID == ownerID)
	}
	// Reassignment, account management and dashboards are admin-only.
	return Deny
}

// Authorize wraps Decide and returns a Forbidden error on deny.
func Authorize(role Role, requesterID, ownerID uint64, op Operation) error {
	if Decide(role, requesterID, ownerID, op) == Allow {
		return nil
	}
	return apperr.Newf(apperr.Forbidden, "not allowed to %s", describe(op))
}

func describe(op Operation) string {
	switch op {
	case TaskRead:
		return "view this task"
	case TaskCreate:
		return "create tasks for another account"
	case TaskUpdate:
		return "edit this task"
	case TaskDelete:
		return "delete this task"
	case TaskReassign:
		return "reassign this task"
	case CommentCreate:
		return "comment on this task"
	case CommentDelete:
		return "delete this comment"
	case AccountCreate, AccountUpdate, AccountToggle, AccountDelete:
		return "manage accounts"
	case DashboardView:
		return "view the dashboard"
	case AccountRead:
		return "view this account"
	}
	return "perform this action"
}
