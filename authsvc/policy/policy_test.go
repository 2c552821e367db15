package policy

import (
	"encoding/json"
	"testing"

	"github.com/ichigozero/taskdesk/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		role  Role
		req   uint64
		owner uint64
		op    Operation
		want  Decision
	}{
		{"admin updates any task", RoleAdmin, 1, 2, TaskUpdate, Allow},
		{"admin reassigns", RoleAdmin, 1, 2, TaskReassign, Allow},
		{"admin deletes account", RoleAdmin, 1, 9, AccountDelete, Allow},
		{"admin views dashboard", RoleAdmin, 1, 0, DashboardView, Allow},
		{"owner updates own task", RoleEmployee, 3, 3, TaskUpdate, Allow},
		{"owner deletes own task", RoleEmployee, 3, 3, TaskDelete, Allow},
		{"author deletes own comment", RoleEmployee, 3, 3, CommentDelete, Allow},
		{"employee updates foreign task", RoleEmployee, 3, 4, TaskUpdate, Deny},
		{"employee deletes foreign task", RoleEmployee, 3, 4, TaskDelete, Deny},
		{"employee reads foreign task", RoleEmployee, 3, 4, TaskRead, Allow},
		{"employee comments on foreign task", RoleEmployee, 3, 4, CommentCreate, Allow},
		{"zero requester never reads", RoleEmployee, 0, 4, TaskRead, Deny},
		{"employee deletes foreign comment", RoleEmployee, 3, 4, CommentDelete, Deny},
		{"employee reassigns own task", RoleEmployee, 3, 3, TaskReassign, Deny},
		{"employee creates account", RoleEmployee, 3, 3, AccountCreate, Deny},
		{"employee toggles own account", RoleEmployee, 3, 3, AccountToggle, Deny},
		{"employee deletes account", RoleEmployee, 3, 5, AccountDelete, Deny},
		{"employee views dashboard", RoleEmployee, 3, 3, DashboardView, Deny},
		{"employee views own account", RoleEmployee, 3, 3, AccountRead, Allow},
		{"employee views other account", RoleEmployee, 3, 4, AccountRead, Deny},
		{"zero requester never owns", RoleEmployee, 0, 0, TaskUpdate, Deny},
		{"unknown role", Role("GUEST"), 3, 3, TaskRead, Deny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.role, tt.req, tt.owner, tt.op))
		})
	}
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	err := Authorize(RoleEmployee, 1, 2, TaskDelete)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	assert.NoError(t, Authorize(RoleAdmin, 1, 2, TaskDelete))
}

func TestRoleUnmarshalRejectsUnknown(t *testing.T) {
	var r Role
	require.NoError(t, json.Unmarshal([]byte(`"ADMIN"`), &r))
	assert.Equal(t, RoleAdmin, r)

	err := json.Unmarshal([]byte(`"ROOT"`), &r)
	assert.True(t, apperr.Is(err, apperr.Validation))
}
