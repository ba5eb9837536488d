package rbac

import (
	"context"

	"pagetree/internal/store"
)

type Role string
type Action string

const (
	RoleGuest  Role = "guest"
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionViewPage Action = "view-page"
	ActionEditPage Action = "edit-page"
	ActionEdit     Action = "edit"
	ActionAddPage  Action = "add-page"
)

// Requester identifies who is asking. The zero value is an anonymous guest.
type Requester struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

func Guest() Requester {
	return Requester{Role: RoleGuest}
}

func (r Requester) Authenticated() bool {
	return r.ID != "" && r.Role != RoleGuest && r.Role != ""
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionViewPage || action == ActionEditPage || action == ActionEdit || action == ActionAddPage
	case RoleViewer:
		return action == ActionViewPage
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleGuest, RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

// Policy is the default permission decision: a fixed role matrix, plus
// guest viewing when PublicRead is set.
type Policy struct {
	PublicRead bool
}

func (p Policy) Allow(_ context.Context, requester Requester, action Action, _ store.Page) bool {
	if !requester.Authenticated() {
		return p.PublicRead && action == ActionViewPage
	}
	return Can(requester.Role, action)
}
