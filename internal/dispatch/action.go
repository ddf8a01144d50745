// Package dispatch turns an authenticated request into one page engine or
// lifecycle call. Authorization is always decided before the page name,
// the action's existence or its payload are looked at in any way that could
// reveal whether a page exists.
package dispatch

import (
	"github.com/keithlinneman/pageman/internal/auth"
)

// Action names match the form values of the editor.
type Action string

const (
	SaveDraft      Action = "save_draft"
	Publish        Action = "publish"
	LoadToDraft    Action = "restore"
	RestorePublish Action = "restore_publish"
	DeleteVersion  Action = "delete"
	EditComment    Action = "edit_comment"
	CreatePage     Action = "create_page"
	DeletePage     Action = "delete_page"
	GenerateSecret Action = "generate_page_password"
	ResetSecret    Action = "reset_page_password"
)

var scopes = map[Action]auth.Scope{
	SaveDraft:      auth.ScopeContent,
	Publish:        auth.ScopeContent,
	LoadToDraft:    auth.ScopeContent,
	RestorePublish: auth.ScopeContent,
	DeleteVersion:  auth.ScopeContent,
	EditComment:    auth.ScopeContent,
	CreatePage:     auth.ScopeLifecycle,
	DeletePage:     auth.ScopeLifecycle,
	GenerateSecret: auth.ScopeLifecycle,
	ResetSecret:    auth.ScopeLifecycle,
}

// Scope returns the capability scope an action needs. Unknown actions are
// treated as lifecycle operations, so only the admin learns they are unknown.
func (a Action) Scope() auth.Scope {
	if s, ok := scopes[a]; ok {
		return s
	}
	return auth.ScopeLifecycle
}

func (a Action) Known() bool {
	_, ok := scopes[a]
	return ok
}

// Actions lists every known action in a stable order.
func Actions() []Action {
	return []Action{
		SaveDraft, Publish, LoadToDraft, RestorePublish, DeleteVersion, EditComment,
		CreatePage, DeletePage, GenerateSecret, ResetSecret,
	}
}
