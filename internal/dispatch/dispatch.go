package dispatch

import (
	"context"

	"github.com/keithlinneman/pageman/internal/auth"
	"github.com/keithlinneman/pageman/internal/log"
	"github.com/keithlinneman/pageman/internal/pages"
	"github.com/keithlinneman/pageman/internal/xerrors"
)

// Payload carries the action specific fields. Content and NewComment are nil
// when the request had no such field at all; an empty NewComment removes the
// comment.
type Payload struct {
	Content     []byte
	Comment     string
	File        string
	NewComment  *string
	NewPageName string
}

// Invocation is one requested action. Page is the raw target page name; for
// create_page the name comes from Payload.NewPageName instead.
type Invocation struct {
	Action  Action
	Page    string
	Payload Payload
}

// Outcome reports what an action produced.
type Outcome struct {
	Action  Action            `json:"action"`
	Page    string            `json:"page,omitempty"`
	Version pages.VersionID   `json:"version,omitempty"`
	Created bool              `json:"created,omitempty"`
	Secret  string            `json:"secret,omitempty"`
	Trash   *pages.TrashEntry `json:"trash,omitempty"`
	Role    string            `json:"role"`
}

// DenialObserver is implemented by the metrics package.
type DenialObserver interface {
	IncAuthDenied(reason string)
}

// ReasonScope marks a valid page credential used for a lifecycle action.
const ReasonScope = "scope"

type Dispatcher struct {
	authz  *auth.Authorizer
	engine *pages.Engine
	life   *pages.Lifecycle
	logger log.Logger
	denied DenialObserver
}

type Options struct {
	Authorizer *auth.Authorizer
	Engine     *pages.Engine
	Lifecycle  *pages.Lifecycle
	Logger     log.Logger
	Denials    DenialObserver
}

func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Dispatcher{
		authz:  opts.Authorizer,
		engine: opts.Engine,
		life:   opts.Lifecycle,
		logger: opts.Logger,
		denied: opts.Denials,
	}
}

// Authorize resolves the raw page name and checks cred for scope. On success
// it returns the sanitized page name, which is empty when the raw name
// sanitizes to nothing and the caller is the admin.
func (d *Dispatcher) Authorize(ctx context.Context, cred, rawPage string, scope auth.Scope) (string, auth.Capability, error) {
	page, nameErr := pages.SanitizeName(rawPage)
	if rawPage == "" {
		nameErr = nil
	}

	target := page
	if nameErr != nil {
		target = ""
	}
	dec, err := d.authz.Decide(ctx, cred, target)
	if err != nil {
		return "", auth.Denied, xerrors.Mark(xerrors.Wrap(err, "authorize"), pages.ErrIO)
	}
	if dec.Capability == auth.Denied || !auth.Permits(dec.Capability, scope) {
		reason := dec.Reason
		if dec.Capability != auth.Denied {
			reason = ReasonScope
		}
		d.deny(ctx, reason, scope, target)
		return "", dec.Capability, xerrors.Markf(pages.ErrUnauthorized, "not authorized")
	}
	if nameErr != nil {
		return "", dec.Capability, nameErr
	}
	return page, dec.Capability, nil
}

func (d *Dispatcher) deny(ctx context.Context, reason string, scope auth.Scope, page string) {
	if d.denied != nil {
		d.denied.IncAuthDenied(reason)
	}
	d.logger.Info(ctx, "request denied", "reason", reason, "scope", scope.String(), "page", page)
}

// Dispatch authorizes inv and runs it.
func (d *Dispatcher) Dispatch(ctx context.Context, cred string, inv Invocation) (Outcome, error) {
	out := Outcome{Action: inv.Action}

	raw := inv.Page
	if inv.Action == CreatePage {
		// creating needs no existing page; authorize against the page list
		raw = ""
	}
	page, capability, err := d.Authorize(ctx, cred, raw, inv.Action.Scope())
	if err != nil {
		return out, err
	}
	out.Role = capability.String()
	if !inv.Action.Known() {
		return out, xerrors.Markf(pages.ErrInvalidInput, "unknown action %q", string(inv.Action))
	}
	if inv.Action != CreatePage && page == "" {
		return out, xerrors.Markf(pages.ErrInvalidInput, "page name required")
	}
	out.Page = page

	switch inv.Action {
	case SaveDraft:
		err = d.engine.SaveDraft(ctx, page, inv.Payload.Content)

	case Publish:
		out.Version, err = d.engine.Publish(ctx, page, inv.Payload.Content, inv.Payload.Comment)

	case LoadToDraft:
		var ref pages.SourceRef
		if ref, err = pages.ParseSourceRef(inv.Payload.File); err == nil {
			err = d.engine.LoadToDraft(ctx, page, ref)
			out.Version = ref.Version
		}

	case RestorePublish:
		if out.Version, err = pages.ParseVersionID(inv.Payload.File); err == nil {
			err = d.engine.RestoreToPublished(ctx, page, out.Version)
		}

	case DeleteVersion:
		if out.Version, err = pages.ParseVersionID(inv.Payload.File); err == nil {
			err = d.engine.DeleteVersion(ctx, page, out.Version)
		}

	case EditComment:
		if inv.Payload.NewComment == nil {
			return out, xerrors.Markf(pages.ErrInvalidInput, "comment payload required")
		}
		if out.Version, err = pages.ParseVersionID(inv.Payload.File); err == nil {
			err = d.engine.EditComment(ctx, page, out.Version, *inv.Payload.NewComment)
		}

	case CreatePage:
		out.Page, out.Created, err = d.life.CreatePage(ctx, inv.Payload.NewPageName)

	case DeletePage:
		var entry pages.TrashEntry
		if entry, err = d.life.DeletePage(ctx, page); err == nil {
			out.Trash = &entry
		}

	case GenerateSecret:
		out.Secret, err = d.life.GenerateSecret(ctx, page)

	case ResetSecret:
		err = d.life.ResetSecret(ctx, page)
	}
	return out, err
}
