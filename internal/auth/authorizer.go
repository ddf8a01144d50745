package auth

import (
	"context"

	"github.com/keithlinneman/pageman/internal/cryptoutil"
)

// PageSecrets looks up per-page secrets. ok is false when the page does not
// exist or has no secret.
type PageSecrets interface {
	PageSecret(ctx context.Context, page string) (secret string, ok bool, err error)
}

// Denial reasons reported in Decision.
const (
	ReasonMissing      = "missing_credential"
	ReasonMismatch     = "mismatch"
	ReasonNoPageSecret = "no_page_secret"
)

// Decision is a capability together with the reason a credential was denied.
type Decision struct {
	Capability Capability
	Reason     string
}

type Authorizer struct {
	admin *AdminSecret
	pages PageSecrets
}

func NewAuthorizer(admin *AdminSecret, pages PageSecrets) *Authorizer {
	if admin == nil {
		admin = &AdminSecret{}
	}
	return &Authorizer{admin: admin, pages: pages}
}

// Authorize checks cred against page. An empty page stands for the page list,
// which only the admin may see. Errors come only from the secret lookup.
func (a *Authorizer) Authorize(ctx context.Context, cred, page string) (Capability, error) {
	d, err := a.Decide(ctx, cred, page)
	return d.Capability, err
}

// Decide is Authorize with the denial reason.
//
// Page secrets never equal the admin secret, so the cheaper page comparison
// runs first and a hashed admin secret is only verified when it fails.
func (a *Authorizer) Decide(ctx context.Context, cred, page string) (Decision, error) {
	if cred == "" {
		return Decision{Capability: Denied, Reason: ReasonMissing}, nil
	}

	reason := ReasonMismatch
	if page != "" && a.pages != nil {
		secret, ok, err := a.pages.PageSecret(ctx, page)
		if err != nil {
			return Decision{Capability: Denied}, err
		}
		if ok && cryptoutil.SecretEqual(secret, cred) {
			return Decision{Capability: PageScoped}, nil
		}
		if !ok {
			reason = ReasonNoPageSecret
		}
	}

	if a.admin.Matches(cred) {
		return Decision{Capability: Admin}, nil
	}
	return Decision{Capability: Denied, Reason: reason}, nil
}
