package auth

// Capability is the outcome of checking a credential against a page.
type Capability int

const (
	Denied Capability = iota
	PageScoped
	Admin
)

func (c Capability) String() string {
	switch c {
	case Admin:
		return "admin"
	case PageScoped:
		return "page"
	default:
		return "denied"
	}
}

// Scope groups operations by the capability they need.
type Scope int

const (
	// ScopeContent covers draft, publish, restore and comment operations.
	ScopeContent Scope = iota
	// ScopeLifecycle covers page creation and deletion, secret management and
	// the page list.
	ScopeLifecycle
)

func (s Scope) String() string {
	if s == ScopeLifecycle {
		return "lifecycle"
	}
	return "content"
}

// Permits reports whether c allows an operation in scope s. A PageScoped
// capability is only ever issued for the page it was checked against.
func Permits(c Capability, s Scope) bool {
	switch c {
	case Admin:
		return true
	case PageScoped:
		return s == ScopeContent
	default:
		return false
	}
}
