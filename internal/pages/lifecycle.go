package pages

import (
	"context"
	"crypto/subtle"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// TrashArchiver receives every page moved to trash, typically to ship a copy
// off host. Failures never undo the move.
type TrashArchiver interface {
	Archive(ctx context.Context, entry TrashEntry) error
}

// secretAttempts bounds regeneration when a generator keeps returning the
// admin secret.
const secretAttempts = 3

// Lifecycle creates, deletes and lists pages and manages page secrets.
type Lifecycle struct {
	catalog  Catalog
	secrets  SecretGenerator
	archiver TrashArchiver
	isAdmin  func(ctx context.Context, secret string) bool
	instr
}

// LifecycleOption configures what a Lifecycle does beyond the shared Options.
type LifecycleOption func(*Lifecycle)

// WithSecretGenerator replaces LocalSecrets.
func WithSecretGenerator(g SecretGenerator) LifecycleOption {
	return func(l *Lifecycle) {
		if g != nil {
			l.secrets = g
		}
	}
}

func WithTrashArchiver(a TrashArchiver) LifecycleOption {
	return func(l *Lifecycle) { l.archiver = a }
}

// WithAdminCheck installs the test used to reject a generated page secret
// that would also be accepted as the admin secret.
func WithAdminCheck(fn func(ctx context.Context, secret string) bool) LifecycleOption {
	return func(l *Lifecycle) { l.isAdmin = fn }
}

// AdminSecretEquals is an admin check against a plain admin secret.
func AdminSecretEquals(admin string) func(context.Context, string) bool {
	return func(_ context.Context, s string) bool {
		return admin != "" && subtle.ConstantTimeCompare([]byte(admin), []byte(s)) == 1
	}
}

func NewLifecycle(catalog Catalog, opts []Option, lopts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{catalog: catalog, secrets: LocalSecrets{}, instr: defaultInstr()}
	for _, o := range opts {
		o(&l.instr)
	}
	for _, o := range lopts {
		o(l)
	}
	return l
}

// CreatePage sanitizes raw and creates the page if missing. It returns the
// sanitized name and whether a directory was created.
func (l *Lifecycle) CreatePage(ctx context.Context, raw string) (string, bool, error) {
	var (
		name    string
		created bool
	)
	err := l.run(ctx, "create_page", raw, func(ctx context.Context) ([]any, error) {
		var err error
		if name, err = SanitizeName(raw); err != nil {
			return nil, err
		}
		created, err = l.catalog.CreatePage(ctx, name)
		return []any{"name", name, "created", created}, err
	})
	return name, created, err
}

// DeletePage moves the page into trash. Nothing is ever removed.
func (l *Lifecycle) DeletePage(ctx context.Context, page string) (TrashEntry, error) {
	var entry TrashEntry
	err := l.run(ctx, "delete_page", page, func(ctx context.Context) ([]any, error) {
		if err := l.requirePage(ctx, page); err != nil {
			return nil, err
		}
		var err error
		if entry, err = l.catalog.TrashPage(ctx, page, l.stamp()); err != nil {
			return nil, err
		}
		kv := []any{"trash_entry", entry.Name}
		if l.archiver != nil {
			aerr := l.archiver.Archive(ctx, entry)
			l.obs.TrashArchived(aerr == nil)
			if aerr != nil {
				l.logger.Warn(ctx, "trash archive failed", "page", page, "trash_entry", entry.Name, "err", aerr)
			}
			kv = append(kv, "archived", aerr == nil)
		}
		return kv, nil
	})
	return entry, err
}

// GenerateSecret replaces the page secret with a fresh one that is never
// equal to the admin secret.
func (l *Lifecycle) GenerateSecret(ctx context.Context, page string) (string, error) {
	var secret string
	err := l.run(ctx, "generate_secret", page, func(ctx context.Context) ([]any, error) {
		if err := l.requirePage(ctx, page); err != nil {
			return nil, err
		}
		for i := 0; i < secretAttempts; i++ {
			s, err := l.secrets.GenerateSecret(ctx)
			if err != nil {
				return nil, xerrors.Mark(xerrors.Wrap(err, "generate page secret"), ErrIO)
			}
			if s == "" || (l.isAdmin != nil && l.isAdmin(ctx, s)) {
				continue
			}
			secret = s
			return []any{"attempts", i + 1}, l.catalog.WriteSecret(ctx, page, s)
		}
		return nil, xerrors.Markf(ErrIO, "secret generator produced no usable secret in %d attempts", secretAttempts)
	})
	if err != nil {
		return "", err
	}
	return secret, nil
}

// ResetSecret removes the page secret. A page without one is unchanged.
func (l *Lifecycle) ResetSecret(ctx context.Context, page string) error {
	return l.run(ctx, "reset_secret", page, func(ctx context.Context) ([]any, error) {
		if err := l.requirePage(ctx, page); err != nil {
			return nil, err
		}
		return nil, l.catalog.DeleteSecret(ctx, page)
	})
}

func (l *Lifecycle) ListPages(ctx context.Context) ([]string, error) {
	return l.catalog.ListPages(ctx)
}

// PageSecret returns the stored secret; ok is false for a missing page or a
// page without a secret. It satisfies auth.PageSecrets.
func (l *Lifecycle) PageSecret(ctx context.Context, page string) (string, bool, error) {
	if checkName(page) != nil {
		return "", false, nil
	}
	exists, err := l.catalog.PageExists(ctx, page)
	if err != nil || !exists {
		return "", false, err
	}
	return l.catalog.ReadSecret(ctx, page)
}

func (l *Lifecycle) PageExists(ctx context.Context, page string) (bool, error) {
	if checkName(page) != nil {
		return false, nil
	}
	return l.catalog.PageExists(ctx, page)
}

func (l *Lifecycle) requirePage(ctx context.Context, page string) error {
	if err := checkName(page); err != nil {
		return err
	}
	ok, err := l.catalog.PageExists(ctx, page)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.Markf(ErrNotFound, "page %q not found", page)
	}
	return nil
}
