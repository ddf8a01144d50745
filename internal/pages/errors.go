package pages

import (
	"context"
	"errors"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// Error classes. Every error returned by this package matches at most one of
// these with errors.Is; anything else is an unclassified failure such as a
// cancelled context.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrIO           = errors.New("storage error")
	ErrUnauthorized = errors.New("unauthorized")
)

// Result maps err to the label used for metrics and span status.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func asIO(err error) error { return xerrors.Mark(err, ErrIO) }

func invalidPointer(kind PointerKind) error {
	return xerrors.Markf(ErrInvalidInput, "unknown pointer kind %d", int(kind))
}
