package health

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync/atomic"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// Probe is evaluated at request time
// nil = OK non-nil = FAIL with reason.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed returns a probe that always returns ok or fails with the given reason
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	return func(context.Context) error { return xerrors.New(reason) }
}

// All passes only if every non-nil probe passes; returns the first error.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// DirWritable fails unless dir exists, is a directory, and accepts a new file.
// The probe file is removed again before returning.
func DirWritable(name, dir string) CheckFunc {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		fi, err := os.Stat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return xerrors.Newf("%s: directory %s missing", name, dir)
		}
		if err != nil {
			return xerrors.Wrapf(err, "%s: stat %s", name, dir)
		}
		if !fi.IsDir() {
			return xerrors.Newf("%s: %s is not a directory", name, dir)
		}
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return xerrors.Wrapf(err, "%s: not writable", name)
		}
		p := f.Name()
		_ = f.Close()
		_ = os.Remove(p)
		return nil
	}
}

// ShutdownGate flips readiness to false during drain/shutdown.
type ShutdownGate struct {
	draining atomic.Bool
	reason   atomic.Value
}

func (g *ShutdownGate) Set(reason string) {
	g.draining.Store(true)
	g.reason.Store(reason)
}

func (g *ShutdownGate) Clear() {
	g.draining.Store(false)
	g.reason.Store("")
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if !g.draining.Load() {
			return nil
		}
		r, _ := g.reason.Load().(string)
		if r == "" {
			r = "draining"
		}
		return xerrors.New(r)
	}
}
