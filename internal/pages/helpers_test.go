package pages

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// stepClock returns t0, t0+1s, t0+2s, ... so that every publish lands in a
// distinct second unless a test pins the clock.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock(t0 time.Time, step time.Duration) *stepClock {
	return &stepClock{t: t0, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

type recordingObserver struct {
	mu       sync.Mutex
	ops      map[string]int
	versions int
	archived []bool
}

func (o *recordingObserver) ObserveOp(op, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ops == nil {
		o.ops = map[string]int{}
	}
	o.ops[op+"/"+result]++
}

func (o *recordingObserver) VersionCreated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.versions++
}

func (o *recordingObserver) TrashArchived(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.archived = append(o.archived, ok)
}

// faultyStore fails selected writes with an ErrIO error without touching disk.
type faultyStore struct {
	*FSStore
	failCreate    bool
	failPublished bool
}

func (s *faultyStore) CreateVersion(ctx context.Context, page string, content []byte, at time.Time) (VersionID, error) {
	if s.failCreate {
		return "", asIO(xerrors.New("disk full"))
	}
	return s.FSStore.CreateVersion(ctx, page, content, at)
}

func (s *faultyStore) WritePublished(ctx context.Context, page string, content []byte) error {
	if s.failPublished {
		return asIO(xerrors.New("disk full"))
	}
	return s.FSStore.WritePublished(ctx, page, content)
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store *FSStore
	eng   *Engine
	life  *Lifecycle
	obs   *recordingObserver
	clock *stepClock
	dir   string
}

func newFixture(t *testing.T, lopts ...LifecycleOption) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := NewFSStore(filepath.Join(dir, "pages"), filepath.Join(dir, "trash"))
	require.NoError(t, err)

	f := &fixture{store: st, obs: &recordingObserver{}, clock: newStepClock(t0, time.Second), dir: dir}
	opts := []Option{WithClock(f.clock.Now), WithObserver(f.obs)}
	f.eng = NewEngine(st, opts...)
	f.life = NewLifecycle(st, opts, lopts...)
	return f
}

func (f *fixture) page(t *testing.T, name string) string {
	t.Helper()
	got, _, err := f.life.CreatePage(context.Background(), name)
	require.NoError(t, err)
	return got
}
