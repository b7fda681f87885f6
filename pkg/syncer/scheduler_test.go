package syncer

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/model"
	"github.com/harrisonrobin/kotonote/pkg/recurrence"
	"github.com/harrisonrobin/kotonote/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 80 * time.Millisecond

type fakeRemote struct {
	mu       sync.Mutex
	remote   model.Snapshot
	pushes   []model.Snapshot
	block    chan struct{}
	started  chan struct{}
	pushErr  error
	pullErr  error
	resolved int

	// generation bumps on Forget; handles in gone answer 404.
	generation int
	gone       map[remote.Handle]bool
	pushedTo   []remote.Handle
}

var errGone = &remote.Error{Status: http.StatusNotFound, Message: "not found"}

func (f *fakeRemote) Resolve(ctx context.Context, identity string) (remote.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved++
	return remote.Handle(fmt.Sprintf("sheet-%s-%d", identity, f.generation)), nil
}

func (f *fakeRemote) Forget(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
}

func (f *fakeRemote) Pull(ctx context.Context, h remote.Handle) (model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[h] {
		return model.Snapshot{}, fmt.Errorf("pull: %w", errGone)
	}
	if f.pullErr != nil {
		return model.Snapshot{}, f.pullErr
	}
	return f.remote.Clone(), nil
}

func (f *fakeRemote) Push(ctx context.Context, h remote.Handle, snap model.Snapshot) error {
	f.mu.Lock()
	if f.gone[h] {
		f.mu.Unlock()
		return fmt.Errorf("clear: %w", errGone)
	}
	f.pushes = append(f.pushes, snap)
	f.pushedTo = append(f.pushedTo, h)
	block, started, err := f.block, f.started, f.pushErr
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeRemote) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeRemote) lastPush() model.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes[len(f.pushes)-1]
}

type memSource struct {
	mu   sync.Mutex
	snap model.Snapshot
}

func newSource() *memSource {
	return &memSource{snap: model.Snapshot{}.Clone()}
}

func (m *memSource) Snapshot() model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone()
}

func (m *memSource) Replace(s model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = s
}

func (m *memSource) addTask(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Tasks = append(m.snap.Tasks, model.Task{ID: title, Title: title, Status: model.StatusDoing})
}

type countingCreds struct {
	mu sync.Mutex
	n  int
}

func (c *countingCreds) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *countingCreds) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newScheduler(store remote.Store, src Source, creds Credentials) *Scheduler {
	return New(store, src, "me@example.com", &Config{
		Debounce:    window,
		Logger:      log.New(io.Discard, "", 0),
		Credentials: creds,
	})
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "synced", StatusSynced.String())
	assert.Equal(t, "local", StatusLocal.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}

func TestLoadMergesAndSchedulesPushForLocalOnlyData(t *testing.T) {
	fake := &fakeRemote{remote: model.Snapshot{Tasks: []model.Task{{ID: "remote", Title: "from remote", Status: model.StatusDoing}}}}
	src := newSource()
	src.addTask("local")
	s := newScheduler(fake, src, nil)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, StatusSynced, s.Status())
	assert.Len(t, src.Snapshot().Tasks, 2)

	require.Eventually(t, func() bool { return fake.pushCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Len(t, fake.lastPush().Tasks, 2)
}

func TestLoadWithNothingToSendDoesNotPush(t *testing.T) {
	fake := &fakeRemote{}
	s := newScheduler(fake, newSource(), nil)

	require.NoError(t, s.Load(context.Background()))
	time.Sleep(3 * window)
	assert.Equal(t, 0, fake.pushCount())
}

func TestDebounceCoalescesMutations(t *testing.T) {
	fake := &fakeRemote{}
	src := newSource()
	s := newScheduler(fake, src, nil)
	require.NoError(t, s.Load(context.Background()))

	for i := 1; i <= 5; i++ {
		src.addTask(fmt.Sprintf("t%d", i))
		s.NotifyMutation()
		time.Sleep(window / 8)
	}

	require.Eventually(t, func() bool { return fake.pushCount() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(3 * window)
	assert.Equal(t, 1, fake.pushCount())

	pushed := fake.lastPush()
	require.Len(t, pushed.Tasks, 5)
	assert.Equal(t, "t5", pushed.Tasks[4].Title)
	assert.Equal(t, StatusSynced, s.Status())
}

func TestSaveSkippedWhilePushInFlight(t *testing.T) {
	fake := &fakeRemote{block: make(chan struct{}), started: make(chan struct{}, 4)}
	src := newSource()
	s := newScheduler(fake, src, nil)
	require.NoError(t, s.Load(context.Background()))

	src.addTask("first")
	s.NotifyMutation()
	<-fake.started
	assert.Equal(t, StatusSaving, s.Status())

	src.addTask("second")
	s.NotifyMutation()
	time.Sleep(3 * window)
	assert.Equal(t, 1, fake.pushCount(), "no second push while the first is outbound")

	fake.block <- struct{}{}
	require.Eventually(t, func() bool { return s.Status() == StatusSynced }, time.Second, 10*time.Millisecond)

	src.addTask("third")
	s.NotifyMutation()
	<-fake.started
	fake.block <- struct{}{}
	require.Eventually(t, func() bool { return s.Status() == StatusSynced }, time.Second, 10*time.Millisecond)
	time.Sleep(2 * window)

	assert.Equal(t, 2, fake.pushCount())
	assert.Len(t, fake.lastPush().Tasks, 3)
}

func TestMutationBeforeLoadIsSkippedThenPushed(t *testing.T) {
	fake := &fakeRemote{}
	src := newSource()
	s := newScheduler(fake, src, nil)

	src.addTask("early")
	s.NotifyMutation()
	time.Sleep(3 * window)
	assert.Equal(t, 0, fake.pushCount())
	assert.Equal(t, StatusIdle, s.Status())

	require.NoError(t, s.Load(context.Background()))
	require.Eventually(t, func() bool { return fake.pushCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestAuthFailureGoesLocal(t *testing.T) {
	fake := &fakeRemote{}
	creds := &countingCreds{}
	src := newSource()
	s := newScheduler(fake, src, creds)
	require.NoError(t, s.Load(context.Background()))

	var mu sync.Mutex
	var seen []Status
	s.OnStatus(func(st Status) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	})

	fake.mu.Lock()
	fake.pushErr = fmt.Errorf("write: %w", &remote.Error{Status: http.StatusUnauthorized, Message: "expired"})
	fake.mu.Unlock()

	src.addTask("x")
	s.NotifyMutation()
	require.Eventually(t, func() bool { return s.Status() == StatusLocal }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, creds.count())

	mu.Lock()
	assert.Equal(t, []Status{StatusSaving, StatusLocal}, seen)
	mu.Unlock()
}

func TestTransientFailureGoesToErrorAndRecovers(t *testing.T) {
	fake := &fakeRemote{pullErr: &remote.Error{Status: http.StatusServiceUnavailable, Message: "down"}}
	creds := &countingCreds{}
	src := newSource()
	s := newScheduler(fake, src, creds)

	err := s.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, s.Status())
	assert.Equal(t, 0, creds.count())

	fake.mu.Lock()
	fake.pullErr = nil
	fake.mu.Unlock()
	require.NoError(t, s.Reconnect(context.Background()))
	assert.Equal(t, StatusSynced, s.Status())
}

func TestFlushPushesPendingImmediately(t *testing.T) {
	fake := &fakeRemote{}
	src := newSource()
	s := New(fake, src, "me@example.com", &Config{Debounce: time.Hour, Logger: log.New(io.Discard, "", 0)})
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 0, fake.pushCount(), "nothing pending")

	src.addTask("x")
	s.NotifyMutation()
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, fake.pushCount())
	assert.Equal(t, StatusSynced, s.Status())

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, fake.pushCount())
}

func TestSetIdentityForgetsHandle(t *testing.T) {
	fake := &fakeRemote{}
	src := newSource()
	s := newScheduler(fake, src, nil)
	require.NoError(t, s.Load(context.Background()))

	s.SetIdentity("other@example.com")
	src.addTask("x")
	s.NotifyMutation()
	time.Sleep(3 * window)
	assert.Equal(t, 0, fake.pushCount())

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 2, fake.resolved)
	require.Eventually(t, func() bool { return fake.pushCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestLoadReResolvesDeletedStore(t *testing.T) {
	fake := &fakeRemote{gone: map[remote.Handle]bool{"sheet-me@example.com-0": true}}
	src := newSource()
	src.addTask("local")
	s := newScheduler(fake, src, nil)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, StatusSynced, s.Status())
	assert.Equal(t, 2, fake.resolved)
	assert.Equal(t, 1, fake.generation)

	require.Eventually(t, func() bool { return fake.pushCount() == 1 }, time.Second, 10*time.Millisecond)
	fake.mu.Lock()
	assert.Equal(t, remote.Handle("sheet-me@example.com-1"), fake.pushedTo[0])
	fake.mu.Unlock()
}

func TestPushReResolvesDeletedStore(t *testing.T) {
	fake := &fakeRemote{}
	src := newSource()
	s := New(fake, src, "me@example.com", &Config{Debounce: time.Hour, Logger: log.New(io.Discard, "", 0)})
	require.NoError(t, s.Load(context.Background()))

	fake.mu.Lock()
	fake.gone = map[remote.Handle]bool{"sheet-me@example.com-0": true}
	fake.mu.Unlock()

	src.addTask("x")
	s.NotifyMutation()
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, StatusSynced, s.Status())
	require.Equal(t, 1, fake.pushCount())
	assert.Equal(t, remote.Handle("sheet-me@example.com-1"), fake.pushedTo[0])
	assert.Len(t, fake.lastPush().Tasks, 1)

	src.addTask("y")
	s.NotifyMutation()
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, remote.Handle("sheet-me@example.com-1"), fake.pushedTo[1], "the replacement handle is kept")
}

func TestLoadAfterEquivalentRemoteDoesNotPush(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	local := model.Snapshot{
		Tasks: []model.Task{{ID: "t1", Title: "a", Status: model.StatusDoing, Links: []model.Link{}, CreatedAt: created, UpdatedAt: created}},
		Dashboard: model.Dashboard{
			Routine: []model.DashboardItem{{ID: "d1", Text: "b", Links: []model.Link{}, CreatedAt: created, UpdatedAt: created}},
		}.Normalize(),
		Links: model.LinkBook{Categories: []model.LinkCategory{{ID: "c1", Name: "c", Items: []model.LinkItem{}}}},
	}
	pulled := model.Snapshot{
		Tasks: []model.Task{{ID: "t1", Title: "a", Status: model.StatusDoing, CreatedAt: created, UpdatedAt: created}},
		Dashboard: model.Dashboard{
			Routine: []model.DashboardItem{{ID: "d1", Text: "b", Recurrence: recurrence.Rule{Type: recurrence.None}, CreatedAt: created, UpdatedAt: created}},
		}.Normalize(),
		Links: model.LinkBook{Categories: []model.LinkCategory{{ID: "c1", Name: "c"}}},
	}
	assert.True(t, sameContent(local, pulled))

	fake := &fakeRemote{remote: pulled}
	src := newSource()
	src.Replace(local)
	s := newScheduler(fake, src, nil)
	require.NoError(t, s.Load(context.Background()))
	time.Sleep(3 * window)
	assert.Equal(t, 0, fake.pushCount())

	changed := pulled.Clone()
	changed.Tasks[0].Title = "other"
	assert.False(t, sameContent(local, changed))
}
