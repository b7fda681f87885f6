// Package syncer keeps the remote store in step with local state.
//
// Mutations restart a debounce timer; when it survives, the current snapshot is
// pushed. At most one push is outbound at a time. Failures never block local
// edits, they only move the connectivity status.
package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/model"
	"github.com/harrisonrobin/kotonote/pkg/reconcile"
	"github.com/harrisonrobin/kotonote/pkg/recurrence"
	"github.com/harrisonrobin/kotonote/pkg/remote"
)

// Status is the connectivity state shown to the user.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSaving
	StatusSynced
	StatusError
	StatusLocal
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSaving:
		return "saving"
	case StatusSynced:
		return "synced"
	case StatusError:
		return "error"
	case StatusLocal:
		return "local"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Source is the owner of the in-memory snapshot.
type Source interface {
	Snapshot() model.Snapshot
	// Replace installs merged state after a load. It must not call NotifyMutation.
	Replace(model.Snapshot)
}

// Credentials is dropped when the remote store rejects it.
type Credentials interface {
	Invalidate()
}

type Config struct {
	// Debounce is the quiet period after the last mutation before a push.
	Debounce time.Duration

	Logger *log.Logger

	// Credentials, when set, is invalidated on 401/403.
	Credentials Credentials
}

func DefaultConfig() *Config {
	return &Config{
		Debounce: 1500 * time.Millisecond,
		Logger:   log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

type Scheduler struct {
	store  remote.Store
	src    Source
	config *Config

	mu        sync.Mutex
	idle      *sync.Cond // signalled when inFlight drops
	identity  string
	handle    remote.Handle
	status    Status
	timer     *time.Timer
	gen       uint64
	pending   bool
	inFlight  bool
	listeners []func(Status)
}

func New(store remote.Store, src Source, identity string, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}
	s := &Scheduler{
		store:    store,
		src:      src,
		config:   config,
		identity: identity,
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnStatus registers fn for every status change. fn runs with the scheduler
// locked and must not call back into it.
func (s *Scheduler) OnStatus(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Scheduler) setStatusLocked(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	for _, fn := range s.listeners {
		fn(st)
	}
}

// SetIdentity points the scheduler at another identity. The store handle is
// forgotten and any pending push is dropped; call Load afterwards.
func (s *Scheduler) SetIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.identity = identity
	s.handle = ""
	s.pending = false
	s.setStatusLocked(StatusIdle)
}

// Load resolves the store, pulls it and merges the result into the source.
// If the merged state differs from what the remote holds, a push is scheduled.
func (s *Scheduler) Load(ctx context.Context) error {
	s.mu.Lock()
	identity := s.identity
	s.setStatusLocked(StatusLoading)
	s.mu.Unlock()

	h, pulled, err := s.resolveAndPull(ctx, identity)
	if err != nil {
		s.fail(err)
		return err
	}

	merged := reconcile.Merge(s.src.Snapshot(), pulled)
	s.src.Replace(merged)

	s.mu.Lock()
	s.handle = h
	s.setStatusLocked(StatusSynced)
	resync := s.pending || !sameContent(merged, pulled)
	s.mu.Unlock()

	s.config.Logger.Printf("Loaded %d tasks, %d dashboard items, %d link categories",
		len(merged.Tasks), merged.Dashboard.Len(), len(merged.Links.Categories))
	if resync {
		s.NotifyMutation()
	}
	return nil
}

// resolveAndPull finds identity's store and reads it. A store that has gone
// missing behind a remembered handle is forgotten and resolved once more.
func (s *Scheduler) resolveAndPull(ctx context.Context, identity string) (remote.Handle, model.Snapshot, error) {
	h, err := s.store.Resolve(ctx, identity)
	if err != nil {
		return "", model.Snapshot{}, fmt.Errorf("failed to resolve remote store: %w", err)
	}
	pulled, err := s.store.Pull(ctx, h)
	if remote.IsNotFound(err) {
		s.config.Logger.Printf("Remote store %s is gone, resolving again", h)
		s.store.Forget(identity)
		if h, err = s.store.Resolve(ctx, identity); err != nil {
			return "", model.Snapshot{}, fmt.Errorf("failed to resolve remote store: %w", err)
		}
		pulled, err = s.store.Pull(ctx, h)
	}
	if err != nil {
		return "", model.Snapshot{}, fmt.Errorf("failed to pull: %w", err)
	}
	return h, pulled, nil
}

// Reconnect re-runs Load, typically from StatusLocal after signing in again.
func (s *Scheduler) Reconnect(ctx context.Context) error {
	return s.Load(ctx)
}

func sameContent(a, b model.Snapshot) bool {
	if a.IsEmpty() && b.IsEmpty() {
		return true
	}
	return reflect.DeepEqual(canonical(a), canonical(b))
}

// canonical folds representations the remote store cannot tell apart: empty and
// nil lists, and a missing recurrence type versus "none".
func canonical(s model.Snapshot) model.Snapshot {
	s = s.Clone()
	for i := range s.Tasks {
		if len(s.Tasks[i].Links) == 0 {
			s.Tasks[i].Links = nil
		}
	}
	for _, c := range model.Categories {
		items := s.Dashboard.Items(c)
		for i := range items {
			if len(items[i].Links) == 0 {
				items[i].Links = nil
			}
			if items[i].Recurrence.IsNone() {
				items[i].Recurrence = recurrence.Rule{Type: recurrence.None}
			} else if len(items[i].Recurrence.CustomDays) == 0 {
				items[i].Recurrence.CustomDays = nil
			}
		}
	}
	for i := range s.Links.Categories {
		if len(s.Links.Categories[i].Items) == 0 {
			s.Links.Categories[i].Items = nil
		}
	}
	return s
}

// NotifyMutation restarts the debounce timer.
func (s *Scheduler) NotifyMutation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = true
	s.stopTimerLocked()
	gen := s.gen
	s.timer = time.AfterFunc(s.config.Debounce, func() { s.fire(gen) })
}

func (s *Scheduler) stopTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.handle == "" {
		// Load has not finished; it schedules a push itself once it has.
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.config.Logger.Println("Previous save still running, skipping")
		s.mu.Unlock()
		return
	}
	h := s.beginPushLocked()
	s.mu.Unlock()

	s.push(context.Background(), h)
}

func (s *Scheduler) beginPushLocked() remote.Handle {
	s.inFlight = true
	s.pending = false
	s.setStatusLocked(StatusSaving)
	return s.handle
}

func (s *Scheduler) push(ctx context.Context, h remote.Handle) error {
	err := s.store.Push(ctx, h, s.src.Snapshot())
	if remote.IsNotFound(err) {
		err = s.repush(ctx, h)
	}

	s.mu.Lock()
	s.inFlight = false
	if err != nil {
		s.pending = true
	}
	s.idle.Broadcast()
	s.mu.Unlock()

	if err != nil {
		s.fail(err)
		return fmt.Errorf("failed to push: %w", err)
	}
	s.mu.Lock()
	s.setStatusLocked(StatusSynced)
	s.mu.Unlock()
	return nil
}

// repush recovers from a store deleted under handle h: it resolves a
// replacement, merges whatever that holds and writes once more.
func (s *Scheduler) repush(ctx context.Context, h remote.Handle) error {
	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()
	s.config.Logger.Printf("Remote store %s is gone, resolving again", h)
	s.store.Forget(identity)

	next, pulled, err := s.resolveAndPull(ctx, identity)
	if err != nil {
		return err
	}
	s.src.Replace(reconcile.Merge(s.src.Snapshot(), pulled))

	s.mu.Lock()
	s.handle = next
	s.mu.Unlock()
	return s.store.Push(ctx, next, s.src.Snapshot())
}

// Flush cancels the debounce window, waits for an outbound push and then pushes
// once more if anything is still unsaved.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.stopTimerLocked()
	for s.inFlight {
		s.idle.Wait()
	}
	if !s.pending || s.handle == "" {
		s.mu.Unlock()
		return nil
	}
	h := s.beginPushLocked()
	s.mu.Unlock()

	return s.push(ctx, h)
}

func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if remote.IsAuth(err) {
		s.config.Logger.Printf("Authorization rejected, continuing local-only: %v", err)
		if s.config.Credentials != nil {
			s.config.Credentials.Invalidate()
		}
		s.setStatusLocked(StatusLocal)
		return
	}
	s.config.Logger.Printf("Warning: sync failed: %v", err)
	s.setStatusLocked(StatusError)
}
