// Package app owns the in-memory snapshot for the current identity.
//
// Every mutation builds a new snapshot from the old one, installs it, persists it
// to the local store and then tells the attached Notifier. Readers always get
// copies.
package app

import (
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/localstore"
	"github.com/harrisonrobin/kotonote/pkg/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyTitle      = errors.New("title must not be empty")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidTime     = errors.New("time must be HH:MM")
)

// Notifier is told about every committed mutation; syncer.Scheduler satisfies it.
type Notifier interface {
	NotifyMutation()
}

type Controller struct {
	store  *localstore.Store
	now    func() time.Time
	logger *log.Logger

	mu       sync.Mutex
	identity string
	snap     model.Snapshot
	notifier Notifier
}

type Option func(*Controller)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New loads identity's state from store, migrating legacy keys first.
// An empty identity is the anonymous, local-only user.
func New(store *localstore.Store, identity string, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		now:    time.Now,
		logger: log.New(os.Stderr, "[app] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.identity, c.snap = c.open(identity)
	return c
}

func (c *Controller) open(identity string) (string, model.Snapshot) {
	identity = strings.TrimSpace(identity)
	c.store.Migrate(identity)
	return identity, c.store.Load(identity)
}

// Attach routes mutation notifications to n. Pass nil to detach.
func (c *Controller) Attach(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

func (c *Controller) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// SwitchIdentity swaps the whole state for identity's persisted copy.
// The attached notifier is not told; the caller re-runs sync for the new identity.
func (c *Controller) SwitchIdentity(identity string) {
	id, snap := c.open(identity)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity, c.snap = id, snap
	c.logger.Printf("Switched to %s", describeIdentity(id))
}

func describeIdentity(id string) string {
	if id == "" {
		return "anonymous"
	}
	return id
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Clone()
}

// Replace installs s (typically a merge result) and persists it without
// notifying, since it came from the remote store.
func (c *Controller) Replace(s model.Snapshot) {
	s = s.Clone()
	c.mu.Lock()
	c.snap = s
	identity := c.identity
	c.mu.Unlock()
	c.store.Save(identity, s)
}

// update applies fn to a copy of the current state and commits the result.
// If fn fails nothing changes.
func (c *Controller) update(fn func(s *model.Snapshot, now time.Time) error) error {
	c.mu.Lock()
	next := c.snap.Clone()
	if err := fn(&next, c.now()); err != nil {
		c.mu.Unlock()
		return err
	}
	c.snap = next
	identity, notifier := c.identity, c.notifier
	c.mu.Unlock()

	c.store.Save(identity, next)
	if notifier != nil {
		notifier.NotifyMutation()
	}
	return nil
}

// touch returns a millisecond timestamp strictly after prev, so updatedAt keeps
// increasing even when the clock stalls or steps back.
func touch(now, prev time.Time) time.Time {
	t := now.UTC().Truncate(time.Millisecond)
	if !t.After(prev) {
		t = prev.Add(time.Millisecond)
	}
	return t
}
