// Package remote defines what the sync engine needs from a remote tabular store.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/harrisonrobin/kotonote/pkg/model"
)

// Handle identifies one remote store (a spreadsheet id).
type Handle string

// Store is a remote tabular backend holding one identity's snapshot.
type Store interface {
	// Resolve finds or creates the store for identity.
	Resolve(ctx context.Context, identity string) (Handle, error)
	// Pull reads every section in one request.
	Pull(ctx context.Context, h Handle) (model.Snapshot, error)
	// Push overwrites every section with snap.
	Push(ctx context.Context, h Handle, snap model.Snapshot) error
	// Forget drops any remembered handle for identity so the next Resolve searches again.
	Forget(identity string)
}

// Error is a transport or server failure. Status is 0 for network errors.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote store unreachable: %s", e.Message)
	}
	return fmt.Sprintf("remote store error %d: %s", e.Status, e.Message)
}

// IsAuth reports whether err carries a 401 or 403 from the remote store.
func IsAuth(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	return re.Status == http.StatusUnauthorized || re.Status == http.StatusForbidden
}

// IsNotFound reports whether err carries a 404, i.e. the store behind a handle is gone.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}
