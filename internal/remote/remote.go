// Package remote adapts revisioned blob stores that hold the shared family
// snapshot. Each Write is conditional on the revision the caller last read.
package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukerupert/famlingo/internal/model"
)

// Object is a fetched blob and the revision it was read at.
type Object struct {
	Content  []byte
	Revision string
}

// Store is a single remote blob with optimistic concurrency.
//
// Fetch returns model.ErrNotFound when the blob does not exist yet. Write
// creates the blob when revision is empty and otherwise replaces it only if
// it is still at revision, returning model.ErrConflict when it is not.
// Neither method retries.
type Store interface {
	Fetch(ctx context.Context) (*Object, error)
	Write(ctx context.Context, content []byte, revision, message string) (string, error)
}

// Factory builds the Store for the current sync settings. It returns
// model.ErrNotConfigured when sync cannot run.
type Factory func(settings *model.SyncSettings) (Store, error)

// classifyStatus maps an HTTP status to the shared error taxonomy.
func classifyStatus(op string, status int) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: status %d: %w", op, status, model.ErrNotFound)
	case status == http.StatusConflict, status == http.StatusPreconditionFailed,
		status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: status %d: %w", op, status, model.ErrConflict)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%s: status %d: %w", op, status, model.ErrUnauthorized)
	case status >= 500, status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: status %d: %w", op, status, model.ErrTransient)
	default:
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
}
