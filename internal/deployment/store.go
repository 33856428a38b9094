package deployment

import (
	"context"
	"errors"
)

// Store errors.
var (
	// ErrNotFound is returned when no deployment has the given id.
	ErrNotFound = errors.New("deployment not found")

	// ErrVersionConflict is returned by Save when the deployment's
	// Version does not match the stored row, meaning a concurrent
	// writer (pipeline vs. termination) got there first. The caller
	// reloads and retries its mutation.
	ErrVersionConflict = errors.New("deployment version conflict")
)

// Store persists deployments. Save is optimistic: it succeeds only
// when the given deployment's Version matches the stored one, and
// increments the version on success — so concurrent status writers can
// never silently lose updates.
type Store interface {
	Get(ctx context.Context, id string) (*Deployment, error)
	Save(ctx context.Context, d *Deployment) error
	ListByOrganization(ctx context.Context, orgID string) ([]*Deployment, error)
}
