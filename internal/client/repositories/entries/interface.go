package entries

import (
	"context"

	"github.com/daybook-app/daybook/internal/client/models"
)

// Repository describes the local durable store for journal entries.
// Implementations must be durable on return; the sync engine relies on a
// completed write surviving a process crash before any push is attempted.
type Repository interface {
	// CreateOrUpdate inserts a new entry or replaces an existing one by Id.
	CreateOrUpdate(ctx context.Context, entry *models.Entry) error

	// GetByID returns an entry by its identifier, tombstoned or not.
	// Returns common.ErrNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*models.Entry, error)

	// GetAll lists entries for an owner, excluding tombstones, newest first
	// by LastModified.
	GetAll(ctx context.Context, ownerId string) ([]models.Entry, error)

	// GetAllPending returns entries whose status is anything but synced,
	// tombstones included.
	GetAllPending(ctx context.Context) ([]*models.Entry, error)

	// Purge removes a row entirely. Used after a remote delete is confirmed.
	Purge(ctx context.Context, id string) error
}
