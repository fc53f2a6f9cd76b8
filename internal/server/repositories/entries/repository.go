package entries

import (
	"context"

	"github.com/daybook-app/daybook/internal/server/models"
)

// Repository stores journal entry documents. Upserts are keyed by the
// client-assigned document id so a retried push lands on the same row.
type Repository interface {
	// Upsert inserts or replaces the document and returns the server
	// timestamp assigned to this write.
	Upsert(ctx context.Context, entry *models.Entry) (int64, error)

	// GetByID returns a single document, scoped to its owner.
	GetByID(ctx context.Context, ownerID, id string) (*models.Entry, error)

	// QueryByOwner lists an owner's documents. With byServerTS the result
	// is ordered by server timestamp descending; that requires the
	// ordering index and fails with common.ErrMissingIndex when the index
	// has not been created.
	QueryByOwner(ctx context.Context, ownerID string, byServerTS bool) ([]models.Entry, error)

	// Delete removes a document. Deleting an absent id is not an error.
	Delete(ctx context.Context, ownerID, id string) error

	// AddAttachment appends a blob key to the document's attachment list,
	// once. Returns common.ErrNotFound for an unknown document.
	AddAttachment(ctx context.Context, ownerID, id, key string) error

	// CountAttachments returns how many confirmed attachment keys the
	// owner has across all documents. Used for quota checks.
	CountAttachments(ctx context.Context, ownerID string) (int64, error)
}
