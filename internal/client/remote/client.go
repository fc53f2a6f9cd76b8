package remote

import (
	"context"

	"github.com/daybook-app/daybook/internal/client/models"
)

// Client is the remote document store the sync engine pushes to and pulls
// from. Implementations must return the sentinel error classes in errors.go
// so the engine can tell transient failures from terminal ones.
type Client interface {
	Close() error

	// Register creates an account.
	Register(ctx context.Context, username, password string) error

	// Login authenticates and returns the account's owner id. The client
	// keeps the issued tokens for subsequent calls.
	Login(ctx context.Context, username, password string) (string, error)

	// SetTokens restores a previously persisted token pair, e.g. when the
	// app resumes a session across restarts.
	SetTokens(access, refresh string)

	// Tokens returns the current token pair for persisting.
	Tokens() (access, refresh string)

	// Ping probes server reachability.
	Ping(ctx context.Context) error

	// Upsert creates or replaces the remote document whose id equals the
	// entry's client-assigned id, and returns the server timestamp assigned
	// to the accepted write. Re-pushing identical content is harmless.
	Upsert(ctx context.Context, entry *models.Entry) (int64, error)

	// Get fetches a single document by id.
	Get(ctx context.Context, id string) (*models.Entry, error)

	// Query lists an owner's documents. With byServerTS it requests
	// server-timestamp-descending order, which may fail with ErrMissingIndex.
	Query(ctx context.Context, ownerId string, byServerTS bool) ([]models.Entry, error)

	// Delete removes the remote document. Deleting an absent id is not an
	// error, so a retried delete stays idempotent.
	Delete(ctx context.Context, id string) error

	// Watch opens a live snapshot stream for an owner. Closing the
	// subscription releases the server-side listener.
	Watch(ctx context.Context, ownerId string) (Subscription, error)

	// PresignPut asks for a one-time upload slot for an attachment and
	// returns the blob key plus the URL to PUT the bytes to.
	PresignPut(ctx context.Context, entryID, filename string) (key string, url string, err error)

	// PresignGet returns a temporary download URL for a blob key.
	PresignGet(ctx context.Context, key string) (string, error)

	// UploadObject PUTs data to a presigned URL.
	UploadObject(ctx context.Context, url string, data []byte) error

	// MarkUploaded confirms a finished attachment upload for an entry.
	MarkUploaded(ctx context.Context, entryID, key string) error

	// DeleteBlob removes an uploaded attachment from blob storage.
	DeleteBlob(ctx context.Context, key string) error
}

// Subscription is a live, owner-scoped stream of full remote snapshots.
// The channel closes when the stream ends; Err then reports why.
type Subscription interface {
	// C yields the current full record set on every remote change.
	C() <-chan []models.Entry

	// Err returns the terminal error after C is closed, nil on clean close.
	Err() error

	// Close cancels the subscription and releases the remote listener.
	// Safe to call more than once.
	Close() error
}
