// Package models defines client-side data models used by the Daybook CLI.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks where a locally stored entry stands relative to the
// remote store.
type SyncStatus string

const (
	// StatusSynced: the remote copy matches the last local write and
	// ServerTS carries the remote store's timestamp for it.
	StatusSynced SyncStatus = "synced"
	// StatusPendingUpload: created locally, never accepted remotely.
	StatusPendingUpload SyncStatus = "pending_upload"
	// StatusPendingUpdate: previously synced, mutated locally since.
	StatusPendingUpdate SyncStatus = "pending_update"
	// StatusPendingDelete: tombstoned locally, remote delete not yet confirmed.
	StatusPendingDelete SyncStatus = "pending_delete"
)

// Entry is a journal record persisted locally and synced with the server.
// The id is assigned client-side at creation and doubles as the remote
// document id, which makes pushes idempotent.
type Entry struct {
	// Id is a globally unique identifier for the entry.
	Id string

	// OwnerId identifies the account the entry belongs to.
	OwnerId string

	Title string
	Body  string
	Mood  string

	// Attachments is the ordered list of attachment references; entries may
	// mix local-only refs (not yet uploaded) and remote-confirmed ones.
	Attachments []AttachmentRef

	// LastModified is the client-side mutation time in UTC. It never goes
	// backwards for a given id.
	LastModified time.Time

	// ServerTS is the monotonic value the remote store assigned on the last
	// accepted write. Zero until the entry has been pushed at least once.
	ServerTS int64

	// Status is owned exclusively by the sync engine.
	Status SyncStatus
}

// NewEntry creates a local-only entry awaiting its first push.
func NewEntry(ownerId, title, body string) *Entry {
	return &Entry{
		Id:           uuid.NewString(),
		OwnerId:      ownerId,
		Title:        title,
		Body:         body,
		LastModified: time.Now().UTC(),
		Status:       StatusPendingUpload,
	}
}

// Touch records a local mutation: bumps LastModified and moves the entry into
// the pending state appropriate for its history.
func (e *Entry) Touch() {
	now := time.Now().UTC()
	if now.After(e.LastModified) {
		e.LastModified = now
	}
	switch e.Status {
	case StatusSynced:
		e.Status = StatusPendingUpdate
	case StatusPendingUpdate, StatusPendingDelete:
		// unchanged
	default:
		e.Status = StatusPendingUpload
	}
}

// Pending reports whether the entry has local changes the remote store has
// not confirmed.
func (e *Entry) Pending() bool {
	return e.Status != StatusSynced
}

// PendingAttachments returns the refs that have not been uploaded yet.
func (e *Entry) PendingAttachments() []AttachmentRef {
	var refs []AttachmentRef
	for _, r := range e.Attachments {
		if !r.Uploaded() {
			refs = append(refs, r)
		}
	}
	return refs
}
