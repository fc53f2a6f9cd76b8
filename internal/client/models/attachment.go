package models

import "time"

// AttachmentRef points at an image belonging to exactly one entry.
// Attachments are never mutated, only created or deleted; deletion cascades
// from entry deletion.
type AttachmentRef struct {
	// LocalPath is set once the image has been durably saved on-device.
	LocalPath string `json:"local_path"`

	// RemoteKey is the blob-store key, set once the upload was confirmed.
	RemoteKey string `json:"remote_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Uploaded reports whether the attachment has a confirmed remote copy.
func (r AttachmentRef) Uploaded() bool {
	return r.RemoteKey != ""
}

// UploadTicket is a durable queue element for an attachment whose upload did
// not complete. It is persisted independently of the entry so it survives
// process restarts even when the entry's text fields are already synced.
type UploadTicket struct {
	LocalPath string    `json:"local_path"`
	EntryID   string    `json:"entry_id"`
	CreatedAt time.Time `json:"created_at"`
}
