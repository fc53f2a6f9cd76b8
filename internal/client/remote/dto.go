package remote

import (
	"encoding/json"
	"time"

	"github.com/daybook-app/daybook/internal/client/models"
)

// SchemaVersion is stamped on every document this client writes. Decoding
// tolerates missing fields so older documents read back with zero values
// instead of failing wholesale.
const SchemaVersion = 1

// EntryDoc is the wire form of a journal entry document.
type EntryDoc struct {
	SchemaVersion int      `json:"schema_version"`
	ID            string   `json:"id"`
	OwnerID       string   `json:"owner_id"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	Mood          string   `json:"mood"`
	Attachments   []string `json:"attachments,omitempty"`
	LastModified  int64    `json:"last_modified"`
	ServerTS      int64    `json:"server_ts"`
}

// docID pulls the id out of a raw document so skipped documents can be
// identified in logs even when the rest of the payload does not decode.
func docID(raw json.RawMessage) string {
	var d struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &d)
	return d.ID
}

// toDoc encodes an entry for the wire. Only remote-confirmed attachment keys
// travel; local-only refs stay on-device until their upload completes.
func toDoc(e *models.Entry) EntryDoc {
	var keys []string
	for _, r := range e.Attachments {
		if r.Uploaded() {
			keys = append(keys, r.RemoteKey)
		}
	}
	return EntryDoc{
		SchemaVersion: SchemaVersion,
		ID:            e.Id,
		OwnerID:       e.OwnerId,
		Title:         e.Title,
		Body:          e.Body,
		Mood:          e.Mood,
		Attachments:   keys,
		LastModified:  e.LastModified.UnixNano(),
	}
}

// fromDoc decodes a remote document into a synced entry.
func fromDoc(d EntryDoc) models.Entry {
	refs := make([]models.AttachmentRef, 0, len(d.Attachments))
	for _, k := range d.Attachments {
		refs = append(refs, models.AttachmentRef{RemoteKey: k})
	}
	e := models.Entry{
		Id:           d.ID,
		OwnerId:      d.OwnerID,
		Title:        d.Title,
		Body:         d.Body,
		Mood:         d.Mood,
		LastModified: time.Unix(0, d.LastModified).UTC(),
		ServerTS:     d.ServerTS,
		Status:       models.StatusSynced,
	}
	if len(refs) > 0 {
		e.Attachments = refs
	}
	return e
}
