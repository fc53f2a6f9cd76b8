package httpapi

import "github.com/daybook-app/daybook/internal/server/models"

// entryDoc is the wire form of a journal document, shared by the REST
// endpoints and the watch stream.
type entryDoc struct {
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

func toDoc(e *models.Entry) entryDoc {
	return entryDoc{
		SchemaVersion: e.SchemaVersion,
		ID:            e.ID,
		OwnerID:       e.OwnerID,
		Title:         e.Title,
		Body:          e.Body,
		Mood:          e.Mood,
		Attachments:   e.Attachments,
		LastModified:  e.LastModified,
		ServerTS:      e.ServerTS,
	}
}

func (d entryDoc) toModel(ownerID string) *models.Entry {
	return &models.Entry{
		ID:            d.ID,
		OwnerID:       ownerID,
		Title:         d.Title,
		Body:          d.Body,
		Mood:          d.Mood,
		Attachments:   d.Attachments,
		SchemaVersion: d.SchemaVersion,
		LastModified:  d.LastModified,
	}
}
