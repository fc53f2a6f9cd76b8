package models

// Entry is the stored form of a journal entry document. LastModified is the
// client's wall clock in unix nanoseconds; ServerTS is this server's
// monotonically increasing write counter, assigned on every accepted upsert.
type Entry struct {
	ID            string
	OwnerID       string
	Title         string
	Body          string
	Mood          string
	Attachments   []string
	SchemaVersion int
	LastModified  int64
	ServerTS      int64
}
