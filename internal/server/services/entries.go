package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/daybook-app/daybook/internal/server/config"
	"github.com/daybook-app/daybook/internal/server/models"
	"github.com/daybook-app/daybook/internal/server/repositories/entries"
)

// Notifier is told after every accepted mutation so live watchers can be
// pushed a fresh snapshot. A nil notifier disables notifications.
type Notifier interface {
	EntriesChanged(ownerID string)
}

// EntryService stores journal documents and confirms attachment uploads.
type EntryService struct {
	db       *sql.DB
	config   *config.Config
	notifier Notifier
}

func NewEntryService(db *sql.DB, cfg *config.Config) *EntryService {
	return &EntryService{db: db, config: cfg}
}

// SetNotifier wires the live watch hub. Called once during startup.
func (s *EntryService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *EntryService) notify(ownerID string) {
	if s.notifier != nil {
		s.notifier.EntriesChanged(ownerID)
	}
}

// Upsert accepts a pushed document. The id is client-assigned, so a retried
// push overwrites its own previous write instead of duplicating.
func (s *EntryService) Upsert(ctx context.Context, entry *models.Entry) (int64, error) {
	if entry.ID == "" || entry.OwnerID == "" {
		return 0, fmt.Errorf("document id and owner are required")
	}
	if entry.Attachments == nil {
		entry.Attachments = []string{}
	}

	repo := entries.NewPostgresRepository(s.db)
	serverTS, err := repo.Upsert(ctx, entry)
	if err != nil {
		return 0, err
	}
	s.notify(entry.OwnerID)
	return serverTS, nil
}

func (s *EntryService) Get(ctx context.Context, ownerID, id string) (*models.Entry, error) {
	repo := entries.NewPostgresRepository(s.db)
	return repo.GetByID(ctx, ownerID, id)
}

func (s *EntryService) Query(ctx context.Context, ownerID string, byServerTS bool) ([]models.Entry, error) {
	repo := entries.NewPostgresRepository(s.db)
	return repo.QueryByOwner(ctx, ownerID, byServerTS)
}

func (s *EntryService) Delete(ctx context.Context, ownerID, id string) error {
	repo := entries.NewPostgresRepository(s.db)
	if err := repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.notify(ownerID)
	return nil
}

// MarkUploaded records a confirmed blob key on the document.
func (s *EntryService) MarkUploaded(ctx context.Context, ownerID, id, key string) error {
	repo := entries.NewPostgresRepository(s.db)
	if err := repo.AddAttachment(ctx, ownerID, id, key); err != nil {
		return err
	}
	s.notify(ownerID)
	return nil
}
