package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/daybook-app/daybook/internal/client/imgx"
	"github.com/daybook-app/daybook/internal/client/models"
	"github.com/daybook-app/daybook/internal/client/remote"
	"github.com/daybook-app/daybook/internal/client/repositories/settings"
	"github.com/daybook-app/daybook/internal/common"
	"github.com/daybook-app/daybook/internal/filex"
	"github.com/daybook-app/daybook/internal/logging"
)

const (
	// pendingUploadsKey is the settings row holding the serialized upload
	// ticket queue. Tickets survive restarts.
	pendingUploadsKey = "pending_uploads"

	uploadAttempts    = 3
	uploadBackoffBase = 500 * time.Millisecond
)

// AttachmentService runs the image attachment pipeline: normalize, store on
// disk, record the ref on the entry, upload to blob storage and confirm. Every
// stage is durable before the next one starts, so a crash or disconnect at
// any point leaves a ticket that a later drain finishes.
type AttachmentService interface {
	// Attach processes the given raw images for the entry. Unreadable
	// images are skipped; failure of one never blocks the others.
	Attach(ctx context.Context, entry *models.Entry, images [][]byte) error

	// DrainUploads retries every ticketed upload. Tickets stay queued
	// until their upload succeeds or their entry disappears.
	DrainUploads(ctx context.Context) error

	// DeleteEntry removes the entry together with its attachment files
	// and blobs. Cleanup is best effort and never blocks the deletion.
	DeleteEntry(ctx context.Context, id string) error

	// Run drains the ticket queue whenever connectivity comes back.
	// Blocks until ctx is done.
	Run(ctx context.Context)
}

type attachmentService struct {
	client   remote.Client
	syncer   SyncService
	settings settings.Repository
	monitor  Reachability
	baseDir  string
	log      logging.Logger

	// qmu guards read-modify-write cycles on the ticket queue
	qmu sync.Mutex
}

func NewAttachmentService(client remote.Client, syncer SyncService, settings settings.Repository, monitor Reachability, baseDir string, log logging.Logger) AttachmentService {
	return &attachmentService{
		client:   client,
		syncer:   syncer,
		settings: settings,
		monitor:  monitor,
		baseDir:  baseDir,
		log:      log,
	}
}

func (s *attachmentService) Attach(ctx context.Context, entry *models.Entry, images [][]byte) error {
	var processed int
	for _, raw := range images {
		data, err := imgx.Normalize(raw, imgx.MaxDimension, imgx.MaxEncodedBytes)
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable image", "entry", entry.Id, "error", err)
			continue
		}
		ref, err := s.storeImage(entry, data)
		if err != nil {
			s.log.Warn(ctx, "skipping image that failed to store", "entry", entry.Id, "error", err)
			continue
		}
		entry.Attachments = append(entry.Attachments, ref)
		processed++
	}
	if processed == 0 && len(images) > 0 {
		return fmt.Errorf("no image could be processed")
	}

	// refs must hit disk before any upload is attempted
	if err := s.syncer.SaveLocal(ctx, entry); err != nil {
		return err
	}
	return s.uploadNew(ctx, entry)
}

// storeImage writes normalized image bytes under baseDir/owner/entry and
// verifies the write by decoding what actually landed on disk.
func (s *attachmentService) storeImage(entry *models.Entry, data []byte) (models.AttachmentRef, error) {
	dir := filepath.Join(s.baseDir, entry.OwnerId, entry.Id)
	if _, err := filex.EnsureDir(dir); err != nil {
		return models.AttachmentRef{}, fmt.Errorf("failed to create attachment dir: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+".jpg")
	if err := filex.WriteFileSync(path, data, 0o600); err != nil {
		return models.AttachmentRef{}, fmt.Errorf("failed to write attachment: %w", err)
	}

	written, err := os.ReadFile(path)
	if err == nil {
		err = imgx.Validate(written)
	}
	if err != nil {
		_ = os.Remove(path)
		return models.AttachmentRef{}, fmt.Errorf("attachment failed write verification: %w", err)
	}

	return models.AttachmentRef{LocalPath: path, CreatedAt: time.Now()}, nil
}

// uploadNew uploads the entry's unuploaded attachments. Transient failures
// become durable tickets for a later drain; terminal failures are reported.
// The updated entry is handed back through the sync engine either way.
func (s *attachmentService) uploadNew(ctx context.Context, entry *models.Entry) error {
	var errs error
	for i := range entry.Attachments {
		ref := &entry.Attachments[i]
		if ref.Uploaded() {
			continue
		}
		if !s.monitor.IsOnline() {
			if err := s.enqueueTicket(ctx, models.UploadTicket{
				LocalPath: ref.LocalPath,
				EntryID:   entry.Id,
				CreatedAt: time.Now(),
			}); err != nil {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		key, err := s.uploadOne(ctx, entry.Id, ref.LocalPath)
		if err != nil {
			if remote.Terminal(err) {
				errs = multierr.Append(errs, err)
				continue
			}
			s.log.Warn(ctx, "upload deferred", "entry", entry.Id, "path", ref.LocalPath, "error", err)
			if terr := s.enqueueTicket(ctx, models.UploadTicket{
				LocalPath: ref.LocalPath,
				EntryID:   entry.Id,
				CreatedAt: time.Now(),
			}); terr != nil {
				errs = multierr.Append(errs, terr)
			}
			continue
		}
		ref.RemoteKey = key
	}

	if err := s.syncer.Save(ctx, entry); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// uploadOne runs presign, PUT and confirmation as one retried unit.
func (s *attachmentService) uploadOne(ctx context.Context, entryID, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read attachment: %w", err)
	}

	var key string
	b := retry.WithMaxRetries(uploadAttempts-1, retry.NewExponential(uploadBackoffBase))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		k, url, err := s.client.PresignPut(ctx, entryID, filepath.Base(localPath))
		if err != nil {
			return classifyUpload(err)
		}
		if err := s.client.UploadObject(ctx, url, data); err != nil {
			return classifyUpload(err)
		}
		if err := s.client.MarkUploaded(ctx, entryID, k); err != nil {
			return classifyUpload(err)
		}
		key = k
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	return key, nil
}

func classifyUpload(err error) error {
	if remote.Terminal(err) {
		return err
	}
	return retry.RetryableError(err)
}

func (s *attachmentService) DrainUploads(ctx context.Context) error {
	s.qmu.Lock()
	defer s.qmu.Unlock()

	tickets, err := s.loadTickets(ctx)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		return nil
	}

	var (
		remaining []models.UploadTicket
		errs      error
	)
	for _, tk := range tickets {
		entry, err := s.syncer.Get(ctx, tk.EntryID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				// entry is gone, the ticket has nothing to serve
				_ = os.Remove(tk.LocalPath)
				continue
			}
			remaining = append(remaining, tk)
			errs = multierr.Append(errs, err)
			continue
		}
		key, err := s.uploadOne(ctx, tk.EntryID, tk.LocalPath)
		if err != nil {
			s.log.Warn(ctx, "ticketed upload failed, keeping ticket", "entry", tk.EntryID, "error", err)
			remaining = append(remaining, tk)
			errs = multierr.Append(errs, err)
			continue
		}
		for i := range entry.Attachments {
			if entry.Attachments[i].LocalPath == tk.LocalPath {
				entry.Attachments[i].RemoteKey = key
			}
		}
		if err := s.syncer.Save(ctx, entry); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if err := s.storeTickets(ctx, remaining); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (s *attachmentService) DeleteEntry(ctx context.Context, id string) error {
	entry, err := s.syncer.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load entry: %w", err)
	}

	for _, ref := range entry.Attachments {
		if ref.LocalPath != "" {
			if err := os.Remove(ref.LocalPath); err != nil && !os.IsNotExist(err) {
				s.log.Warn(ctx, "failed to remove attachment file", "path", ref.LocalPath, "error", err)
			}
		}
		if ref.Uploaded() && s.monitor.IsOnline() {
			if err := s.client.DeleteBlob(ctx, ref.RemoteKey); err != nil {
				s.log.Warn(ctx, "failed to remove attachment blob", "key", ref.RemoteKey, "error", err)
			}
		}
	}
	if err := s.dropTicketsFor(ctx, id); err != nil {
		s.log.Warn(ctx, "failed to drop upload tickets", "entry", id, "error", err)
	}

	return s.syncer.Delete(ctx, id)
}

func (s *attachmentService) Run(ctx context.Context) {
	events := s.monitor.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case online := <-events:
			if !online {
				continue
			}
			if err := s.DrainUploads(ctx); err != nil {
				s.log.Warn(ctx, "upload drain finished with errors", "error", err)
			}
		}
	}
}

func (s *attachmentService) enqueueTicket(ctx context.Context, ticket models.UploadTicket) error {
	s.qmu.Lock()
	defer s.qmu.Unlock()

	tickets, err := s.loadTickets(ctx)
	if err != nil {
		return err
	}
	for _, tk := range tickets {
		if tk.LocalPath == ticket.LocalPath {
			return nil
		}
	}
	return s.storeTickets(ctx, append(tickets, ticket))
}

func (s *attachmentService) dropTicketsFor(ctx context.Context, entryID string) error {
	s.qmu.Lock()
	defer s.qmu.Unlock()

	tickets, err := s.loadTickets(ctx)
	if err != nil {
		return err
	}
	kept := tickets[:0]
	for _, tk := range tickets {
		if tk.EntryID != entryID {
			kept = append(kept, tk)
		}
	}
	return s.storeTickets(ctx, kept)
}

// loadTickets and storeTickets expect qmu to be held.

func (s *attachmentService) loadTickets(ctx context.Context) ([]models.UploadTicket, error) {
	raw, err := s.settings.Get(ctx, pendingUploadsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload queue: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var tickets []models.UploadTicket
	if err := json.Unmarshal(raw, &tickets); err != nil {
		return nil, fmt.Errorf("failed to decode upload queue: %w", err)
	}
	return tickets, nil
}

func (s *attachmentService) storeTickets(ctx context.Context, tickets []models.UploadTicket) error {
	raw, err := json.Marshal(tickets)
	if err != nil {
		return fmt.Errorf("failed to encode upload queue: %w", err)
	}
	if err := s.settings.Set(ctx, pendingUploadsKey, raw); err != nil {
		return fmt.Errorf("failed to persist upload queue: %w", err)
	}
	return nil
}
