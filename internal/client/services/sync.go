package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/daybook-app/daybook/internal/client/models"
	"github.com/daybook-app/daybook/internal/client/remote"
	"github.com/daybook-app/daybook/internal/client/repositories/entries"
	"github.com/daybook-app/daybook/internal/logging"
)

const (
	// pushAttempts bounds how many times a single push is tried before the
	// entry is left pending for the next drain.
	pushAttempts    = 3
	pushBackoffBase = 500 * time.Millisecond

	// drainConcurrency caps parallel pushes during a reconnect drain.
	drainConcurrency = 4
)

// Reachability reports whether the server is currently reachable and emits
// transition events. Satisfied by netmon.Monitor.
type Reachability interface {
	IsOnline() bool
	Events() <-chan bool
}

// SyncService keeps the local store and the remote document store converged.
// Every write lands locally first; network work never gates durability.
type SyncService interface {
	// Save persists the entry locally and, when online, pushes it.
	Save(ctx context.Context, entry *models.Entry) error

	// SaveLocal persists the entry without touching the network. Used by
	// the attachment pipeline to record intermediate upload state.
	SaveLocal(ctx context.Context, entry *models.Entry) error

	// Delete tombstones the entry locally and, when online, confirms the
	// deletion remotely before purging the local row.
	Delete(ctx context.Context, id string) error

	Get(ctx context.Context, id string) (*models.Entry, error)

	// List returns the local view, tombstones excluded, newest first.
	List(ctx context.Context) ([]models.Entry, error)

	// Fetch pulls the remote snapshot, merges it into the local store and
	// returns the merged view. Local pending changes always win.
	Fetch(ctx context.Context) ([]models.Entry, error)

	// DrainPending pushes every locally pending change. Failures are
	// collected; one entry failing never aborts the rest.
	DrainPending(ctx context.Context) error

	// Watch opens a live feed of merged snapshots.
	Watch(ctx context.Context) (*Feed, error)

	// Run drains pending changes whenever connectivity comes back.
	// Blocks until ctx is done.
	Run(ctx context.Context)
}

type syncService struct {
	client  remote.Client
	entries entries.Repository
	monitor Reachability
	log     logging.Logger
	owner   string
	locks   *keyedMutex
}

func NewSyncService(client remote.Client, repo entries.Repository, monitor Reachability, owner string, log logging.Logger) SyncService {
	return &syncService{
		client:  client,
		entries: repo,
		monitor: monitor,
		log:     log,
		owner:   owner,
		locks:   newKeyedMutex(),
	}
}

func (s *syncService) Save(ctx context.Context, entry *models.Entry) error {
	unlock := s.locks.lock(entry.Id)
	defer unlock()

	// a tombstone must never re-enter the write path; finishing the delete
	// is the only valid outcome for it
	if entry.Status == models.StatusPendingDelete {
		if !s.monitor.IsOnline() {
			return nil
		}
		return s.confirmDelete(ctx, entry)
	}

	entry.Touch()
	if err := s.entries.CreateOrUpdate(ctx, entry); err != nil {
		return fmt.Errorf("failed to save entry locally: %w", err)
	}
	if !s.monitor.IsOnline() {
		return nil
	}
	return s.push(ctx, entry)
}

func (s *syncService) SaveLocal(ctx context.Context, entry *models.Entry) error {
	unlock := s.locks.lock(entry.Id)
	defer unlock()

	// an entry whose attachments are not all uploaded is not fully synced
	if entry.Status == models.StatusSynced && len(entry.PendingAttachments()) > 0 {
		entry.Status = models.StatusPendingUpload
	}
	if err := s.entries.CreateOrUpdate(ctx, entry); err != nil {
		return fmt.Errorf("failed to save entry locally: %w", err)
	}
	return nil
}

func (s *syncService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load entry: %w", err)
	}
	entry.Status = models.StatusPendingDelete
	entry.Touch()
	if err := s.entries.CreateOrUpdate(ctx, entry); err != nil {
		return fmt.Errorf("failed to tombstone entry: %w", err)
	}
	if !s.monitor.IsOnline() {
		return nil
	}
	return s.confirmDelete(ctx, entry)
}

func (s *syncService) Get(ctx context.Context, id string) (*models.Entry, error) {
	return s.entries.GetByID(ctx, id)
}

func (s *syncService) List(ctx context.Context) ([]models.Entry, error) {
	return s.entries.GetAll(ctx, s.owner)
}

func (s *syncService) Fetch(ctx context.Context) ([]models.Entry, error) {
	snapshot, err := s.client.Query(ctx, s.owner, true)
	if errors.Is(err, remote.ErrMissingIndex) {
		s.log.Warn(ctx, "server cannot order by timestamp, sorting locally")
		snapshot, err = s.client.Query(ctx, s.owner, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query remote entries: %w", err)
	}
	return s.mergeSnapshot(ctx, snapshot)
}

// mergeSnapshot folds a remote snapshot into the local store and returns the
// merged view, newest first. Entries with local pending changes are kept
// as-is; only synced local state is refreshed from the snapshot.
func (s *syncService) mergeSnapshot(ctx context.Context, snapshot []models.Entry) ([]models.Entry, error) {
	pending, err := s.entries.GetAllPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending entries: %w", err)
	}
	pendingByID := make(map[string]*models.Entry, len(pending))
	for _, p := range pending {
		pendingByID[p.Id] = p
	}

	merged := make([]models.Entry, 0, len(snapshot))
	seen := make(map[string]bool, len(snapshot))
	for _, re := range snapshot {
		seen[re.Id] = true
		if local, ok := pendingByID[re.Id]; ok {
			if local.Status == models.StatusPendingDelete {
				continue
			}
			merged = append(merged, *local)
			continue
		}
		re := re
		unlock := s.locks.lock(re.Id)
		err := s.entries.CreateOrUpdate(ctx, &re)
		unlock()
		if err != nil {
			return nil, fmt.Errorf("failed to refresh local entry: %w", err)
		}
		merged = append(merged, re)
	}

	// local pending entries the server has not seen yet
	for id, local := range pendingByID {
		if !seen[id] && local.Status != models.StatusPendingDelete {
			merged = append(merged, *local)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].LastModified.After(merged[j].LastModified)
	})
	return merged, nil
}

func (s *syncService) DrainPending(ctx context.Context) error {
	pending, err := s.entries.GetAllPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pending entries: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(drainConcurrency)
	for _, p := range pending {
		entry := p
		g.Go(func() error {
			if err := s.syncOne(gctx, entry); err != nil {
				s.log.Warn(gctx, "failed to sync entry", "id", entry.Id, "error", err)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			// one entry failing must not abort the batch
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (s *syncService) syncOne(ctx context.Context, entry *models.Entry) error {
	unlock := s.locks.lock(entry.Id)
	defer unlock()

	if entry.Status == models.StatusPendingDelete {
		return s.confirmDelete(ctx, entry)
	}
	return s.push(ctx, entry)
}

// push sends the entry to the server with bounded retries on transient
// failures. On success the local row is re-persisted with the assigned server
// timestamp. On failure the entry simply stays pending. Callers hold the
// entry's lock.
func (s *syncService) push(ctx context.Context, entry *models.Entry) error {
	var serverTS int64
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		ts, err := s.client.Upsert(ctx, entry)
		if err != nil {
			if errors.Is(err, remote.ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		serverTS = ts
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push entry %s: %w", entry.Id, err)
	}

	entry.ServerTS = serverTS
	if len(entry.PendingAttachments()) > 0 {
		entry.Status = models.StatusPendingUpload
	} else {
		entry.Status = models.StatusSynced
	}
	if err := s.entries.CreateOrUpdate(ctx, entry); err != nil {
		return fmt.Errorf("failed to record pushed entry: %w", err)
	}
	return nil
}

// confirmDelete removes the remote document and purges the local tombstone.
// Callers hold the entry's lock.
func (s *syncService) confirmDelete(ctx context.Context, entry *models.Entry) error {
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		if err := s.client.Delete(ctx, entry.Id); err != nil {
			if errors.Is(err, remote.ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete entry %s remotely: %w", entry.Id, err)
	}
	if err := s.entries.Purge(ctx, entry.Id); err != nil {
		return fmt.Errorf("failed to purge tombstone: %w", err)
	}
	return nil
}

func (s *syncService) backoff() retry.Backoff {
	return retry.WithMaxRetries(pushAttempts-1, retry.NewExponential(pushBackoffBase))
}

func (s *syncService) Run(ctx context.Context) {
	events := s.monitor.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case online := <-events:
			if !online {
				continue
			}
			s.log.Info(ctx, "connectivity restored, draining pending changes")
			if err := s.DrainPending(ctx); err != nil {
				s.log.Warn(ctx, "pending drain finished with errors", "error", err)
			}
		}
	}
}
