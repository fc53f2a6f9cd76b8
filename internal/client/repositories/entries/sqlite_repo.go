package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/daybook-app/daybook/internal/client/models"
	"github.com/daybook-app/daybook/internal/common"
	"github.com/daybook-app/daybook/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateOrUpdate upserts an entry by id, replacing all columns on conflict.
func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, e *models.Entry) error {
	attachments, err := json.Marshal(e.Attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}

	query := ` INSERT INTO entries (id, owner_id, title, body, mood, attachments, last_modified, server_ts, sync_status)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id,
				title = excluded.title,
				body = excluded.body,
				mood = excluded.mood,
				attachments = excluded.attachments,
				last_modified = excluded.last_modified,
				server_ts = excluded.server_ts,
				sync_status = excluded.sync_status
	`
	_, err = r.db.ExecContext(ctx, query,
		e.Id, e.OwnerId, e.Title, e.Body, e.Mood, string(attachments),
		e.LastModified.UnixNano(), e.ServerTS, string(e.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

const entryColumns = `id, owner_id, title, body, mood, attachments, last_modified, server_ts, sync_status`

func scanEntry(scan func(dest ...any) error) (*models.Entry, error) {
	var (
		e           models.Entry
		attachments string
		modified    int64
		status      string
	)
	if err := scan(&e.Id, &e.OwnerId, &e.Title, &e.Body, &e.Mood, &attachments, &modified, &e.ServerTS, &status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attachments), &e.Attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}
	e.LastModified = time.Unix(0, modified).UTC()
	e.Status = models.SyncStatus(status)
	return &e, nil
}

// GetByID returns an entry by id, including tombstones.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	row := r.db.QueryRowContext(ctx, `select `+entryColumns+` from entries where id=?`, id)

	e, err := scanEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return e, nil
}

// GetAll lists an owner's entries excluding tombstones, newest first.
func (r *SQLiteRepository) GetAll(ctx context.Context, ownerId string) ([]models.Entry, error) {
	query := `select ` + entryColumns + ` from entries
			where owner_id=? and sync_status != ?
			order by last_modified desc`
	rows, err := r.db.QueryContext(ctx, query, ownerId, string(models.StatusPendingDelete))
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAllPending returns entries awaiting sync, tombstones included.
func (r *SQLiteRepository) GetAllPending(ctx context.Context) ([]*models.Entry, error) {
	query := `select ` + entryColumns + ` from entries where sync_status != ?`
	rows, err := r.db.QueryContext(ctx, query, string(models.StatusSynced))
	if err != nil {
		return nil, fmt.Errorf("failed to select pending entries: %w", err)
	}
	defer rows.Close()

	var pending []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		pending = append(pending, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pending, nil
}

// Purge removes the row for id. It expects exactly one row to be affected.
func (r *SQLiteRepository) Purge(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `delete from entries where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to purge entry: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}
