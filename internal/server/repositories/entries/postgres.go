package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/daybook-app/daybook/internal/common"
	"github.com/daybook-app/daybook/internal/dbx"
	"github.com/daybook-app/daybook/internal/server/models"
)

// orderingIndex is created by a separate migration; ordered queries are
// rejected until it exists.
const orderingIndex = "idx_entries_owner_server_ts"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, entry *models.Entry) (int64, error) {
	attachments, err := json.Marshal(entry.Attachments)
	if err != nil {
		return 0, fmt.Errorf("failed to encode attachments: %w", err)
	}

	query :=
		`INSERT INTO entries (id, owner_id, title, body, mood, attachments, schema_version, last_modified, server_ts)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, nextval('entries_server_ts_seq'))
         ON CONFLICT (id) DO UPDATE SET
             title = EXCLUDED.title,
             body = EXCLUDED.body,
             mood = EXCLUDED.mood,
             attachments = EXCLUDED.attachments,
             schema_version = EXCLUDED.schema_version,
             last_modified = EXCLUDED.last_modified,
             server_ts = nextval('entries_server_ts_seq')
         WHERE entries.owner_id = EXCLUDED.owner_id
         RETURNING server_ts
         `

	var serverTS int64
	err = r.db.QueryRowContext(ctx, query,
		entry.ID, entry.OwnerID, entry.Title, entry.Body, entry.Mood,
		attachments, entry.SchemaVersion, entry.LastModified).Scan(&serverTS)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// the id exists but belongs to someone else
			return 0, common.ErrUnauthorized
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return serverTS, nil
}

const entryColumns = `id, owner_id, title, body, mood, attachments, schema_version, last_modified, server_ts`

func scanEntry(scan func(dest ...any) error) (*models.Entry, error) {
	e := &models.Entry{}
	var attachments []byte
	if err := scan(&e.ID, &e.OwnerID, &e.Title, &e.Body, &e.Mood, &attachments, &e.SchemaVersion, &e.LastModified, &e.ServerTS); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attachments, &e.Attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = $1 AND owner_id = $2`

	row := r.db.QueryRowContext(ctx, query, id, ownerID)
	e, err := scanEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) QueryByOwner(ctx context.Context, ownerID string, byServerTS bool) ([]models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE owner_id = $1`
	if byServerTS {
		ok, err := r.hasOrderingIndex(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, common.ErrMissingIndex
		}
		query += ` ORDER BY server_ts DESC`
	}

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) hasOrderingIndex(ctx context.Context) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = $1)`

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, orderingIndex).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id string) error {
	query := `DELETE FROM entries WHERE id = $1 AND owner_id = $2`

	if _, err := r.db.ExecContext(ctx, query, id, ownerID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddAttachment(ctx context.Context, ownerID, id, key string) error {
	query :=
		`UPDATE entries
         SET attachments = attachments || to_jsonb($3::text)
         WHERE id = $1 AND owner_id = $2 AND NOT attachments ? $3
         `

	res, err := r.db.ExecContext(ctx, query, id, ownerID, key)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		// either unknown id or the key is already recorded; confirm existence
		if _, err := r.GetByID(ctx, ownerID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) CountAttachments(ctx context.Context, ownerID string) (int64, error) {
	query :=
		`SELECT COALESCE(SUM(jsonb_array_length(attachments)), 0)
         FROM entries WHERE owner_id = $1
         `

	var count int64
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}
