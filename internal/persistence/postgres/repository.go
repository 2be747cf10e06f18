package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ardhimaskoi/Davin-App/internal/domain"
	"github.com/ardhimaskoi/Davin-App/internal/events"
	"github.com/ardhimaskoi/Davin-App/internal/observability"
)

// Repository provides Postgres-backed persistence for activity records and
// outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `record_id, subject_id, action, asset, quantity, fingerprint, confirmation_id, created_at`

// Insert persists the record and its proof.anchored outbox event inside a
// single transaction, returning the assigned record id. A unique-violation on
// (subject_id, action, fingerprint) maps to ErrDuplicateFingerprint: the
// signature of the same submission being double-recorded locally.
func (r *Repository) Insert(ctx context.Context, record domain.ActivityRecord) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insertRecord = `INSERT INTO activity_records (subject_id, action, asset, quantity, fingerprint, confirmation_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING record_id`

	var id int64
	err = tx.QueryRow(ctx, insertRecord,
		record.SubjectID,
		string(record.Action),
		record.Asset,
		record.Quantity,
		record.Fingerprint,
		record.ConfirmationID,
		record.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, domain.ErrDuplicateFingerprint
		}
		return 0, err
	}
	record.ID = id

	if err = r.insertOutbox(ctx, tx, record, "proof.anchored", events.ProofAnchored{
		RecordID:       record.ID,
		SubjectID:      record.SubjectID,
		Action:         string(record.Action),
		Asset:          record.Asset,
		Quantity:       record.Quantity.String(),
		Fingerprint:    record.Fingerprint,
		ConfirmationID: record.ConfirmationID,
		CreatedAt:      record.CreatedAt,
	}); err != nil {
		return 0, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return 0, err
	}
	observability.RecordProofAnchored(record.CreatedAt)
	return id, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, record domain.ActivityRecord, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(record)
	dedupeKey := fmt.Sprintf("%d:%s", record.ID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"activity_record",
		fmt.Sprintf("%d", record.ID),
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// GetByID retrieves an activity record, nil when absent.
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.ActivityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM activity_records WHERE record_id=$1`

	row := r.pool.QueryRow(ctx, query, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return record, nil
}

// ListBySubject returns records for a subject, newest first, with keyset
// pagination on (created_at, record_id).
func (r *Repository) ListBySubject(ctx context.Context, subjectID int64, cursor *domain.Cursor, limit int) ([]domain.ActivityRecord, *domain.Cursor, error) {
	args := []interface{}{subjectID, limit}
	query := `SELECT ` + recordColumns + ` FROM activity_records WHERE subject_id=$1`

	if cursor != nil {
		query += ` AND (created_at, record_id) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, record_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	results := make([]domain.ActivityRecord, 0, limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		results = append(results, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return results, nextCursor, nil
}

func scanRecord(row pgx.Row) (*domain.ActivityRecord, error) {
	var record domain.ActivityRecord
	var action string
	if err := row.Scan(&record.ID, &record.SubjectID, &action, &record.Asset, &record.Quantity, &record.Fingerprint, &record.ConfirmationID, &record.CreatedAt); err != nil {
		return nil, err
	}
	record.Action = domain.Action(action)
	return &record, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.ActivityRecord) string
}

var eventCatalog = map[string]EventMetadata{
	"proof.anchored": {
		Topic:         "proof_events",
		SchemaSubject: "proof_events-value",
		PartitionKeyFn: func(r domain.ActivityRecord) string {
			return fmt.Sprintf("%d", r.SubjectID)
		},
	},
}
