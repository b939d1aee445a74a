// Package postgres persists fused records in PostgreSQL. Retention state is
// deliberately not a column: it is recomputed at read time, so only the
// immutable record body is stored.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"fusionledger/internal/fusion/models"
	id "fusionledger/pkg/domain"
	"fusionledger/pkg/platform/sentinel"
	"fusionledger/pkg/platform/tx"
)

// Store is a PostgreSQL-backed record store. Uniqueness of record identity
// is enforced by the primary key; ON CONFLICT DO NOTHING gives the same
// idempotent-append semantics as the in-memory store.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed record store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// writer returns the context transaction when one is active, so a caller
// batching multiple appends can make them atomic.
func (s *Store) writer(ctx context.Context) execer {
	if txn, ok := tx.From(ctx); ok {
		return txn
	}
	return s.db
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// Migrate creates the records table when missing. Kept idempotent so tests
// and service start can both call it.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fused_records (
			record_id          UUID PRIMARY KEY,
			subject_id         TEXT NOT NULL,
			event_kind         TEXT NOT NULL,
			location           TEXT NOT NULL,
			event_time         TIMESTAMPTZ NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL,
			sources            JSONB NOT NULL,
			verification_level TEXT NOT NULL,
			verification_score DOUBLE PRECISION NOT NULL,
			canonical_view     JSONB NOT NULL,
			derivation_chain   JSONB NOT NULL,
			report             JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS fused_records_subject_time_idx
			ON fused_records (subject_id, event_time);
	`)
	if err != nil {
		return fmt.Errorf("migrate fused_records: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	sources, err := json.Marshal(record.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	canonical, err := json.Marshal(record.CanonicalView)
	if err != nil {
		return fmt.Errorf("marshal canonical view: %w", err)
	}
	chain, err := json.Marshal(record.DerivationChain)
	if err != nil {
		return fmt.Errorf("marshal derivation chain: %w", err)
	}
	report, err := json.Marshal(record.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	query := `
		INSERT INTO fused_records (
			record_id, subject_id, event_kind, location, event_time, created_at,
			sources, verification_level, verification_score, canonical_view,
			derivation_chain, report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (record_id) DO NOTHING
	`
	res, err := s.writer(ctx).ExecContext(ctx, query,
		uuid.UUID(record.ID),
		record.SubjectID.String(),
		string(record.EventKind),
		record.Location,
		record.Timestamp,
		record.CreatedAt,
		sources,
		string(record.VerificationLevel),
		record.VerificationScore,
		canonical,
		chain,
		report,
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append record result: %w", err)
	}
	if affected == 0 {
		// The identity is already stored. Re-fusion of identical inputs is
		// a no-op; the same identity with different content is a conflict.
		existing, err := s.Get(ctx, record.SubjectID, record.ID)
		if err != nil {
			return fmt.Errorf("load existing record %s: %w", record.ID, err)
		}
		if !existing.ContentMatches(record) {
			return fmt.Errorf("record %s: %w", record.ID, sentinel.ErrConflict)
		}
	}
	return nil
}

const selectColumns = `
	record_id, subject_id, event_kind, location, event_time, created_at,
	sources, verification_level, verification_score, canonical_view,
	derivation_chain, report
`

func (s *Store) Timeline(ctx context.Context, subjectID id.SubjectID) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM fused_records WHERE subject_id = $1 ORDER BY event_time ASC`,
		subjectID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) Get(ctx context.Context, subjectID id.SubjectID, recordID id.RecordID) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM fused_records WHERE subject_id = $1 AND record_id = $2`,
		subjectID.String(), uuid.UUID(recordID),
	)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

func (s *Store) ListAll(ctx context.Context) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM fused_records ORDER BY subject_id, event_time ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fused_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		record          models.Record
		recordID        uuid.UUID
		subjectID       string
		eventKind       string
		level           string
		sources         []byte
		canonical       []byte
		derivationChain []byte
		report          []byte
	)
	err := row.Scan(
		&recordID, &subjectID, &eventKind, &record.Location,
		&record.Timestamp, &record.CreatedAt, &sources, &level,
		&record.VerificationScore, &canonical, &derivationChain, &report,
	)
	if err != nil {
		return nil, err
	}

	record.ID = id.RecordID(recordID)
	record.SubjectID = id.SubjectID(subjectID)
	record.EventKind = models.EventKind(eventKind)
	record.VerificationLevel = models.VerificationLevel(level)
	if err := json.Unmarshal(sources, &record.Sources); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	if err := json.Unmarshal(canonical, &record.CanonicalView); err != nil {
		return nil, fmt.Errorf("unmarshal canonical view: %w", err)
	}
	if err := json.Unmarshal(derivationChain, &record.DerivationChain); err != nil {
		return nil, fmt.Errorf("unmarshal derivation chain: %w", err)
	}
	if err := json.Unmarshal(report, &record.Report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	record.Timestamp = record.Timestamp.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}

func scanRecords(rows *sql.Rows) ([]*models.Record, error) {
	records := []*models.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
