// Package store defines the record persistence contract. The record store is
// the only mutable shared resource in the engine; implementations must allow
// concurrent fusions for different subjects without blocking each other.
package store

import (
	"context"

	"fusionledger/internal/fusion/models"
	id "fusionledger/pkg/domain"
)

// RecordStore owns record identity and insertion order.
//
// Append is idempotent for identical content: appending a record whose ID is
// already stored with the same source payloads is a no-op, not an error, so
// re-fusing identical inputs stays deterministic without duplicating records.
// Appending a record whose ID is stored with different content returns an
// error wrapping sentinel.ErrConflict; the stored record is never replaced.
//
// Timeline returns all records for a subject sorted ascending by canonical
// event timestamp (not insertion order, which may differ when observations
// arrive out of order). An unknown subject yields an empty slice, not an
// error: "no data yet" is not a bad request.
type RecordStore interface {
	Append(ctx context.Context, record *models.Record) error
	Timeline(ctx context.Context, subjectID id.SubjectID) ([]*models.Record, error)
	Get(ctx context.Context, subjectID id.SubjectID, recordID id.RecordID) (*models.Record, error)
	ListAll(ctx context.Context) ([]*models.Record, error)
	Count(ctx context.Context) (int, error)
}
