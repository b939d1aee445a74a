package audit

import (
	"context"

	id "fusionledger/pkg/domain"
)

// Store persists audit events. Implementations must be safe for concurrent
// use; the publisher may append from multiple goroutines.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]Event, error)
	ListAll(ctx context.Context) ([]Event, error)
}
