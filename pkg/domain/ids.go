package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "fusionledger/pkg/domain-errors"
)

// SubjectID identifies the real-world entity (e.g., a patient) that
// observations and records pertain to. The value is assigned by upstream
// systems and treated as opaque here.
//
// Invariant: non-empty after trimming, at most 128 characters.
//
// Usage: construct via ParseSubjectID at trust boundaries to enforce the
// invariant; direct casting bypasses validation.
type SubjectID string

// ParseSubjectID validates and returns a SubjectID from external input.
func ParseSubjectID(s string) (SubjectID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	if len(s) > 128 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id must be 128 characters or less")
	}
	return SubjectID(s), nil
}

func (s SubjectID) String() string { return string(s) }

// RecordID identifies a fused record. It is a name-based UUID derived from
// the subject and the canonical event time, so refusing the same event twice
// yields the same identity.
type RecordID uuid.UUID

// recordNamespace seeds name-based record ID derivation. Fixed forever;
// changing it would change every derived record identity.
var recordNamespace = uuid.MustParse("6f7c9a4e-2b31-4f7d-9d55-0c8a3d1e8b42")

// DeriveRecordID deterministically derives a record ID from the owning
// subject and the canonical event timestamp.
func DeriveRecordID(subjectID SubjectID, eventTime time.Time) RecordID {
	name := subjectID.String() + "|" + eventTime.UTC().Format(time.RFC3339)
	return RecordID(uuid.NewSHA1(recordNamespace, []byte(name)))
}

// ParseRecordID validates and returns a RecordID from external input.
func ParseRecordID(s string) (RecordID, error) {
	if s == "" {
		return RecordID{}, dErrors.New(dErrors.CodeInvalidInput, "record id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return RecordID{}, dErrors.New(dErrors.CodeInvalidInput, "record id must be a valid UUID")
	}
	if u == uuid.Nil {
		return RecordID{}, dErrors.New(dErrors.CodeInvalidInput, "record id must not be the nil UUID")
	}
	return RecordID(u), nil
}

func (r RecordID) String() string { return uuid.UUID(r).String() }
