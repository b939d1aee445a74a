package audit

import (
	"time"

	id "fusionledger/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: record
	// creation and archival transitions. These require durable storage and
	// long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled or aggregated with shorter retention.
	// Examples: timeline queries, statistics reads.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category          EventCategory
	Timestamp         time.Time
	SubjectID         id.SubjectID
	RecordID          string
	Action            string
	VerificationLevel string
	RetentionState    string
	Reason            string
	RequestID         string
}

type AuditEvent string

const (
	// Fusion events
	EventRecordFused   AuditEvent = "record_fused"
	EventFusionFailed  AuditEvent = "fusion_failed"
	EventRecordCold    AuditEvent = "record_archived"
	EventReportDerived AuditEvent = "surveillance_report_derived"

	// Query events
	EventTimelineQueried   AuditEvent = "timeline_queried"
	EventStatisticsQueried AuditEvent = "statistics_queried"
)

// eventCategories maps each audit event to its category.
// Compliance: regulatory significance, long retention required.
// Operations: debugging, operational visibility, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	EventRecordFused:   CategoryCompliance,
	EventRecordCold:    CategoryCompliance,
	EventReportDerived: CategoryCompliance,

	EventFusionFailed:      CategoryOperations,
	EventTimelineQueried:   CategoryOperations,
	EventStatisticsQueried: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
