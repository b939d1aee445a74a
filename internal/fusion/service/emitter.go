package service

import (
	"context"
	"log/slog"
	"strconv"

	"fusionledger/internal/fusion/models"
	id "fusionledger/pkg/domain"
	dErrors "fusionledger/pkg/domain-errors"
	"fusionledger/pkg/platform/audit"
	"fusionledger/pkg/requestcontext"
)

// AuditPublisher is the sink the ledger emits audit events to.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// auditEmitter wraps the publisher so that audit failures degrade to log
// warnings instead of failing the caller's request. A nil publisher is a
// no-op sink.
type auditEmitter struct {
	publisher AuditPublisher
	logger    *slog.Logger
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	return &auditEmitter{publisher: publisher, logger: logger}
}

func (e *auditEmitter) emit(ctx context.Context, event audit.Event) {
	if e.publisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := e.publisher.Emit(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"subject_id", event.SubjectID,
			"error", err,
		)
	}
}

func (e *auditEmitter) emitRecordFused(ctx context.Context, record *models.Record) {
	e.emit(ctx, audit.Event{
		Action:            string(audit.EventRecordFused),
		SubjectID:         record.SubjectID,
		RecordID:          record.ID.String(),
		VerificationLevel: string(record.VerificationLevel),
		RetentionState:    string(record.RetentionState),
	})
	e.emit(ctx, audit.Event{
		Action:    string(audit.EventReportDerived),
		SubjectID: record.SubjectID,
		RecordID:  record.ID.String(),
		Reason:    record.Report.DiseaseCode,
	})
}

func (e *auditEmitter) emitFusionFailed(ctx context.Context, subjectID id.SubjectID, err error) {
	e.emit(ctx, audit.Event{
		Action:    string(audit.EventFusionFailed),
		SubjectID: subjectID,
		Reason:    string(dErrors.GetCode(err)),
	})
}

func (e *auditEmitter) emitRecordArchived(ctx context.Context, record *models.Record) {
	e.emit(ctx, audit.Event{
		Action:         string(audit.EventRecordCold),
		SubjectID:      record.SubjectID,
		RecordID:       record.ID.String(),
		RetentionState: string(models.RetentionCold),
	})
}

func (e *auditEmitter) emitTimelineQueried(ctx context.Context, subjectID id.SubjectID, count int) {
	e.emit(ctx, audit.Event{
		Action:    string(audit.EventTimelineQueried),
		SubjectID: subjectID,
		Reason:    strconv.Itoa(count) + " records",
	})
}

func (e *auditEmitter) emitStatisticsQueried(ctx context.Context, total int) {
	e.emit(ctx, audit.Event{
		Action: string(audit.EventStatisticsQueried),
		Reason: strconv.Itoa(total) + " records",
	})
}
