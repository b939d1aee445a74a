// Package service orchestrates record fusion: it validates observation
// payloads, runs the pure scoring and merge stages, derives the audit
// trail, and owns the record store. All fusion-time failures are
// deterministic input-validation failures raised synchronously to the
// caller; no partial record is ever stored.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fusionledger/internal/fusion/hotcache"
	"fusionledger/internal/fusion/merger"
	fusionmetrics "fusionledger/internal/fusion/metrics"
	"fusionledger/internal/fusion/models"
	"fusionledger/internal/fusion/retention"
	"fusionledger/internal/fusion/scorer"
	"fusionledger/internal/fusion/store"
	id "fusionledger/pkg/domain"
	dErrors "fusionledger/pkg/domain-errors"
	"fusionledger/pkg/platform/sentinel"
	"fusionledger/pkg/requestcontext"
)

// FuseRequest carries one fusion attempt. At least one observation must be
// non-nil.
type FuseRequest struct {
	SubjectID       id.SubjectID
	CommunitySignal models.Observation
	ClinicalRecord  models.Observation
}

// Statistics is the read-only aggregate over the record store.
type Statistics struct {
	TotalRecords             int     `json:"total_records"`
	HotRecords               int     `json:"hot_records"`
	ColdRecords              int     `json:"cold_records"`
	AverageVerificationScore float64 `json:"average_verification_score"`
	FusionEventCount         int64   `json:"fusion_event_count"`
}

// Ledger is the public-facing fusion component. The scorer and merger are
// pure; the record store is the only mutable shared state, so concurrent
// fusions are safe as long as the store honors per-subject isolation.
type Ledger struct {
	records   store.RecordStore
	scorer    *scorer.Scorer
	merger    *merger.Merger
	retention *retention.Manager

	cache   *hotcache.Cache
	metrics *fusionmetrics.Metrics
	audit   *auditEmitter
	logger  *slog.Logger
	tracer  trace.Tracer

	// fusionEvents counts successful Fuse calls, including idempotent
	// re-fusions that stored nothing new. Distinct from TotalRecords.
	fusionEvents atomic.Int64
}

type ledgerConfig struct {
	retentionWindowDays int
	cache               *hotcache.Cache
	metrics             *fusionmetrics.Metrics
	auditPublisher      AuditPublisher
	logger              *slog.Logger
}

// Option configures a Ledger.
type Option func(*ledgerConfig)

// WithRetentionWindowDays overrides the 180-day default retention window.
func WithRetentionWindowDays(days int) Option {
	return func(cfg *ledgerConfig) { cfg.retentionWindowDays = days }
}

// WithCache attaches a hot-timeline cache.
func WithCache(cache *hotcache.Cache) Option {
	return func(cfg *ledgerConfig) { cfg.cache = cache }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *fusionmetrics.Metrics) Option {
	return func(cfg *ledgerConfig) { cfg.metrics = m }
}

// WithAuditPublisher attaches an audit sink.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(cfg *ledgerConfig) { cfg.auditPublisher = p }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *ledgerConfig) { cfg.logger = logger }
}

// New constructs a Ledger over the given record store.
func New(records store.RecordStore, opts ...Option) (*Ledger, error) {
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	cfg := &ledgerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		records:   records,
		scorer:    scorer.New(),
		merger:    merger.New(),
		retention: retention.NewManager(cfg.retentionWindowDays),
		cache:     cfg.cache,
		metrics:   cfg.metrics,
		audit:     newAuditEmitter(logger, cfg.auditPublisher),
		logger:    logger,
		tracer:    otel.Tracer("fusionledger/fusion"),
	}, nil
}

// Fuse reconciles the supplied observations into a single immutable record,
// appends it to the store, and returns it together with its derivation
// chain. Deterministic given identical inputs: only CreatedAt depends on
// the clock.
func (l *Ledger) Fuse(ctx context.Context, req FuseRequest) (*models.Record, error) {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "ledger.fuse",
		trace.WithAttributes(attribute.String("subject_id", req.SubjectID.String())))
	defer span.End()

	record, err := l.fuse(ctx, req)
	if err != nil {
		span.RecordError(err)
		if l.metrics != nil {
			l.metrics.ObserveFusionFailure(string(dErrors.GetCode(err)))
		}
		l.audit.emitFusionFailed(ctx, req.SubjectID, err)
		return nil, err
	}

	l.fusionEvents.Add(1)
	if l.metrics != nil {
		l.metrics.ObserveFusion(string(record.VerificationLevel), start)
	}
	l.audit.emitRecordFused(ctx, record)
	l.logger.InfoContext(ctx, "record fused",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", record.SubjectID,
		"record_id", record.ID,
		"event_kind", record.EventKind,
		"verification_level", record.VerificationLevel,
	)
	return record, nil
}

func (l *Ledger) fuse(ctx context.Context, req FuseRequest) (*models.Record, error) {
	subjectID, err := id.ParseSubjectID(req.SubjectID.String())
	if err != nil {
		return nil, err
	}
	if req.CommunitySignal == nil && req.ClinicalRecord == nil {
		return nil, dErrors.New(dErrors.CodeNoObservation, "at least one of community signal or clinical record is required")
	}

	// Parse stage: every supplied observation must carry a usable timestamp.
	var communityTime, clinicalTime time.Time
	if req.CommunitySignal != nil {
		if communityTime, err = req.CommunitySignal.Timestamp(models.SourceCommunitySignal); err != nil {
			return nil, err
		}
	}
	if req.ClinicalRecord != nil {
		if clinicalTime, err = req.ClinicalRecord.Timestamp(models.SourceClinicalRecord); err != nil {
			return nil, err
		}
	}
	eventTime := canonicalEventTime(req, communityTime, clinicalTime)

	// Pure stages: scoring and merge share no state.
	scored := l.scorer.Score(scorer.Input{
		Community:     req.CommunitySignal,
		Clinical:      req.ClinicalRecord,
		CommunityTime: communityTime,
		ClinicalTime:  clinicalTime,
	})
	merged := l.merger.Merge(req.CommunitySignal, req.ClinicalRecord)
	report := l.merger.DeriveReport(req.CommunitySignal, req.ClinicalRecord, merged)

	now := requestcontext.Now(ctx)
	record := &models.Record{
		ID:                id.DeriveRecordID(subjectID, eventTime),
		SubjectID:         subjectID,
		EventKind:         merged.EventKind,
		Location:          merged.Location,
		Timestamp:         eventTime,
		CreatedAt:         now,
		Sources:           buildSources(req, report),
		VerificationLevel: scored.Level,
		VerificationScore: scored.Score,
		CanonicalView:     merged.Canonical,
		DerivationChain:   buildDerivationChain(req, eventTime, scored, merged, report),
		Report:            report,
		RetentionState:    l.retention.State(eventTime, now),
	}

	if err := l.records.Append(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "a different record already exists for this subject and event time")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append record")
	}
	if l.cache != nil {
		l.cache.Invalidate(ctx, subjectID)
	}
	return record, nil
}

// canonicalEventTime picks the earliest contributing observation timestamp:
// earliest occurrence is the authoritative event time.
func canonicalEventTime(req FuseRequest, communityTime, clinicalTime time.Time) time.Time {
	switch {
	case req.CommunitySignal == nil:
		return clinicalTime
	case req.ClinicalRecord == nil:
		return communityTime
	case clinicalTime.Before(communityTime):
		return clinicalTime
	default:
		return communityTime
	}
}

func buildSources(req FuseRequest, report models.SurveillanceReport) map[models.SourceKind]models.Observation {
	sources := make(map[models.SourceKind]models.Observation, 3)
	if req.CommunitySignal != nil {
		sources[models.SourceCommunitySignal] = req.CommunitySignal.Clone()
	}
	if req.ClinicalRecord != nil {
		sources[models.SourceClinicalRecord] = req.ClinicalRecord.Clone()
	}
	sources[models.SourceSurveillanceReport] = models.Observation{
		models.KeyLocation:      report.Location,
		"disease_code":          report.DiseaseCode,
		"clinical_summary":      report.ClinicalSummary,
		"cross_source_verified": report.CrossSourceVerified,
		"submission_status":     report.SubmissionStatus,
	}
	return sources
}

func buildDerivationChain(req FuseRequest, eventTime time.Time, scored scorer.Result, merged merger.Result, report models.SurveillanceReport) []models.DerivationStep {
	parseInputs := map[string]string{
		string(models.SourceCommunitySignal): "absent",
		string(models.SourceClinicalRecord):  "absent",
	}
	scoreInputs := map[string]string{}
	if req.CommunitySignal != nil {
		parseInputs[string(models.SourceCommunitySignal)] = "supplied"
		scoreInputs["community_location"] = req.CommunitySignal.Location()
	}
	if req.ClinicalRecord != nil {
		parseInputs[string(models.SourceClinicalRecord)] = "supplied"
		scoreInputs["clinical_location"] = req.ClinicalRecord.Location()
	}

	return []models.DerivationStep{
		{
			Step:   models.StepParse,
			Inputs: parseInputs,
			Result: "canonical_timestamp=" + eventTime.UTC().Format(time.RFC3339),
		},
		{
			Step:   models.StepScore,
			Inputs: scoreInputs,
			Result: fmt.Sprintf("%s (%.1f): %s", scored.Level, scored.Score, scored.Reasoning),
		},
		{
			Step: models.StepMerge,
			Inputs: map[string]string{
				"community_fields": strconv.Itoa(len(req.CommunitySignal)),
				"clinical_fields":  strconv.Itoa(len(req.ClinicalRecord)),
			},
			Result: fmt.Sprintf("event_kind=%s location=%s", merged.EventKind, merged.Location),
		},
		{
			Step:   models.StepReport,
			Inputs: map[string]string{"diagnosis_key": models.KeyDiagnosis},
			Result: merger.ReportSummary(report),
		},
	}
}

// GetTimeline returns all records for a subject sorted ascending by
// canonical timestamp. An unknown subject yields an empty timeline, not an
// error: "no data yet" is not a bad request. Retention state is recomputed
// on every read.
func (l *Ledger) GetTimeline(ctx context.Context, subjectID id.SubjectID) ([]*models.Record, error) {
	parsed, err := id.ParseSubjectID(subjectID.String())
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if l.cache != nil {
		if cached, ok := l.cache.GetTimeline(ctx, parsed); ok {
			l.refreshRetention(ctx, cached, now)
			l.audit.emitTimelineQueried(ctx, parsed, len(cached))
			return cached, nil
		}
	}

	timeline, err := l.records.Timeline(ctx, parsed)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load timeline")
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})
	l.refreshRetention(ctx, timeline, now)

	if l.cache != nil && allHot(timeline) && len(timeline) > 0 {
		l.cache.SetTimeline(ctx, parsed, timeline)
	}
	l.audit.emitTimelineQueried(ctx, parsed, len(timeline))
	return timeline, nil
}

// GetRecord returns one record with its retention state recomputed.
func (l *Ledger) GetRecord(ctx context.Context, subjectID id.SubjectID, recordID id.RecordID) (*models.Record, error) {
	record, err := l.records.Get(ctx, subjectID, recordID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	l.refreshRetention(ctx, []*models.Record{record}, requestcontext.Now(ctx))
	return record, nil
}

// GetStatistics is a pure aggregate over the record store; safe to call
// concurrently with fusion.
func (l *Ledger) GetStatistics(ctx context.Context) (*Statistics, error) {
	records, err := l.records.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list records")
	}

	now := requestcontext.Now(ctx)
	stats := &Statistics{
		TotalRecords:     len(records),
		FusionEventCount: l.fusionEvents.Load(),
	}
	var scoreSum float64
	for _, record := range records {
		if l.retention.ShouldRemainHot(record.Timestamp, now) {
			stats.HotRecords++
		} else {
			stats.ColdRecords++
		}
		scoreSum += record.VerificationScore
	}
	if len(records) > 0 {
		stats.AverageVerificationScore = scoreSum / float64(len(records))
	}

	if l.metrics != nil {
		l.metrics.SetRetentionSplit(stats.HotRecords, stats.ColdRecords)
	}
	l.audit.emitStatisticsQueried(ctx, stats.TotalRecords)
	return stats, nil
}

// RetentionCheck is the query-only should-remain-hot predicate for callers
// deciding whether to keep a record in a fast-access cache. Mutates nothing.
func (l *Ledger) RetentionCheck(ctx context.Context, recordTimestamp time.Time) bool {
	return l.retention.ShouldRemainHot(recordTimestamp, requestcontext.Now(ctx))
}

// refreshRetention recomputes retention state in place on records handed to
// callers. The HOT→COLD transition observed here is emitted to the audit
// pipeline when the loaded state still said HOT.
func (l *Ledger) refreshRetention(ctx context.Context, records []*models.Record, now time.Time) {
	for _, record := range records {
		computed := l.retention.State(record.Timestamp, now)
		if record.RetentionState == models.RetentionHot && computed == models.RetentionCold {
			l.audit.emitRecordArchived(ctx, record)
		}
		record.RetentionState = computed
	}
}

func allHot(records []*models.Record) bool {
	for _, record := range records {
		if record.RetentionState != models.RetentionHot {
			return false
		}
	}
	return true
}

func wrapStoreErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "record not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "record store failure")
}
