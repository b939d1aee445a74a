package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fusionledger/internal/fusion/models"
	"fusionledger/internal/fusion/service"
	"fusionledger/internal/fusion/store/memory"
	id "fusionledger/pkg/domain"
	dErrors "fusionledger/pkg/domain-errors"
	"fusionledger/pkg/platform/audit"
	auditmemory "fusionledger/pkg/platform/audit/store/memory"
	"fusionledger/pkg/platform/audit/publisher"
	"fusionledger/pkg/requestcontext"
)

type LedgerSuite struct {
	suite.Suite
	store      *memory.InMemoryStore
	auditStore *auditmemory.InMemoryStore
	ledger     *service.Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.auditStore = auditmemory.NewInMemoryStore()
	ledger, err := service.New(s.store,
		service.WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
	)
	s.Require().NoError(err)
	s.ledger = ledger
}

func communitySignal(location, symptom, timestamp string) models.Observation {
	return models.Observation{
		models.KeyLocation:  location,
		models.KeySymptom:   symptom,
		models.KeyTimestamp: timestamp,
	}
}

func clinicalRecord(location, diagnosis, timestamp string) models.Observation {
	return models.Observation{
		models.KeyLocation:  location,
		models.KeyDiagnosis: diagnosis,
		models.KeyTimestamp: timestamp,
	}
}

func (s *LedgerSuite) TestFuseCorroboratedSources() {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC))

	record, err := s.ledger.Fuse(ctx, service.FuseRequest{
		SubjectID:       "P-001",
		CommunitySignal: communitySignal("Nairobi", "fever", "2025-01-10T10:00:00Z"),
		ClinicalRecord:  clinicalRecord("Nairobi", "malaria", "2025-01-10T09:45:00Z"),
	})
	s.Require().NoError(err)

	s.Run("confirmed score", func() {
		s.Equal(models.VerificationConfirmed, record.VerificationLevel)
		s.InDelta(1.0, record.VerificationScore, 0.0001)
	})

	s.Run("canonical timestamp is the earliest observation", func() {
		s.Equal(time.Date(2025, 1, 10, 9, 45, 0, 0, time.UTC), record.Timestamp.UTC())
	})

	s.Run("clinical classification wins", func() {
		s.Equal(models.EventKindDiagnosis, record.EventKind)
		s.Equal("Nairobi", record.Location)
	})

	s.Run("canonical view keeps fields from both sources", func() {
		s.Equal("fever", record.CanonicalView[models.KeySymptom])
		s.Equal("malaria", record.CanonicalView[models.KeyDiagnosis])
	})

	s.Run("surveillance report derived", func() {
		s.Equal("B54", record.Report.DiseaseCode)
		s.True(record.Report.CrossSourceVerified)
		s.Equal(models.SubmissionStatusPending, record.Report.SubmissionStatus)
	})

	s.Run("fresh record is hot", func() {
		s.Equal(models.RetentionHot, record.RetentionState)
	})

	s.Run("compliance audit trail emitted", func() {
		events, err := s.auditStore.ListBySubject(ctx, "P-001")
		s.Require().NoError(err)
		actions := make([]string, 0, len(events))
		for _, e := range events {
			actions = append(actions, e.Action)
		}
		s.Contains(actions, string(audit.EventRecordFused))
		s.Contains(actions, string(audit.EventReportDerived))
	})
}

func (s *LedgerSuite) TestFuseDerivationChain() {
	ctx := context.Background()
	record, err := s.ledger.Fuse(ctx, service.FuseRequest{
		SubjectID:       "P-002",
		CommunitySignal: communitySignal("Kisumu", "cough", "2025-02-01T08:00:00Z"),
		ClinicalRecord:  clinicalRecord("Kisumu", "tuberculosis", "2025-02-01T12:00:00Z"),
	})
	s.Require().NoError(err)

	s.Require().Len(record.DerivationChain, 4)
	s.Equal(models.StepParse, record.DerivationChain[0].Step)
	s.Equal(models.StepScore, record.DerivationChain[1].Step)
	s.Equal(models.StepMerge, record.DerivationChain[2].Step)
	s.Equal(models.StepReport, record.DerivationChain[3].Step)

	s.Contains(record.DerivationChain[0].Result, "2025-02-01T08:00:00Z")
	s.Contains(record.DerivationChain[1].Result, string(models.VerificationConfirmed))
}

func (s *LedgerSuite) TestFuseIsDeterministic() {
	ctx := context.Background()
	req := service.FuseRequest{
		SubjectID:       "P-003",
		CommunitySignal: communitySignal("Mombasa", "headache", "2025-03-01T10:00:00Z"),
		ClinicalRecord:  clinicalRecord("Mombasa", "dengue", "2025-03-01T11:00:00Z"),
	}

	first, err := s.ledger.Fuse(ctx, req)
	s.Require().NoError(err)
	second, err := s.ledger.Fuse(ctx, req)
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal(first.VerificationScore, second.VerificationScore)
	s.Equal(first.CanonicalView, second.CanonicalView)

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, count, "re-fusing identical inputs must not duplicate the record")

	stats, err := s.ledger.GetStatistics(ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.TotalRecords)
	s.Equal(int64(2), stats.FusionEventCount)
}

func (s *LedgerSuite) TestFuseConflictingPayloadSameEventTime() {
	ctx := context.Background()

	first, err := s.ledger.Fuse(ctx, service.FuseRequest{
		SubjectID:      "P-014",
		ClinicalRecord: clinicalRecord("Nairobi", "malaria", "2025-03-01T10:00:00Z"),
	})
	s.Require().NoError(err)

	// Same subject and event time, different payload: the derived record ID
	// collides, and the divergent content must surface as a conflict rather
	// than a success that the timeline never reflects.
	_, err = s.ledger.Fuse(ctx, service.FuseRequest{
		SubjectID:      "P-014",
		ClinicalRecord: clinicalRecord("Nairobi", "cholera", "2025-03-01T10:00:00Z"),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	timeline, err := s.ledger.GetTimeline(ctx, "P-014")
	s.Require().NoError(err)
	s.Require().Len(timeline, 1)
	s.Equal(first.ID, timeline[0].ID)
	s.Equal("malaria", timeline[0].CanonicalView[models.KeyDiagnosis], "the stored record keeps the first payload")
}

func (s *LedgerSuite) TestFuseSingleSource() {
	ctx := context.Background()

	s.Run("community only", func() {
		record, err := s.ledger.Fuse(ctx, service.FuseRequest{
			SubjectID:       "P-004",
			CommunitySignal: communitySignal("Eldoret", "fever", "2025-04-01T10:00:00Z"),
		})
		s.Require().NoError(err)
		s.Equal(models.VerificationPossible, record.VerificationLevel)
		s.InDelta(0.5, record.VerificationScore, 0.0001)
		s.Equal(models.EventKindSymptomReport, record.EventKind)
	})

	s.Run("clinical only", func() {
		record, err := s.ledger.Fuse(ctx, service.FuseRequest{
			SubjectID:      "P-005",
			ClinicalRecord: clinicalRecord("Eldoret", "cholera", "2025-04-02T10:00:00Z"),
		})
		s.Require().NoError(err)
		s.Equal(models.VerificationPossible, record.VerificationLevel)
		s.Equal("A00", record.Report.DiseaseCode)
	})
}

func (s *LedgerSuite) TestFuseRejectsEmptyRequest() {
	ctx := context.Background()
	_, err := s.ledger.Fuse(ctx, service.FuseRequest{SubjectID: "P-006"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNoObservation))

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(0, count, "a rejected fusion must leave the store untouched")
}

func (s *LedgerSuite) TestFuseRejectsMalformedTimestamp() {
	ctx := context.Background()
	bad := clinicalRecord("Nairobi", "malaria", "not-a-timestamp")

	_, err := s.ledger.Fuse(ctx, service.FuseRequest{
		SubjectID:       "P-007",
		CommunitySignal: communitySignal("Nairobi", "fever", "2025-01-10T10:00:00Z"),
		ClinicalRecord:  bad,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeMalformedTimestamp))
	s.Contains(err.Error(), string(models.SourceClinicalRecord))

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(0, count)

	events, err := s.auditStore.ListBySubject(ctx, "P-007")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventFusionFailed), events[0].Action)
}

func (s *LedgerSuite) TestTimelineSortedByEventTime() {
	ctx := context.Background()
	subject := id.SubjectID("P-008")

	// Insert out of chronological order.
	for _, ts := range []string{"2025-05-03T10:00:00Z", "2025-05-01T10:00:00Z", "2025-05-02T10:00:00Z"} {
		_, err := s.ledger.Fuse(ctx, service.FuseRequest{
			SubjectID:      subject,
			ClinicalRecord: clinicalRecord("Nakuru", "measles", ts),
		})
		s.Require().NoError(err)
	}

	timeline, err := s.ledger.GetTimeline(ctx, subject)
	s.Require().NoError(err)
	s.Require().Len(timeline, 3)
	for i := 1; i < len(timeline); i++ {
		s.False(timeline[i].Timestamp.Before(timeline[i-1].Timestamp))
	}
}

func (s *LedgerSuite) TestTimelineUnknownSubjectIsEmpty() {
	timeline, err := s.ledger.GetTimeline(context.Background(), "never-seen")
	s.Require().NoError(err)
	s.Empty(timeline)
}

func (s *LedgerSuite) TestRetentionRecomputedOnRead() {
	created := time.Date(2025, 1, 10, 9, 45, 0, 0, time.UTC)
	fuseCtx := requestcontext.WithTime(context.Background(), created.Add(time.Hour))

	record, err := s.ledger.Fuse(fuseCtx, service.FuseRequest{
		SubjectID:      "P-009",
		ClinicalRecord: clinicalRecord("Nairobi", "malaria", "2025-01-10T09:45:00Z"),
	})
	s.Require().NoError(err)
	s.Equal(models.RetentionHot, record.RetentionState)

	s.Run("still hot inside the window", func() {
		ctx := requestcontext.WithTime(context.Background(), created.AddDate(0, 0, 10))
		timeline, err := s.ledger.GetTimeline(ctx, "P-009")
		s.Require().NoError(err)
		s.Require().Len(timeline, 1)
		s.Equal(models.RetentionHot, timeline[0].RetentionState)
	})

	s.Run("cold past the window", func() {
		ctx := requestcontext.WithTime(context.Background(), created.AddDate(0, 0, 200))
		timeline, err := s.ledger.GetTimeline(ctx, "P-009")
		s.Require().NoError(err)
		s.Require().Len(timeline, 1)
		s.Equal(models.RetentionCold, timeline[0].RetentionState)
	})

	s.Run("archival transition audited", func() {
		events, err := s.auditStore.ListBySubject(context.Background(), "P-009")
		s.Require().NoError(err)
		actions := make([]string, 0, len(events))
		for _, e := range events {
			actions = append(actions, e.Action)
		}
		s.Contains(actions, string(audit.EventRecordCold))
	})
}

func (s *LedgerSuite) TestRetentionCheck() {
	ledger, err := service.New(memory.NewInMemoryStore(), service.WithRetentionWindowDays(30))
	s.Require().NoError(err)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	s.True(ledger.RetentionCheck(ctx, now.AddDate(0, 0, -29)))
	s.False(ledger.RetentionCheck(ctx, now.AddDate(0, 0, -31)))
}

func (s *LedgerSuite) TestGetRecord() {
	ctx := context.Background()
	record, err := s.ledger.Fuse(ctx, service.FuseRequest{
		SubjectID:      "P-010",
		ClinicalRecord: clinicalRecord("Garissa", "cholera", "2025-06-10T10:00:00Z"),
	})
	s.Require().NoError(err)

	got, err := s.ledger.GetRecord(ctx, "P-010", record.ID)
	s.Require().NoError(err)
	s.Equal(record.ID, got.ID)

	_, err = s.ledger.GetRecord(ctx, "P-010", id.DeriveRecordID("P-010", time.Now()))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LedgerSuite) TestStatistics() {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fuseCtx := requestcontext.WithTime(context.Background(), created)

	// Two corroborated (1.0), one single-source (0.5).
	_, err := s.ledger.Fuse(fuseCtx, service.FuseRequest{
		SubjectID:       "P-011",
		CommunitySignal: communitySignal("Nairobi", "fever", "2024-12-30T10:00:00Z"),
		ClinicalRecord:  clinicalRecord("Nairobi", "malaria", "2024-12-30T11:00:00Z"),
	})
	s.Require().NoError(err)
	_, err = s.ledger.Fuse(fuseCtx, service.FuseRequest{
		SubjectID:       "P-012",
		CommunitySignal: communitySignal("Kisumu", "rash", "2024-02-01T10:00:00Z"),
		ClinicalRecord:  clinicalRecord("Kisumu", "measles", "2024-02-01T12:00:00Z"),
	})
	s.Require().NoError(err)
	_, err = s.ledger.Fuse(fuseCtx, service.FuseRequest{
		SubjectID:      "P-013",
		ClinicalRecord: clinicalRecord("Mombasa", "dengue", "2024-12-20T10:00:00Z"),
	})
	s.Require().NoError(err)

	statsCtx := requestcontext.WithTime(context.Background(), created)
	stats, err := s.ledger.GetStatistics(statsCtx)
	s.Require().NoError(err)

	s.Equal(3, stats.TotalRecords)
	s.Equal(int64(3), stats.FusionEventCount)
	s.Equal(2, stats.HotRecords, "late-2024 events fall inside the 180-day window")
	s.Equal(1, stats.ColdRecords, "the February event has aged out")
	s.InDelta((1.0+1.0+0.5)/3.0, stats.AverageVerificationScore, 0.0001)
}

func (s *LedgerSuite) TestStatisticsEmptyStore() {
	stats, err := s.ledger.GetStatistics(context.Background())
	s.Require().NoError(err)
	s.Equal(0, stats.TotalRecords)
	s.Zero(stats.AverageVerificationScore)
}
