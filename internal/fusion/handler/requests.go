package handler

import (
	"time"

	"fusionledger/internal/fusion/models"
	dErrors "fusionledger/pkg/domain-errors"
)

// FuseRecordRequest is the POST /fusion/records body. Observation payloads
// are passed through as-is; the engine validates only the fields it reads.
type FuseRecordRequest struct {
	SubjectID       string             `json:"subject_id"`
	CommunitySignal models.Observation `json:"community_signal,omitempty"`
	ClinicalRecord  models.Observation `json:"clinical_record,omitempty"`
}

func (r *FuseRecordRequest) Validate() error {
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "subject_id is required")
	}
	return nil
}

// RecordResponse is the wire shape of a fused record.
type RecordResponse struct {
	RecordID          string                  `json:"record_id"`
	SubjectID         string                  `json:"subject_id"`
	EventKind         string                  `json:"event_kind"`
	Location          string                  `json:"location"`
	Timestamp         time.Time               `json:"timestamp"`
	VerificationLevel string                  `json:"verification_level"`
	VerificationScore float64                 `json:"verification_score"`
	CanonicalData     map[string]any          `json:"canonical_data"`
	DerivationChain   []models.DerivationStep `json:"derivation_chain"`
	RetentionStatus   string                  `json:"retention_status"`
}

func toRecordResponse(record *models.Record) RecordResponse {
	return RecordResponse{
		RecordID:          record.ID.String(),
		SubjectID:         record.SubjectID.String(),
		EventKind:         string(record.EventKind),
		Location:          record.Location,
		Timestamp:         record.Timestamp.UTC(),
		VerificationLevel: string(record.VerificationLevel),
		VerificationScore: record.VerificationScore,
		CanonicalData:     record.CanonicalView,
		DerivationChain:   record.DerivationChain,
		RetentionStatus:   string(record.RetentionState),
	}
}

// TimelineResponse is the GET timeline body.
type TimelineResponse struct {
	SubjectID string           `json:"subject_id"`
	Records   []RecordResponse `json:"records"`
}

// ReportResponse is the surveillance report projection of one record.
type ReportResponse struct {
	RecordID            string   `json:"record_id"`
	Location            string   `json:"location"`
	DiseaseCode         string   `json:"disease_code"`
	ClinicalSummary     []string `json:"clinical_summary"`
	CrossSourceVerified bool     `json:"cross_source_verified"`
	SubmissionStatus    string   `json:"submission_status"`
}
