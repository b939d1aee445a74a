package models

import (
	"encoding/json"
	"reflect"
	"time"

	id "fusionledger/pkg/domain"
	dErrors "fusionledger/pkg/domain-errors"
)

// VerificationLevel is the discrete cross-source confidence assigned to a
// record. The five levels are a fixed enumeration, not a continuous range,
// to keep scoring reproducible and testable.
type VerificationLevel string

const (
	// VerificationConfirmed: both sources present, same location, under 24h apart.
	VerificationConfirmed VerificationLevel = "CONFIRMED"
	// VerificationProbable: both sources present but not tightly corroborated.
	VerificationProbable VerificationLevel = "PROBABLE"
	// VerificationPossible: a single source.
	VerificationPossible VerificationLevel = "POSSIBLE"
	// VerificationUnverified: no sources (defensive; the ledger rejects this upstream).
	VerificationUnverified VerificationLevel = "UNVERIFIED"
	// VerificationConflict is reserved for explicit contradiction detection.
	// Nothing assigns it today; keep it so stored scores of 0.0 stay
	// interpretable if a later revision defines contradiction rules.
	VerificationConflict VerificationLevel = "CONFLICT"
)

// verificationScores is the single source of truth for level → score.
var verificationScores = map[VerificationLevel]float64{
	VerificationConfirmed:  1.0,
	VerificationProbable:   0.8,
	VerificationPossible:   0.5,
	VerificationUnverified: 0.3,
	VerificationConflict:   0.0,
}

// Score returns the numeric confidence in [0.0, 1.0] for this level.
func (v VerificationLevel) Score() float64 {
	return verificationScores[v]
}

// EventKind classifies a record by which observation fields were present.
type EventKind string

const (
	EventKindDiagnosis       EventKind = "diagnosis"
	EventKindLabResult       EventKind = "lab_result"
	EventKindHospitalization EventKind = "hospitalization"
	EventKindSymptomReport   EventKind = "symptom_report"
	EventKindOutbreakAlert   EventKind = "outbreak_alert"
	EventKindUnknown         EventKind = "unknown"
)

// RetentionState marks a record as fast-access or audit-only.
type RetentionState string

const (
	RetentionHot  RetentionState = "HOT"
	RetentionCold RetentionState = "COLD"
)

// DerivationStep is one entry in a record's audit trail: the step taken, the
// inputs it considered, and what it produced.
type DerivationStep struct {
	Step   string            `json:"step"`
	Inputs map[string]string `json:"inputs"`
	Result string            `json:"result"`
}

// Derivation step names. The chain always carries one parse step, exactly
// one scoring step, and exactly one merge step.
const (
	StepParse  = "parse_observations"
	StepScore  = "verification_scoring"
	StepMerge  = "canonical_merge"
	StepReport = "surveillance_report"
)

// SubmissionStatusPending is the initial state of a derived surveillance
// report; review and submission happen downstream.
const SubmissionStatusPending = "PENDING_REVIEW"

// SurveillanceReport is a read-only projection of the canonical view shaped
// as a disease-surveillance submission. It is stored alongside the record's
// sources, never independently persisted.
type SurveillanceReport struct {
	Location            string   `json:"location"`
	DiseaseCode         string   `json:"disease_code"`
	ClinicalSummary     []string `json:"clinical_summary"`
	CrossSourceVerified bool     `json:"cross_source_verified"`
	SubmissionStatus    string   `json:"submission_status"`
}

// Record is the reconciled, canonical state of one event for one subject at
// one point in time.
//
// Invariants:
//   - Immutable after creation except RetentionState
//   - VerificationLevel is one of the five defined levels
//   - DerivationChain has ≥1 entry, exactly one scoring and one merge entry
//   - Timestamp is the earliest contributing observation timestamp
//   - RetentionState is HOT iff now − Timestamp ≤ the retention window,
//     re-evaluated on read
type Record struct {
	ID        id.RecordID  `json:"record_id"`
	SubjectID id.SubjectID `json:"subject_id"`
	EventKind EventKind    `json:"event_kind"`
	Location  string       `json:"location"`

	// Timestamp is the canonical event time: the earliest contributing
	// observation timestamp. CreatedAt is the wall-clock fusion time.
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`

	// Sources holds the original per-source payloads verbatim, plus the
	// derived surveillance report under SourceSurveillanceReport.
	Sources map[SourceKind]Observation `json:"sources"`

	VerificationLevel VerificationLevel `json:"verification_level"`
	VerificationScore float64           `json:"verification_score"`

	CanonicalView   map[string]any   `json:"canonical_view"`
	DerivationChain []DerivationStep `json:"derivation_chain"`

	Report SurveillanceReport `json:"surveillance_report"`

	// RetentionState is the only field that may change after creation.
	RetentionState RetentionState `json:"retention_state"`
}

// Validate checks the construction-time invariants. The merger and scorer
// uphold these by design; Validate is the guard at the store boundary.
func (r *Record) Validate() error {
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "record has no subject id")
	}
	if _, ok := verificationScores[r.VerificationLevel]; !ok {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown verification level %q", r.VerificationLevel)
	}
	if r.VerificationScore != r.VerificationLevel.Score() {
		return dErrors.New(dErrors.CodeInvariantViolation, "verification score does not match level")
	}
	var scoreSteps, mergeSteps int
	for _, step := range r.DerivationChain {
		switch step.Step {
		case StepScore:
			scoreSteps++
		case StepMerge:
			mergeSteps++
		}
	}
	if len(r.DerivationChain) == 0 || scoreSteps != 1 || mergeSteps != 1 {
		return dErrors.New(dErrors.CodeInvariantViolation, "derivation chain must contain a parse step, one scoring step, and one merge step")
	}
	return nil
}

// ContentMatches reports whether two records were fused from the same
// source payloads. Record identity is derived from subject and event time
// alone, so two fusions can share an ID while carrying different content;
// stores use this check to tell an idempotent re-append from a genuine
// conflict. The comparison normalizes both sides through JSON so a record
// scanned back from a JSONB column compares equal to its in-memory
// original. CreatedAt and RetentionState are not record content.
func (r *Record) ContentMatches(other *Record) bool {
	if other == nil {
		return false
	}
	mine, ok := normalizeSources(r.Sources)
	if !ok {
		return false
	}
	theirs, ok := normalizeSources(other.Sources)
	if !ok {
		return false
	}
	return reflect.DeepEqual(mine, theirs)
}

func normalizeSources(sources map[SourceKind]Observation) (any, bool) {
	raw, err := json.Marshal(sources)
	if err != nil {
		return nil, false
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, false
	}
	return normalized, true
}

// Clone returns a copy whose maps and slices are independent of the
// original, so stores can hand out records without aliasing internal state.
func (r *Record) Clone() *Record {
	out := *r
	out.Sources = make(map[SourceKind]Observation, len(r.Sources))
	for kind, obs := range r.Sources {
		out.Sources[kind] = obs.Clone()
	}
	out.CanonicalView = make(map[string]any, len(r.CanonicalView))
	for k, v := range r.CanonicalView {
		out.CanonicalView[k] = v
	}
	out.DerivationChain = append([]DerivationStep(nil), r.DerivationChain...)
	out.Report.ClinicalSummary = append([]string(nil), r.Report.ClinicalSummary...)
	return &out
}
