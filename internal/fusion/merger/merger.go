// Package merger deterministically combines overlapping observation fields
// into one canonical view. Precedence is fixed: clinical-record fields
// overwrite community-signal fields, because the data entry closest to a
// professional clinical process wins ties.
package merger

import (
	"fmt"

	"fusionledger/internal/fusion/models"
	pstrings "fusionledger/pkg/platform/strings"
)

// Result is the merge outcome for one fusion attempt.
type Result struct {
	Canonical map[string]any
	Location  string
	EventKind models.EventKind
}

// Merger builds canonical views and classifies records. It is stateless and
// safe for concurrent use.
type Merger struct{}

func New() *Merger {
	return &Merger{}
}

// Merge applies community-signal fields first, then clinical-record fields
// on top. Location resolution follows the same precedence: the community
// location survives only when the clinical record supplies none.
func (m *Merger) Merge(community, clinical models.Observation) Result {
	canonical := make(map[string]any, len(community)+len(clinical))
	for k, v := range community {
		canonical[k] = v
	}
	for k, v := range clinical {
		canonical[k] = v
	}

	location := clinical.Location()
	if location == "" {
		location = community.Location()
	}
	canonical[models.KeyLocation] = location

	return Result{
		Canonical: canonical,
		Location:  location,
		EventKind: inferEventKind(community, clinical),
	}
}

// inferEventKind classifies by which fields are present. Clinical conditions
// are checked before community conditions: clinical classification takes
// precedence when both could apply.
func inferEventKind(community, clinical models.Observation) models.EventKind {
	switch {
	case clinical.Has(models.KeyDiagnosis):
		return models.EventKindDiagnosis
	case clinical.Has(models.KeyLabResult):
		return models.EventKindLabResult
	case clinical.Has(models.KeyHospitalization):
		return models.EventKindHospitalization
	case community.Has(models.KeySymptom):
		return models.EventKindSymptomReport
	case community.Has(models.KeyOutbreakAlert):
		return models.EventKindOutbreakAlert
	default:
		return models.EventKindUnknown
	}
}

// DeriveReport builds the surveillance submission projection from a merge
// result and the contributing sources. Read-only: it never feeds back into
// the canonical view.
func (m *Merger) DeriveReport(community, clinical models.Observation, merged Result) models.SurveillanceReport {
	var summary []string
	if symptom, ok := community[models.KeySymptom].(string); ok && symptom != "" {
		summary = append(summary, "symptom: "+symptom)
	}
	if diagnosis, ok := clinical[models.KeyDiagnosis].(string); ok && diagnosis != "" {
		summary = append(summary, "diagnosis: "+diagnosis)
	}
	if lab, ok := clinical[models.KeyLabResult].(string); ok && lab != "" {
		summary = append(summary, "lab result: "+lab)
	}

	diagnosis, _ := merged.Canonical[models.KeyDiagnosis].(string)

	return models.SurveillanceReport{
		Location:            merged.Location,
		DiseaseCode:         DiseaseCode(diagnosis),
		ClinicalSummary:     pstrings.DedupeAndTrim(summary),
		CrossSourceVerified: community != nil && clinical != nil,
		SubmissionStatus:    models.SubmissionStatusPending,
	}
}

// ReportSummary renders the projection for the derivation chain.
func ReportSummary(report models.SurveillanceReport) string {
	return fmt.Sprintf("disease_code=%s cross_source_verified=%t", report.DiseaseCode, report.CrossSourceVerified)
}
