package models

import (
	"encoding/json"
	"strconv"
	"time"

	dErrors "fusionledger/pkg/domain-errors"
)

// SourceKind identifies which upstream collaborator produced an observation.
type SourceKind string

const (
	// SourceCommunitySignal is a symptom/event report from community-level
	// collection, possibly low-precision.
	SourceCommunitySignal SourceKind = "community_signal"

	// SourceClinicalRecord is a diagnosis or lab result from a clinical
	// process, typically higher precision.
	SourceClinicalRecord SourceKind = "clinical_record"

	// SourceSurveillanceReport is derived by this engine, never supplied.
	SourceSurveillanceReport SourceKind = "surveillance_report"
)

// Well-known observation keys. Observations are otherwise opaque: the engine
// validates only the fields it reads and passes everything else through.
const (
	KeyTimestamp       = "timestamp"
	KeyLocation        = "location"
	KeyDiagnosis       = "diagnosis"
	KeyLabResult       = "lab_result"
	KeyHospitalization = "hospitalization"
	KeySymptom         = "symptom"
	KeyOutbreakAlert   = "outbreak_alert"
)

// Observation is one raw input payload from one data source about one
// subject/event. Heterogeneous and extensible, so it stays a string-keyed
// map rather than a fixed struct.
type Observation map[string]any

// Has reports whether the observation carries a non-nil value for key.
func (o Observation) Has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

// Location returns the free-text location string, or "" when absent or not
// a string.
func (o Observation) Location() string {
	s, _ := o[KeyLocation].(string)
	return s
}

// Timestamp parses the observation's timestamp field. Accepted forms are an
// RFC 3339 string (with or without sub-second precision or offset) and
// numeric Unix epoch seconds. The source kind names the offender in errors
// so callers can tell which payload to fix.
func (o Observation) Timestamp(source SourceKind) (time.Time, error) {
	v, ok := o[KeyTimestamp]
	if !ok || v == nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeMalformedTimestamp, "%s observation has no timestamp", source)
	}
	t, err := parseTimestamp(v)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeMalformedTimestamp, "%s observation timestamp %v is not RFC 3339 or epoch seconds", source, v)
	}
	return t, nil
}

// timestampLayouts are tried in order for string timestamps. The bare layout
// (no offset) is interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func parseTimestamp(v any) (time.Time, error) {
	switch tv := v.(type) {
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, tv, time.UTC); err == nil {
				return t, nil
			}
		}
		// A stringified epoch still counts as the numeric path.
		if secs, err := strconv.ParseFloat(tv, 64); err == nil {
			return epochToTime(secs), nil
		}
		return time.Time{}, dErrors.New(dErrors.CodeMalformedTimestamp, "unrecognized timestamp string")
	case float64:
		return epochToTime(tv), nil
	case float32:
		return epochToTime(float64(tv)), nil
	case int:
		return time.Unix(int64(tv), 0).UTC(), nil
	case int64:
		return time.Unix(tv, 0).UTC(), nil
	case json.Number:
		secs, err := tv.Float64()
		if err != nil {
			return time.Time{}, dErrors.New(dErrors.CodeMalformedTimestamp, "non-numeric timestamp")
		}
		return epochToTime(secs), nil
	default:
		return time.Time{}, dErrors.New(dErrors.CodeMalformedTimestamp, "unsupported timestamp type")
	}
}

func epochToTime(secs float64) time.Time {
	whole := int64(secs)
	frac := secs - float64(whole)
	return time.Unix(whole, int64(frac*float64(time.Second))).UTC()
}

// Clone returns a shallow copy so stored source payloads stay verbatim even
// if the caller mutates its map after fusion.
func (o Observation) Clone() Observation {
	if o == nil {
		return nil
	}
	out := make(Observation, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}
