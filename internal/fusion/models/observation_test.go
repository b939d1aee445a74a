package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fusionledger/pkg/domain-errors"
)

func TestObservation_Timestamp(t *testing.T) {
	want := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	t.Run("parses RFC 3339 with Z", func(t *testing.T) {
		obs := Observation{KeyTimestamp: "2025-01-10T10:00:00Z"}
		got, err := obs.Timestamp(SourceCommunitySignal)
		require.NoError(t, err)
		assert.True(t, got.Equal(want))
	})

	t.Run("parses RFC 3339 with offset", func(t *testing.T) {
		obs := Observation{KeyTimestamp: "2025-01-10T13:00:00+03:00"}
		got, err := obs.Timestamp(SourceCommunitySignal)
		require.NoError(t, err)
		assert.True(t, got.Equal(want))
	})

	t.Run("parses bare ISO timestamp as UTC", func(t *testing.T) {
		obs := Observation{KeyTimestamp: "2025-01-10T10:00:00"}
		got, err := obs.Timestamp(SourceClinicalRecord)
		require.NoError(t, err)
		assert.True(t, got.Equal(want))
	})

	t.Run("parses epoch seconds from JSON number decoding", func(t *testing.T) {
		// encoding/json decodes numbers into float64
		obs := Observation{KeyTimestamp: float64(want.Unix())}
		got, err := obs.Timestamp(SourceClinicalRecord)
		require.NoError(t, err)
		assert.True(t, got.Equal(want))
	})

	t.Run("parses integer and json.Number epochs", func(t *testing.T) {
		for _, v := range []any{int(want.Unix()), int64(want.Unix()), json.Number("1736503200")} {
			obs := Observation{KeyTimestamp: v}
			got, err := obs.Timestamp(SourceClinicalRecord)
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "value %v (%T)", v, v)
		}
	})

	t.Run("missing timestamp is malformed", func(t *testing.T) {
		_, err := Observation{KeyLocation: "Nairobi"}.Timestamp(SourceCommunitySignal)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedTimestamp))
	})

	t.Run("unparseable string names the offending source", func(t *testing.T) {
		_, err := Observation{KeyTimestamp: "next tuesday"}.Timestamp(SourceClinicalRecord)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedTimestamp))
		assert.Contains(t, err.Error(), string(SourceClinicalRecord))
	})

	t.Run("unsupported type is malformed", func(t *testing.T) {
		_, err := Observation{KeyTimestamp: []string{"2025"}}.Timestamp(SourceCommunitySignal)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedTimestamp))
	})
}

func TestObservation_Clone(t *testing.T) {
	obs := Observation{KeySymptom: "fever", KeyLocation: "Nairobi"}
	clone := obs.Clone()
	clone[KeySymptom] = "cough"

	assert.Equal(t, "fever", obs[KeySymptom])
	assert.Nil(t, Observation(nil).Clone())
}

func TestVerificationLevel_Score(t *testing.T) {
	assert.Equal(t, 1.0, VerificationConfirmed.Score())
	assert.Equal(t, 0.8, VerificationProbable.Score())
	assert.Equal(t, 0.5, VerificationPossible.Score())
	assert.Equal(t, 0.3, VerificationUnverified.Score())
	assert.Equal(t, 0.0, VerificationConflict.Score())
}
