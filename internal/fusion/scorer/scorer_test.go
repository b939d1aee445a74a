package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fusionledger/internal/fusion/models"
)

var base = time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

func communityAt(location string, at time.Time) (models.Observation, time.Time) {
	return models.Observation{models.KeyLocation: location, models.KeySymptom: "fever"}, at
}

func clinicalAt(location string, at time.Time) (models.Observation, time.Time) {
	return models.Observation{models.KeyLocation: location, models.KeyDiagnosis: "malaria"}, at
}

func TestScore_Confirmed(t *testing.T) {
	community, communityTime := communityAt("Nairobi", base)
	clinical, clinicalTime := clinicalAt("Nairobi", base.Add(-time.Hour))

	got := New().Score(Input{
		Community: community, CommunityTime: communityTime,
		Clinical: clinical, ClinicalTime: clinicalTime,
	})

	assert.Equal(t, models.VerificationConfirmed, got.Level)
	assert.Equal(t, 1.0, got.Score)
	assert.Contains(t, got.Reasoning, "Nairobi")
}

func TestScore_Probable(t *testing.T) {
	t.Run("time delta at or beyond 24h", func(t *testing.T) {
		community, communityTime := communityAt("Nairobi", base)
		clinical, clinicalTime := clinicalAt("Nairobi", base.Add(48*time.Hour))

		got := New().Score(Input{
			Community: community, CommunityTime: communityTime,
			Clinical: clinical, ClinicalTime: clinicalTime,
		})

		assert.Equal(t, models.VerificationProbable, got.Level)
		assert.Equal(t, 0.8, got.Score)
		assert.Contains(t, got.Reasoning, "corroboration window")
	})

	t.Run("exactly 24h apart is not confirmed", func(t *testing.T) {
		community, communityTime := communityAt("Nairobi", base)
		clinical, clinicalTime := clinicalAt("Nairobi", base.Add(CorroborationWindow))

		got := New().Score(Input{
			Community: community, CommunityTime: communityTime,
			Clinical: clinical, ClinicalTime: clinicalTime,
		})

		assert.Equal(t, models.VerificationProbable, got.Level)
	})

	t.Run("location mismatch", func(t *testing.T) {
		community, communityTime := communityAt("Nairobi", base)
		clinical, clinicalTime := clinicalAt("Mombasa", base.Add(time.Hour))

		got := New().Score(Input{
			Community: community, CommunityTime: communityTime,
			Clinical: clinical, ClinicalTime: clinicalTime,
		})

		assert.Equal(t, models.VerificationProbable, got.Level)
		assert.Contains(t, got.Reasoning, "location mismatch")
	})

	t.Run("location comparison is exact, not fuzzy", func(t *testing.T) {
		community, communityTime := communityAt("nairobi", base)
		clinical, clinicalTime := clinicalAt("Nairobi", base.Add(time.Hour))

		got := New().Score(Input{
			Community: community, CommunityTime: communityTime,
			Clinical: clinical, ClinicalTime: clinicalTime,
		})

		assert.Equal(t, models.VerificationProbable, got.Level)
	})
}

func TestScore_SingleSource(t *testing.T) {
	t.Run("clinical only", func(t *testing.T) {
		clinical, clinicalTime := clinicalAt("Nairobi", base)

		got := New().Score(Input{Clinical: clinical, ClinicalTime: clinicalTime})

		assert.Equal(t, models.VerificationPossible, got.Level)
		assert.Equal(t, 0.5, got.Score)
		assert.Contains(t, got.Reasoning, string(models.SourceClinicalRecord))
	})

	t.Run("community only", func(t *testing.T) {
		community, communityTime := communityAt("Nairobi", base)

		got := New().Score(Input{Community: community, CommunityTime: communityTime})

		assert.Equal(t, models.VerificationPossible, got.Level)
		assert.Contains(t, got.Reasoning, string(models.SourceCommunitySignal))
	})
}

func TestScore_NoSources(t *testing.T) {
	got := New().Score(Input{})

	assert.Equal(t, models.VerificationUnverified, got.Level)
	assert.Equal(t, 0.3, got.Score)
}

// Order of timestamps must not matter: |delta| is what counts.
func TestScore_DeltaIsSymmetric(t *testing.T) {
	community, communityTime := communityAt("Nairobi", base.Add(time.Hour))
	clinical, clinicalTime := clinicalAt("Nairobi", base)

	got := New().Score(Input{
		Community: community, CommunityTime: communityTime,
		Clinical: clinical, ClinicalTime: clinicalTime,
	})

	assert.Equal(t, models.VerificationConfirmed, got.Level)
}
