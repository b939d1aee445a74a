package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fusionledger/internal/fusion/models"
	"fusionledger/pkg/testutil"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestState_DefaultWindow(t *testing.T) {
	m := NewManager(0)

	t.Run("10 days old is HOT", func(t *testing.T) {
		assert.Equal(t, models.RetentionHot, m.State(now.AddDate(0, 0, -10), now))
	})

	t.Run("200 days old is COLD", func(t *testing.T) {
		assert.Equal(t, models.RetentionCold, m.State(now.AddDate(0, 0, -200), now))
	})

	t.Run("exactly at the window boundary is still HOT", func(t *testing.T) {
		assert.Equal(t, models.RetentionHot, m.State(now.Add(-m.Window()), now))
	})

	t.Run("one second past the boundary is COLD", func(t *testing.T) {
		assert.Equal(t, models.RetentionCold, m.State(now.Add(-m.Window()-time.Second), now))
	})
}

func TestState_ConfiguredWindow(t *testing.T) {
	m := NewManager(30)

	assert.Equal(t, models.RetentionHot, m.State(now.AddDate(0, 0, -29), now))
	assert.Equal(t, models.RetentionCold, m.State(now.AddDate(0, 0, -31), now))
}

func TestShouldRemainHot(t *testing.T) {
	m := NewManager(180)

	assert.True(t, m.ShouldRemainHot(now.AddDate(0, 0, -1), now))
	assert.False(t, m.ShouldRemainHot(now.AddDate(0, 0, -181), now))
}

func TestNewManager_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, NewManager(DefaultWindowDays).Window(), NewManager(-5).Window())
}

func TestSixMonthRule(t *testing.T) {
	testutil.Given(t, "a record created six months ago", func(t *testing.T) {
		created := now.AddDate(0, -6, 0)
		m := NewManager(0)

		testutil.When(t, "retention is evaluated today", func(t *testing.T) {
			state := m.State(created, now)

			testutil.Then(t, "the record has aged out of fast access", func(t *testing.T) {
				assert.Equal(t, models.RetentionCold, state)
			})
		})
	})
}
