// Package retention decides whether a record is HOT (active, fast-access)
// or COLD (archived, audit-only) based on its canonical event time.
//
// The transition is HOT → COLD, one-directional. The manager recomputes the
// state lazily at read time and never runs a background sweep; archival
// side effects (moving bytes between storage tiers) belong to the
// surrounding system. The monotonicity of the transition is an assumption
// about forward-moving clocks, not something enforced against clock skew.
package retention

import (
	"time"

	"fusionledger/internal/fusion/models"
)

// DefaultWindowDays is the retention window applied when no configuration
// overrides it (the 6-month rule).
const DefaultWindowDays = 180

// Manager evaluates the retention window. Stateless after construction and
// safe for concurrent use.
type Manager struct {
	window time.Duration
}

// NewManager builds a manager with the given window in days; zero or
// negative values fall back to DefaultWindowDays.
func NewManager(windowDays int) *Manager {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Manager{window: time.Duration(windowDays) * 24 * time.Hour}
}

// ShouldRemainHot is the query-only predicate: true while now − eventTime is
// within the retention window. Callers use it to decide whether a record
// belongs in a fast-access cache without mutating anything.
func (m *Manager) ShouldRemainHot(eventTime, now time.Time) bool {
	return now.Sub(eventTime) <= m.window
}

// State maps the predicate onto the record state value.
func (m *Manager) State(eventTime, now time.Time) models.RetentionState {
	if m.ShouldRemainHot(eventTime, now) {
		return models.RetentionHot
	}
	return models.RetentionCold
}

// Window exposes the configured duration for logging and statistics.
func (m *Manager) Window() time.Duration {
	return m.window
}
