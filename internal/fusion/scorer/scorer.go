// Package scorer assigns a cross-source verification confidence to a fusion
// attempt. The algorithm is a fixed rule table, not a model: identical inputs
// always produce the identical level, which keeps scores reproducible and
// auditable.
package scorer

import (
	"fmt"
	"time"

	"fusionledger/internal/fusion/models"
)

// CorroborationWindow is how close two source timestamps must be for the
// sources to count as tightly cross-corroborated.
const CorroborationWindow = 24 * time.Hour

// Input carries the observations under evaluation with their already-parsed
// timestamps. A nil observation means that source was not supplied.
type Input struct {
	Community     models.Observation
	Clinical      models.Observation
	CommunityTime time.Time
	ClinicalTime  time.Time
}

// Result is the scoring outcome: a discrete level, its numeric score, and a
// human-readable reasoning string for the derivation chain.
type Result struct {
	Level     models.VerificationLevel
	Score     float64
	Reasoning string
}

// Scorer evaluates the cross-source confidence rules. It is stateless and
// safe for concurrent use.
type Scorer struct{}

func New() *Scorer {
	return &Scorer{}
}

// Score applies the rule table:
//
//	both sources, same location, < 24h apart  → CONFIRMED (1.0)
//	both sources otherwise                    → PROBABLE  (0.8)
//	exactly one source                        → POSSIBLE  (0.5)
//	no sources (defensive)                    → UNVERIFIED (0.3)
//
// CONFLICT (0.0) is reserved for explicit contradiction detection and is
// never produced here.
func (s *Scorer) Score(in Input) Result {
	switch {
	case in.Community != nil && in.Clinical != nil:
		return s.scorePair(in)
	case in.Community != nil:
		return result(models.VerificationPossible,
			fmt.Sprintf("single source (%s) provides no cross-corroboration", models.SourceCommunitySignal))
	case in.Clinical != nil:
		return result(models.VerificationPossible,
			fmt.Sprintf("single source (%s) provides no cross-corroboration", models.SourceClinicalRecord))
	default:
		return result(models.VerificationUnverified, "no observations supplied")
	}
}

func (s *Scorer) scorePair(in Input) Result {
	communityLoc := in.Community.Location()
	clinicalLoc := in.Clinical.Location()

	delta := in.ClinicalTime.Sub(in.CommunityTime)
	if delta < 0 {
		delta = -delta
	}

	if communityLoc == clinicalLoc && delta < CorroborationWindow {
		return result(models.VerificationConfirmed,
			fmt.Sprintf("community signal and clinical record agree on location %q within %s", clinicalLoc, CorroborationWindow))
	}
	if communityLoc != clinicalLoc {
		return result(models.VerificationProbable,
			fmt.Sprintf("two independent sources but location mismatch (%q vs %q)", communityLoc, clinicalLoc))
	}
	return result(models.VerificationProbable,
		fmt.Sprintf("two independent sources but timestamps %s apart exceed the %s corroboration window", delta, CorroborationWindow))
}

func result(level models.VerificationLevel, reasoning string) Result {
	return Result{Level: level, Score: level.Score(), Reasoning: reasoning}
}
