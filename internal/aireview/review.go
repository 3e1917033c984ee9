// Package aireview produces spiritual-hunger assessments for newly
// logged prospects by delegating to an external language-model API.
// Analysis failures never block outreach recording: a fixed default
// review stands in whenever the model cannot be reached or returns
// something unusable.
package aireview

// HungerLevel classifies a prospect's estimated spiritual
// receptiveness.
type HungerLevel string

const (
	HungerLow    HungerLevel = "Low"
	HungerMedium HungerLevel = "Medium"
	HungerHigh   HungerLevel = "High"
)

// Review is the assessment attached to a prospect at creation time.
type Review struct {
	HungerLevel    HungerLevel `json:"hungerLevel"`
	SuggestedVerse string      `json:"suggestedVerse"`
	NextAction     string      `json:"nextAction"`
	Summary        string      `json:"summary"`
}

// DefaultReview is the deterministic stand-in used whenever analysis
// fails or returns malformed output. Prospects are never persisted
// without a review.
func DefaultReview() Review {
	return Review{
		HungerLevel:    HungerMedium,
		SuggestedVerse: "Psalm 23:1",
		NextAction:     "Schedule a follow-up visit",
		Summary:        "Analysis unavailable; review this prospect personally.",
	}
}

func validLevel(l HungerLevel) bool {
	switch l {
	case HungerLow, HungerMedium, HungerHigh:
		return true
	}
	return false
}
