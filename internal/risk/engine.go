// Package risk scores deals. Scoring is a pure function of the deal input
// and the user's policy: no clock, no store, no network. The same input and
// policy always produce the same score and the same factor list, which is
// what makes the output explainable.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/dealguard/dealguard/internal/models"
)

// Input is the slice of a deal the scoring engine looks at.
type Input struct {
	Amount       float64
	Currency     string
	Stage        string
	DaysInactive int
	Notes        string
}

// Score evaluates one deal against a policy.
//
// Four indicators contribute: amount, stage, and inactivity are binary,
// keyword matches accumulate their weights capped at 1. The composite is the
// weighted sum scaled to 0..100 and clamped. Factors are appended in
// indicator order, keywords last in policy order.
func Score(in Input, policy models.RiskPolicy) models.RiskResult {
	var factors []string

	amountScore := 0.0
	if in.Amount >= policy.HighValueThreshold {
		amountScore = 1
		factors = append(factors, fmt.Sprintf("High-value deal: %s exceeds your threshold of %s",
			formatCurrency(in.Amount, in.Currency),
			formatCurrency(policy.HighValueThreshold, in.Currency)))
	}

	stageScore := 0.0
	stage := strings.ToLower(in.Stage)
	for _, risky := range policy.RiskyStages {
		if stage != "" && stage == strings.ToLower(risky) {
			stageScore = 1
			factors = append(factors, "Deal currently in a risky stage: "+in.Stage)
			break
		}
	}

	inactivityScore := 0.0
	if in.DaysInactive >= policy.StalledThresholdDays {
		inactivityScore = 1
		factors = append(factors, fmt.Sprintf("Inactive for %d days", in.DaysInactive))
	}

	keywordScore := 0.0
	notes := strings.ToLower(in.Notes)
	for _, kw := range policy.RiskKeywords {
		if kw.Word == "" {
			continue
		}
		if strings.Contains(notes, strings.ToLower(kw.Word)) {
			keywordScore += kw.Weight
			factors = append(factors, fmt.Sprintf("Keyword detected: %q", kw.Word))
		}
	}
	if keywordScore > 1 {
		keywordScore = 1
	}

	composite := amountScore*policy.WeightAmount +
		stageScore*policy.WeightStage +
		inactivityScore*policy.WeightInactivity +
		keywordScore*policy.WeightNotes

	score := int(math.Round(composite * 100))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return models.RiskResult{
		Score:   score,
		Level:   levelFor(score),
		Factors: factors,
	}
}

func levelFor(score int) models.RiskLevel {
	switch {
	case score >= 70:
		return models.RiskHigh
	case score >= 35:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
