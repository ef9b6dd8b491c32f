package models

// RiskLevel classifies a composite risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskKeyword is one weighted keyword matched against a deal's notes.
type RiskKeyword struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// RiskPolicy holds one user's scoring settings. The four weights are
// expected to sum to 1.0 but the scoring engine does not enforce or
// normalize this; out-of-range composites are clamped instead.
type RiskPolicy struct {
	StalledThresholdDays int           `json:"stalled_threshold_days"`
	WeightAmount         float64       `json:"weight_amount"`
	WeightStage          float64       `json:"weight_stage"`
	WeightInactivity     float64       `json:"weight_inactivity"`
	WeightNotes          float64       `json:"weight_notes"`
	HighValueThreshold   float64       `json:"high_value_threshold"`
	RiskyStages          []string      `json:"risky_stages"`
	RiskKeywords         []RiskKeyword `json:"risk_keywords"`
}

// DefaultRiskPolicy returns the policy applied to users who have not saved
// their own settings yet.
func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		StalledThresholdDays: 7,
		WeightAmount:         0.25,
		WeightStage:          0.25,
		WeightInactivity:     0.3,
		WeightNotes:          0.2,
		HighValueThreshold:   100000,
		RiskyStages:          []string{"negotiation", "decisionmakerboughtin", "contractsent"},
		RiskKeywords: []RiskKeyword{
			{Word: "budget", Weight: 0.4},
			{Word: "delay", Weight: 0.3},
			{Word: "competitor", Weight: 0.5},
			{Word: "legal", Weight: 0.3},
		},
	}
}

// RiskResult is the explainable output of the scoring engine. Factors are
// ordered: amount, stage, inactivity, then keywords in policy order; the UI
// renders them positionally.
type RiskResult struct {
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors"`
}
