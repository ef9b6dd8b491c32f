package risk

import "strings"

// Labels for the pipeline stages the CRM ships with, plus common custom
// ones. Anything else gets auto-formatted.
var stageLabels = map[string]string{
	"appointmentscheduled":  "Appointment Scheduled",
	"qualifiedtobuy":        "Qualified to Buy",
	"presentationscheduled": "Presentation Scheduled",
	"decisionmakerboughtin": "Decision Maker Bought In",
	"contractsent":          "Contract Sent",
	"closedwon":             "Closed Won",
	"closedlost":            "Closed Lost",
	"new":                   "New",
	"qualified":             "Qualified",
	"proposal":              "Proposal",
	"negotiation":           "Negotiation",
	"discovery":             "Discovery",
	"demo":                  "Demo",
	"evaluation":            "Evaluation",
	"onboarding":            "Onboarding",
}

// StageLabel turns a raw stage identifier into a readable label, e.g.
// "presentationscheduled" into "Presentation Scheduled".
func StageLabel(stage string) string {
	if stage == "" {
		return "Unknown"
	}

	normalized := strings.ToLower(stage)
	normalized = strings.NewReplacer("_", "", "-", "").Replace(normalized)
	if label, ok := stageLabels[normalized]; ok {
		return label
	}

	// Unknown stage: break camelCase and separators into spaced title case.
	var b strings.Builder
	prevLower := false
	for _, r := range stage {
		switch {
		case r == '_' || r == '-':
			b.WriteByte(' ')
			prevLower = false
		case r >= 'A' && r <= 'Z' && prevLower:
			b.WriteByte(' ')
			b.WriteRune(r)
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = r >= 'a' && r <= 'z'
		}
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return stage
	}
	return strings.Join(words, " ")
}
