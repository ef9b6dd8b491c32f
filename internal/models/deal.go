package models

import (
	"encoding/json"
	"time"
)

// Deal is the locally persisted copy of a remote CRM deal.
// The (UserID, RemoteID) pair is the idempotency key: re-syncing the same
// remote deal updates this row in place, never inserts a second one.
type Deal struct {
	UserID       string       `json:"user_id"`
	RemoteID     string       `json:"remote_id"`
	Name         string       `json:"name"`
	Amount       *float64     `json:"amount,omitempty"`
	Stage        string       `json:"stage"`
	Metadata     DealMetadata `json:"metadata"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	LastSyncedAt time.Time    `json:"last_synced_at"`
}

// DealMetadata carries the derived fields computed during a sync pass plus
// any raw CRM properties that are not modeled as first-class columns.
//
// Historically the metadata bag was written under two key conventions
// ("company" vs "company_name", "nextStep" vs "next_step"). The custom JSON
// codec below normalizes both on read; writes always use the canonical keys.
type DealMetadata struct {
	Company      string
	Contact      string
	NextStep     string
	DaysInStage  int
	DaysInactive int
	RiskScore    int
	RiskLevel    string
	RiskFactors  []string

	// Extra holds CRM properties with no first-class field, keyed by the
	// raw property name.
	Extra map[string]string
}

// Canonical metadata keys. Legacy aliases are accepted on read only.
const (
	metaCompany      = "company"
	metaContact      = "contact"
	metaNextStep     = "nextStep"
	metaDaysInStage  = "daysInStage"
	metaDaysInactive = "daysInactive"
	metaRiskScore    = "riskScore"
	metaRiskLevel    = "riskLevel"
	metaRiskFactors  = "riskFactors"
)

// legacyAliases maps older metadata keys to their canonical names.
var legacyAliases = map[string]string{
	"company_name": metaCompany,
	"contact_name": metaContact,
	"next_step":    metaNextStep,
	"days_in_stage": metaDaysInStage,
	"days_inactive": metaDaysInactive,
	"risk_score":   metaRiskScore,
	"risk_level":   metaRiskLevel,
}

// MarshalJSON flattens the typed fields and the open map into one object.
func (m DealMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+8)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Company != "" {
		out[metaCompany] = m.Company
	}
	if m.Contact != "" {
		out[metaContact] = m.Contact
	}
	if m.NextStep != "" {
		out[metaNextStep] = m.NextStep
	}
	out[metaDaysInStage] = m.DaysInStage
	out[metaDaysInactive] = m.DaysInactive
	out[metaRiskScore] = m.RiskScore
	if m.RiskLevel != "" {
		out[metaRiskLevel] = m.RiskLevel
	}
	if len(m.RiskFactors) > 0 {
		out[metaRiskFactors] = m.RiskFactors
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a metadata object written under either key convention.
// Canonical keys win when both spellings are present.
func (m *DealMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	// Fold legacy aliases into canonical keys first.
	for alias, canonical := range legacyAliases {
		if v, ok := raw[alias]; ok {
			if _, exists := raw[canonical]; !exists {
				raw[canonical] = v
			}
			delete(raw, alias)
		}
	}

	*m = DealMetadata{}
	for key, v := range raw {
		switch key {
		case metaCompany:
			_ = json.Unmarshal(v, &m.Company)
		case metaContact:
			_ = json.Unmarshal(v, &m.Contact)
		case metaNextStep:
			_ = json.Unmarshal(v, &m.NextStep)
		case metaDaysInStage:
			_ = json.Unmarshal(v, &m.DaysInStage)
		case metaDaysInactive:
			_ = json.Unmarshal(v, &m.DaysInactive)
		case metaRiskScore:
			_ = json.Unmarshal(v, &m.RiskScore)
		case metaRiskLevel:
			_ = json.Unmarshal(v, &m.RiskLevel)
		case metaRiskFactors:
			_ = json.Unmarshal(v, &m.RiskFactors)
		default:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				// Non-string extras are kept as raw JSON text.
				s = string(v)
			}
			if m.Extra == nil {
				m.Extra = make(map[string]string)
			}
			m.Extra[key] = s
		}
	}
	return nil
}

// SyncReport summarizes one sync pass for one user.
type SyncReport struct {
	Connected bool `json:"connected"`
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
	Total     int  `json:"total"`
}
