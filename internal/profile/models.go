// internal/profile/models.go
package profile

import "time"

// Details holds the fields the user supplies at profile creation.
// Income is annual; MonthlyIncome is optional and consulted by the
// intent detectors when present.
type Details struct {
	Age           int     `json:"age"`
	Income        float64 `json:"income"`
	MonthlyIncome float64 `json:"monthly_income,omitempty"`
	RiskAppetite  string  `json:"risk_appetite"`
}

// ConversationEntry is one question/answer exchange.
type ConversationEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
}

// Profile is the full persisted user record.
type Profile struct {
	UserID              string                 `json:"user_id"`
	CreatedAt           time.Time              `json:"created_at"`
	Profile             Details                `json:"profile"`
	ConversationHistory []ConversationEntry    `json:"conversation_history"`
	FinancialGoals      []string               `json:"financial_goals"`
	Portfolio           map[string]interface{} `json:"portfolio"`
}

// Snapshot is the read-only view the intent detectors consult for
// defaults. A zero Snapshot means "no profile".
type Snapshot struct {
	Age           int
	MonthlyIncome float64
	RiskAppetite  string
}

// Snapshot projects the detector-facing fields out of a profile.
func (p *Profile) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	return Snapshot{
		Age:           p.Profile.Age,
		MonthlyIncome: p.Profile.MonthlyIncome,
		RiskAppetite:  p.Profile.RiskAppetite,
	}
}

// maxConversationHistory caps the stored exchange count per user.
const maxConversationHistory = 50
