// internal/profile/manager.go
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"finchat-assistant/internal/common/database"
	"finchat-assistant/internal/common/logger"
	"finchat-assistant/internal/common/metrics"
)

// Manager fronts the profile store with a redis read-through cache.
// The cache is best-effort: any cache failure falls back to the store.
type Manager struct {
	store    Store
	cache    *database.RedisClient
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewManager(store Store, cache *database.RedisClient, cacheTTL time.Duration, log logger.Logger) *Manager {
	return &Manager{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   log,
	}
}

func cacheKey(userID string) string {
	return "profile:" + userID
}

// Create builds and persists a fresh profile.
func (m *Manager) Create(ctx context.Context, userID string, details Details) (*Profile, error) {
	m.logger.Info("Creating new profile", map[string]interface{}{"user_id": userID})

	p := &Profile{
		UserID:              userID,
		CreatedAt:           time.Now().UTC(),
		Profile:             details,
		ConversationHistory: []ConversationEntry{},
		FinancialGoals:      []string{},
		Portfolio:           map[string]interface{}{},
	}
	if err := m.store.Save(ctx, p); err != nil {
		return nil, err
	}
	m.cacheSet(ctx, p)
	return p, nil
}

// Load returns the profile, or (nil, nil) when the user has none.
func (m *Manager) Load(ctx context.Context, userID string) (*Profile, error) {
	if p := m.cacheGet(ctx, userID); p != nil {
		metrics.CacheHits.WithLabelValues("profile", "hit").Inc()
		return p, nil
	}
	metrics.CacheHits.WithLabelValues("profile", "miss").Inc()

	p, err := m.store.Load(ctx, userID)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.cacheSet(ctx, p)
	return p, nil
}

// Snapshot returns the detector-facing view for the user. Load errors
// degrade to an empty snapshot so detection never fails on a cache or
// database hiccup.
func (m *Manager) Snapshot(ctx context.Context, userID string) Snapshot {
	p, err := m.Load(ctx, userID)
	if err != nil {
		m.logger.Warn("Profile load failed, using empty snapshot", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return Snapshot{}
	}
	return p.Snapshot()
}

// AddConversation appends an exchange, keeping only the most recent
// entries.
func (m *Manager) AddConversation(ctx context.Context, userID, question, answer string) error {
	p, err := m.Load(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		m.logger.Warn("Cannot add conversation, no profile", map[string]interface{}{"user_id": userID})
		return nil
	}

	p.ConversationHistory = append(p.ConversationHistory, ConversationEntry{
		Timestamp: time.Now().UTC(),
		Question:  question,
		Answer:    answer,
	})
	if n := len(p.ConversationHistory); n > maxConversationHistory {
		p.ConversationHistory = p.ConversationHistory[n-maxConversationHistory:]
	}

	if err := m.store.Save(ctx, p); err != nil {
		return err
	}
	m.cacheSet(ctx, p)
	return nil
}

// GetContextSummary renders the profile as the short text block handed
// to the LLM alongside conversational queries.
func (m *Manager) GetContextSummary(ctx context.Context, userID string) string {
	p, err := m.Load(ctx, userID)
	if err != nil || p == nil {
		return "New user, no previous context."
	}

	var b strings.Builder
	b.WriteString("User Profile:\n")
	b.WriteString(fmt.Sprintf("- Age: %d years old\n", p.Profile.Age))
	b.WriteString(fmt.Sprintf("- Annual Income: ₹%.0f\n", p.Profile.Income))
	b.WriteString(fmt.Sprintf("- Risk Appetite: %s\n", title(p.Profile.RiskAppetite)))

	if p.Profile.Income > 0 {
		monthlyInvestable := int(p.Profile.Income * 0.20 / 12)
		b.WriteString(fmt.Sprintf("- Suggested Monthly SIP: ₹%d\n", monthlyInvestable))
	}

	if p.Profile.Age > 0 {
		switch {
		case p.Profile.Age < 30:
			b.WriteString("- Investment Horizon: Long-term (30+ years)\n")
		case p.Profile.Age < 45:
			b.WriteString("- Investment Horizon: Medium-term (15-30 years)\n")
		default:
			b.WriteString("- Investment Horizon: Short-term (5-20 years)\n")
		}
	}

	return b.String()
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (m *Manager) cacheGet(ctx context.Context, userID string) *Profile {
	if m.cache == nil {
		return nil
	}
	raw, err := m.cache.Get(ctx, cacheKey(userID))
	if err != nil {
		return nil
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		m.logger.Warn("Corrupt cached profile, falling back to store", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil
	}
	return &p
}

func (m *Manager) cacheSet(ctx context.Context, p *Profile) {
	if m.cache == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, cacheKey(p.UserID), string(raw), m.cacheTTL); err != nil {
		m.logger.Warn("Profile cache write failed", map[string]interface{}{
			"user_id": p.UserID,
			"error":   err.Error(),
		})
	}
}
