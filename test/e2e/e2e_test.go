// test/e2e/e2e_test.go
//
// Full-assembly test: real router, detectors, executor, calculator,
// market agent, retriever, profile manager, and LLM engine, with the
// external endpoints (NSE, Yahoo, MFApi, chat completions) served by
// httptest fakes and Redis by miniredis.
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat-assistant/internal/calculator"
	"finchat-assistant/internal/common/config"
	"finchat-assistant/internal/common/database"
	"finchat-assistant/internal/common/logger"
	"finchat-assistant/internal/llm"
	"finchat-assistant/internal/market"
	"finchat-assistant/internal/profile"
	"finchat-assistant/internal/retriever"
	"finchat-assistant/internal/router"
)

type memStore struct {
	mu       sync.Mutex
	profiles map[string]*profile.Profile
}

func (s *memStore) Load(_ context.Context, userID string) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	return nil, profile.ErrNotFound
}

func (s *memStore) Save(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

type assistant struct {
	router   *router.Router
	profiles *profile.Manager
	llmReply string
	llmDown  bool
	mu       sync.Mutex
}

func (a *assistant) setLLMReply(reply string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.llmReply = reply
}

func yahooNum(v float64) map[string]float64 { return map[string]float64{"raw": v} }

func newAssistant(t *testing.T) *assistant {
	t.Helper()
	log := logger.NewTestLogger(t)
	a := &assistant{llmReply: "Happy to help with your finances."}

	nse := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var symbols []map[string]string
		if r.URL.Query().Get("q") == "reliance" {
			symbols = append(symbols, map[string]string{
				"symbol": "RELIANCE", "symbol_info": "Reliance Industries Limited",
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"symbols": symbols})
	}))
	t.Cleanup(nse.Close)

	yahoo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/RELIANCE.NS" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"quoteSummary": map[string]interface{}{
				"result": []interface{}{map[string]interface{}{
					"price": map[string]interface{}{
						"longName":           "Reliance Industries Limited",
						"regularMarketPrice": yahooNum(2850.50),
					},
					"summaryDetail": map[string]interface{}{
						"previousClose": yahooNum(2815.25),
					},
				}},
			},
		})
	}))
	t.Cleanup(yahoo.Close)

	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		down, reply := a.llmDown, a.llmReply
		a.mu.Unlock()
		if down {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(chat.Close)

	mr := miniredis.RunT(t)
	redis := &database.RedisClient{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}

	limits := config.LimitsConfig{
		SIPMinAmount: 100, SIPMaxAmount: 1000000, SIPMaxYears: 50,
		EMIMinLoan: 50000, EMIMaxLoan: 100000000,
		EMIMinInterest: 1, EMIMaxInterest: 30, EMIMaxTenure: 30,
		MinAge: 18, MaxAge: 80, MinRetirementAge: 30, MaxRetirementAge: 100,
		MinInvestment: 1000, MaxInvestment: 100000000,
		MinMonthlyExpense: 1000, MaxMonthlyExpense: 1000000,
	}
	defaults := config.DefaultsConfig{
		SIPReturn: 0.12, SIPYears: 10, EMIInterest: 8.5, EMITenureYears: 20,
		Inflation: 0.06, PostRetirementRate: 0.04, PostRetirementYears: 25,
		RetirementAge: 60,
	}

	ctx := context.Background()

	profiles := profile.NewManager(
		&memStore{profiles: map[string]*profile.Profile{}},
		redis, config.TTL(1800), log,
	)

	engine := llm.NewEngine(config.LLMConfig{
		BaseURL: chat.URL, Model: "test-model", Timeout: 5000,
		JSONTemperature: 0.3, ChatTemperature: 0.4,
		QueryMaxTokens: 300, SummaryMaxTokens: 200, ConversationTokens: 500,
	}, log)

	knowledge, err := retriever.New(ctx, config.KnowledgeConfig{
		DocsDir: t.TempDir(), ChunkSize: 400, ChunkOverlap: 100, TopK: 3,
		IndexName: "finchat-knowledge",
	}, nil, log)
	require.NoError(t, err)

	agent := market.New(ctx, config.MarketConfig{
		NSESearchURL:  nse.URL,
		YahooQuoteURL: yahoo.URL,
		Timeout:       5000,
		MaxRetries:    2,
		TopFundsLimit: 5,
	}, config.CacheConfig{StockTTL: 300, FundTTL: 3600, NegativeTTL: 3600}, redis, log)

	calc := calculator.New(limits, defaults, log)

	a.router = router.New(
		config.RouterConfig{},
		router.NewDetectors(limits, defaults, 5),
		router.NewExecutor(agent, calc, log),
		engine, knowledge, profiles, log,
	)
	a.profiles = profiles
	return a
}

func TestAssistantEndToEnd(t *testing.T) {
	a := newAssistant(t)
	ctx := context.Background()

	t.Run("sip calculation", func(t *testing.T) {
		a.setLLMReply("Your SIP would grow nicely.")
		resp := a.router.HandleQuery(ctx, "Calculate SIP of 10000 for 20 years at 12% returns", "e2e-user")

		assert.Equal(t, router.TypeFinance, resp.Type)
		assert.Equal(t, 10000.0, resp.Data["monthly_sip"])
		assert.Greater(t, resp.Data["maturity_amount"].(float64), 2400000.0)
		assert.NotEmpty(t, resp.Response)
	})

	t.Run("stock price through market agent", func(t *testing.T) {
		a.setLLMReply("Reliance is trading strong today.")
		resp := a.router.HandleQuery(ctx, "Reliance stock price", "e2e-user")

		assert.Equal(t, router.TypeFinance, resp.Type)
		assert.Equal(t, "Reliance Industries Limited", resp.Data["company"])
		assert.Equal(t, 2850.50, resp.Data["price"])
	})

	t.Run("conversational fallback", func(t *testing.T) {
		a.setLLMReply("SIP stands for Systematic Investment Plan.")
		resp := a.router.HandleQuery(ctx, "how should I think about saving", "e2e-user")

		assert.Equal(t, router.TypeConversational, resp.Type)
		assert.Equal(t, "SIP stands for Systematic Investment Plan.", resp.Response)
	})

	t.Run("profile defaults flow into detection", func(t *testing.T) {
		_, err := a.profiles.Create(ctx, "saver", profile.Details{
			Age: 40, MonthlyIncome: 100000, RiskAppetite: "moderate",
		})
		require.NoError(t, err)

		a.setLLMReply("Retirement summary.")
		resp := a.router.HandleQuery(ctx, "how much retirement corpus do I need", "saver")

		assert.Equal(t, router.TypeFinance, resp.Type)
		assert.Equal(t, 40, resp.Data["current_age"])
		assert.Equal(t, 70000.0, resp.Data["current_monthly_expense"])
	})

	t.Run("model outage", func(t *testing.T) {
		a.mu.Lock()
		a.llmDown = true
		a.mu.Unlock()

		resp := a.router.HandleQuery(ctx, "tell me a money joke", "e2e-user")

		assert.Equal(t, router.TypeError, resp.Type)
		assert.Contains(t, resp.Response, "having trouble processing your query")
	})
}
