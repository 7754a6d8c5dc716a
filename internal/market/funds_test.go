package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat-assistant/internal/common/config"
	"finchat-assistant/internal/common/logger"
)

var testFundList = []Fund{
	{SchemeCode: 101, SchemeName: "HDFC Small Cap Fund - Direct Plan - Growth"},
	{SchemeCode: 102, SchemeName: "HDFC Small Cap Fund - Regular Plan - Growth"},
	{SchemeCode: 103, SchemeName: "Axis Bluechip Fund - Direct Plan - Growth"},
	{SchemeCode: 104, SchemeName: "SBI Equity Hybrid Fund - Regular Plan"},
	{SchemeCode: 105, SchemeName: "Parag Parikh Flexi Cap Fund - Direct - Growth"},
	{SchemeCode: 106, SchemeName: "Mirae Asset ELSS Tax Saver Fund - Direct Plan"},
}

func fundDetailsPayload(name string) map[string]interface{} {
	navHistory := make([]map[string]string, 300)
	// Newest first, NAV grew from 100 to 130 over the year.
	for i := range navHistory {
		nav := 130.0 - float64(i)*0.1
		navHistory[i] = map[string]string{"date": "01-01-2025", "nav": jsonNum(nav)}
	}
	return map[string]interface{}{
		"meta": map[string]string{"scheme_name": name, "fund_house": "Test AMC"},
		"data": navHistory,
	}
}

func jsonNum(v float64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func newFundAgent(t *testing.T) *Agent {
	mfapi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/mf" {
			json.NewEncoder(w).Encode(testFundList)
			return
		}
		for _, fund := range testFundList {
			if r.URL.Path == "/mf/"+jsonNum(float64(fund.SchemeCode)) {
				json.NewEncoder(w).Encode(fundDetailsPayload(fund.SchemeName))
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(mfapi.Close)

	cfg := config.MarketConfig{
		MFApiURL:         mfapi.URL,
		Timeout:          5000,
		MaxRetries:       1,
		TopFundsLimit:    5,
		FundListCacheDir: t.TempDir(),
		FundListCacheTTL: 86400,
	}
	ttls := config.CacheConfig{StockTTL: 300, FundTTL: 3600, NegativeTTL: 3600}
	return New(context.Background(), cfg, ttls, nil, logger.NewTestLogger(t))
}

func TestFundListLoadsAndIndexes(t *testing.T) {
	agent := newFundAgent(t)

	require.Len(t, agent.allFunds, len(testFundList))
	assert.NotEmpty(t, agent.fundsByCategory["small cap"])
	assert.NotEmpty(t, agent.fundsByCategory["elss"])
	assert.NotEmpty(t, agent.fundsByCategory["hybrid"])
}

func TestSearchFundMatch(t *testing.T) {
	agent := newFundAgent(t)

	result := agent.SearchFund(context.Background(), "hdfc small cap fund nav")
	require.False(t, result.IsError(), "unexpected error: %v", result["error"])
	assert.Contains(t, result["name"], "HDFC Small Cap Fund")
	assert.Equal(t, 130.0, result["nav"])
	assert.Equal(t, "Test AMC", result["fund_house"])
	assert.Equal(t, "MFApi", result["data_source"])
	assert.Greater(t, result["returns_1y"].(float64), 0.0)
}

func TestSearchFundNoMatchReturnsCandidates(t *testing.T) {
	agent := newFundAgent(t)

	result := agent.SearchFund(context.Background(), "quantum gold savings")
	require.True(t, result.IsError())
	assert.Contains(t, result.ErrorMessage(), "No exact fund match")

	candidates, ok := result["candidates"].([]interface{})
	require.True(t, ok)
	assert.LessOrEqual(t, len(candidates), 3)
	assert.NotEmpty(t, candidates)
}

func TestSearchFundEmptyList(t *testing.T) {
	cfg := config.MarketConfig{Timeout: 1000, TopFundsLimit: 5}
	agent := New(context.Background(), cfg, config.CacheConfig{}, nil, logger.NewTestLogger(t))

	result := agent.SearchFund(context.Background(), "anything")
	require.True(t, result.IsError())
	assert.Contains(t, result.ErrorMessage(), "fund list unavailable")
}

func TestGetTopFundsPrefersDirectPlans(t *testing.T) {
	agent := newFundAgent(t)

	result := agent.GetTopFunds(context.Background(), "small cap", 5)
	require.False(t, result.IsError())
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "Small Cap", result["category"])

	funds, ok := result["funds"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, funds)
	for _, f := range funds {
		details := f.(map[string]interface{})
		assert.Equal(t, "direct", details["plan_type"])
		assert.Contains(t, strings.ToLower(details["name"].(string)), "small cap")
	}
}

func TestGetTopFundsUnknownCategory(t *testing.T) {
	agent := newFundAgent(t)

	result := agent.GetTopFunds(context.Background(), "commodity", 5)
	require.True(t, result.IsError())
	assert.Contains(t, result.ErrorMessage(), "No funds found for 'commodity'")
}

func TestGetPersonalizedPortfolio(t *testing.T) {
	agent := newFundAgent(t)

	t.Run("young aggressive investor", func(t *testing.T) {
		result := agent.GetPersonalizedPortfolio(context.Background(), 25, "aggressive", 100000)
		require.False(t, result.IsError())

		profile := result["profile"].(map[string]interface{})
		assert.Equal(t, 90, profile["equity_allocation"])
		assert.Equal(t, 10, profile["debt_allocation"])

		allocation := result["allocation"].(map[string]float64)
		assert.Equal(t, 0.40, allocation["large cap"])
		assert.Equal(t, 0.10, allocation["elss"])
	})

	t.Run("conservative investor gets debt tilt", func(t *testing.T) {
		result := agent.GetPersonalizedPortfolio(context.Background(), 55, "conservative", 50000)
		require.False(t, result.IsError())

		allocation := result["allocation"].(map[string]float64)
		assert.Equal(t, 0.40, allocation["hybrid"])
		assert.Equal(t, 0.30, allocation["debt"])
		assert.NotContains(t, allocation, "small cap")
	})

	t.Run("monthly amounts follow allocation", func(t *testing.T) {
		result := agent.GetPersonalizedPortfolio(context.Background(), 25, "aggressive", 100000)
		recommended := result["recommended_funds"].(map[string]interface{})
		if entry, ok := recommended["small cap"].(map[string]interface{}); ok {
			assert.Equal(t, 20000.0, entry["monthly_amount"])
			assert.Equal(t, 20.0, entry["allocation_percentage"])
		}
	})
}

func TestAnnualizedReturn(t *testing.T) {
	t.Run("one year doubling", func(t *testing.T) {
		navs := make([]float64, 300)
		for i := range navs {
			navs[i] = 100
		}
		navs[0] = 200
		navs[252] = 100
		assert.Equal(t, 100.0, annualizedReturn(navs, 252))
	})

	t.Run("insufficient history", func(t *testing.T) {
		assert.Equal(t, 0.0, annualizedReturn([]float64{100, 99}, 252))
	})

	t.Run("zero old nav", func(t *testing.T) {
		navs := make([]float64, 300)
		navs[0] = 100
		assert.Equal(t, 0.0, annualizedReturn(navs, 252))
	})
}

func TestTokenSetRatio(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		assert.Equal(t, 100, tokenSetRatio("hdfc small cap", "hdfc small cap"))
	})

	t.Run("subset scores full", func(t *testing.T) {
		assert.Equal(t, 100, tokenSetRatio("hdfc small cap", "hdfc small cap fund direct plan growth"))
	})

	t.Run("word order irrelevant", func(t *testing.T) {
		assert.Equal(t, 100, tokenSetRatio("cap small hdfc", "hdfc small cap"))
	})

	t.Run("disjoint scores low", func(t *testing.T) {
		assert.Less(t, tokenSetRatio("quantum gold", "axis bluechip equity"), fundMatchThreshold)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, 0, tokenSetRatio("", "anything"))
	})
}
