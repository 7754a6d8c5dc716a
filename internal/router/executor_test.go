package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat-assistant/internal/action"
	"finchat-assistant/internal/calculator"
	"finchat-assistant/internal/common/logger"
)

type topFundsCall struct {
	category string
	limit    int
}

type portfolioCall struct {
	age    int
	risk   string
	amount float64
}

type fakeMarket struct {
	stockQueries   []string
	metricQueries  []string
	etfQueries     []string
	fundQueries    []string
	topFundsCalls  []topFundsCall
	portfolioCalls []portfolioCall
	result         action.Result
	panicOn        action.Kind
}

func (f *fakeMarket) reply(kind action.Kind) action.Result {
	if f.panicOn == kind {
		panic("market agent blew up")
	}
	if f.result != nil {
		return f.result
	}
	return action.Result{"source": string(kind)}
}

func (f *fakeMarket) GetStockPrice(_ context.Context, query string) action.Result {
	f.stockQueries = append(f.stockQueries, query)
	return f.reply(action.GetStockPrice)
}

func (f *fakeMarket) GetStockMetric(_ context.Context, query string) action.Result {
	f.metricQueries = append(f.metricQueries, query)
	return f.reply(action.GetStockMetric)
}

func (f *fakeMarket) GetETFPrice(_ context.Context, query string) action.Result {
	f.etfQueries = append(f.etfQueries, query)
	return f.reply(action.GetETFPrice)
}

func (f *fakeMarket) SearchFund(_ context.Context, query string) action.Result {
	f.fundQueries = append(f.fundQueries, query)
	return f.reply(action.SearchMutualFund)
}

func (f *fakeMarket) GetTopFunds(_ context.Context, category string, limit int) action.Result {
	f.topFundsCalls = append(f.topFundsCalls, topFundsCall{category, limit})
	return f.reply(action.GetTopFunds)
}

func (f *fakeMarket) GetPersonalizedPortfolio(_ context.Context, age int, risk string, amount float64) action.Result {
	f.portfolioCalls = append(f.portfolioCalls, portfolioCall{age, risk, amount})
	return f.reply(action.GetPortfolioRecommendation)
}

func newTestExecutor(t *testing.T, market *fakeMarket) *Executor {
	log := logger.NewTestLogger(t)
	return NewExecutor(market, calculator.New(testLimits(), testDefaults(), log), log)
}

func TestExecuteDispatchesMarketActions(t *testing.T) {
	market := &fakeMarket{}
	executor := newTestExecutor(t, market)
	ctx := context.Background()

	executor.Execute(ctx, &action.Detected{
		Action:     action.GetStockPrice,
		Parameters: map[string]interface{}{"query": "reliance stock price"},
	})
	executor.Execute(ctx, &action.Detected{
		Action:     action.SearchMutualFund,
		Parameters: map[string]interface{}{"query": "hdfc small cap nav"},
	})
	executor.Execute(ctx, &action.Detected{
		Action:     action.GetTopFunds,
		Parameters: map[string]interface{}{"category": "elss", "limit": 5},
	})
	executor.Execute(ctx, &action.Detected{
		Action: action.GetPortfolioRecommendation,
		Parameters: map[string]interface{}{
			"age": 30, "risk_appetite": "moderate", "investment_amount": 100000.0,
		},
	})

	assert.Equal(t, []string{"reliance stock price"}, market.stockQueries)
	assert.Equal(t, []string{"hdfc small cap nav"}, market.fundQueries)
	assert.Equal(t, []topFundsCall{{"elss", 5}}, market.topFundsCalls)
	assert.Equal(t, []portfolioCall{{30, "moderate", 100000}}, market.portfolioCalls)
}

func TestExecuteCalculatorActions(t *testing.T) {
	executor := newTestExecutor(t, &fakeMarket{})
	ctx := context.Background()

	t.Run("sip", func(t *testing.T) {
		result := executor.Execute(ctx, &action.Detected{
			Action: action.CalculateSIP,
			Parameters: map[string]interface{}{
				"monthly_sip": 10000.0, "years": 20, "expected_return": 0.12,
			},
		})
		require.False(t, result.IsError(), result.ErrorMessage())
		assert.Greater(t, result["maturity_amount"].(float64), 2400000.0)
	})

	t.Run("retirement", func(t *testing.T) {
		result := executor.Execute(ctx, &action.Detected{
			Action: action.CalculateRetirement,
			Parameters: map[string]interface{}{
				"current_age": 30, "retirement_age": 60, "monthly_expense": 50000.0,
			},
		})
		require.False(t, result.IsError(), result.ErrorMessage())
		assert.Greater(t, result["corpus_needed"].(float64), 0.0)
		assert.Greater(t, result["monthly_sip_required"].(float64), 0.0)
	})
}

func TestExecuteCoercesJSONNumbers(t *testing.T) {
	executor := newTestExecutor(t, &fakeMarket{})

	// An LLM proposal arrives with float64 for every numeric field.
	result := executor.Execute(context.Background(), &action.Detected{
		Action: action.CalculateEMI,
		Parameters: map[string]interface{}{
			"loan_amount":   5000000.0,
			"interest_rate": 8.5,
			"tenure_years":  20.0,
		},
	})

	require.False(t, result.IsError(), result.ErrorMessage())
	assert.Equal(t, 20, result["tenure_years"])
	assert.InDelta(t, 43391.0, result["monthly_emi"].(float64), 1.0)
}

func TestExecuteUnknownAction(t *testing.T) {
	executor := newTestExecutor(t, &fakeMarket{})

	result := executor.Execute(context.Background(), &action.Detected{
		Action:     "transfer_funds",
		Parameters: map[string]interface{}{},
	})

	require.True(t, result.IsError())
	assert.Equal(t, "Unknown action: transfer_funds", result.ErrorMessage())
}

func TestExecutePanicBecomesErrorResult(t *testing.T) {
	market := &fakeMarket{panicOn: action.GetStockPrice}
	executor := newTestExecutor(t, market)

	result := executor.Execute(context.Background(), &action.Detected{
		Action:     action.GetStockPrice,
		Parameters: map[string]interface{}{"query": "reliance"},
	})

	require.True(t, result.IsError())
	assert.Equal(t, "Error executing get_stock_price: market agent blew up", result.ErrorMessage())
}
