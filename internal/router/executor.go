package router

import (
	"context"
	"fmt"

	"finchat-assistant/internal/action"
	"finchat-assistant/internal/calculator"
	"finchat-assistant/internal/common/logger"
	"finchat-assistant/internal/common/metrics"
)

// MarketData is the slice of the market agent the executor dispatches
// into.
type MarketData interface {
	GetStockPrice(ctx context.Context, query string) action.Result
	GetStockMetric(ctx context.Context, query string) action.Result
	GetETFPrice(ctx context.Context, query string) action.Result
	SearchFund(ctx context.Context, query string) action.Result
	GetTopFunds(ctx context.Context, category string, limit int) action.Result
	GetPersonalizedPortfolio(ctx context.Context, age int, risk string, amount float64) action.Result
}

// Executor maps a detected action onto its collaborator call. Failures
// never escape: collaborators report errors in the result itself, and
// anything that panics is converted to an error result here.
type Executor struct {
	market MarketData
	calc   *calculator.Calculator
	logger logger.Logger
}

func NewExecutor(market MarketData, calc *calculator.Calculator, log logger.Logger) *Executor {
	return &Executor{market: market, calc: calc, logger: log}
}

// Parameters arrive from two producers: the detectors build them with
// native ints and floats, the LLM proposal path decodes JSON where
// every number is a float64. Both must coerce cleanly.

func numParam(params map[string]interface{}, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func intParam(params map[string]interface{}, key string) int {
	return int(numParam(params, key))
}

func strParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func (e *Executor) Execute(ctx context.Context, detected *action.Detected) (result action.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("Action execution panicked", map[string]interface{}{
				"action": string(detected.Action),
				"panic":  fmt.Sprint(rec),
			})
			result = action.Errorf("Error executing %s: %v", detected.Action, rec)
		}
		if result.IsError() {
			metrics.ActionFailures.WithLabelValues(string(detected.Action)).Inc()
		}
	}()

	e.logger.Info("Executing action", map[string]interface{}{
		"action":     string(detected.Action),
		"parameters": detected.Parameters,
	})

	p := detected.Parameters
	switch detected.Action {
	case action.GetStockMetric:
		return e.market.GetStockMetric(ctx, strParam(p, "query"))
	case action.GetStockPrice:
		return e.market.GetStockPrice(ctx, strParam(p, "query"))
	case action.GetETFPrice:
		return e.market.GetETFPrice(ctx, strParam(p, "query"))
	case action.SearchMutualFund:
		return e.market.SearchFund(ctx, strParam(p, "query"))
	case action.GetTopFunds:
		return e.market.GetTopFunds(ctx, strParam(p, "category"), intParam(p, "limit"))
	case action.CalculateSIP:
		return e.calc.SIPReturns(numParam(p, "monthly_sip"), intParam(p, "years"), numParam(p, "expected_return"))
	case action.CalculateEMI:
		return e.calc.EMI(numParam(p, "loan_amount"), numParam(p, "interest_rate"), intParam(p, "tenure_years"))
	case action.CalculateRetirement:
		return e.calc.RetirementCorpus(intParam(p, "current_age"), intParam(p, "retirement_age"), numParam(p, "monthly_expense"), nil)
	case action.GetPortfolioRecommendation:
		return e.market.GetPersonalizedPortfolio(ctx, intParam(p, "age"), strParam(p, "risk_appetite"), numParam(p, "investment_amount"))
	default:
		return action.Errorf("Unknown action: %s", detected.Action)
	}
}
