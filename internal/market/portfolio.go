package market

import (
	"context"
	"math"
	"strings"

	"finchat-assistant/internal/action"
)

// equityAllocation derives the recommended equity percentage from age
// and risk appetite, clamped to [20, 90].
func equityAllocation(age int, risk string) int {
	base := clamp(100-age, 20, 90)
	adjustment := 0
	switch strings.ToLower(risk) {
	case "aggressive":
		adjustment = 20
	case "conservative":
		adjustment = -20
	}
	return clamp(base+adjustment, 20, 90)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GetPersonalizedPortfolio builds an allocation across fund categories
// with top fund picks per category.
func (a *Agent) GetPersonalizedPortfolio(ctx context.Context, age int, risk string, amount float64) action.Result {
	a.logger.Info("Generating personalized portfolio", map[string]interface{}{
		"age":    age,
		"risk":   risk,
		"amount": amount,
	})

	equityPct := equityAllocation(age, risk)
	debtPct := 100 - equityPct

	var allocation map[string]float64
	switch {
	case equityPct >= 70:
		allocation = map[string]float64{"large cap": 0.40, "mid cap": 0.30, "small cap": 0.20, "elss": 0.10}
	case equityPct >= 50:
		allocation = map[string]float64{"large cap": 0.50, "mid cap": 0.30, "hybrid": 0.20}
	default:
		allocation = map[string]float64{"large cap": 0.30, "hybrid": 0.40, "debt": 0.30}
	}

	recommended := make(map[string]interface{})
	for category, fraction := range allocation {
		fundsData := a.GetTopFunds(ctx, category, 3)
		if success, _ := fundsData["success"].(bool); !success {
			continue
		}
		recommended[category] = map[string]interface{}{
			"allocation_percentage": fraction * 100,
			"monthly_amount":        math.Round(amount * fraction),
			"top_funds":             fundsData["funds"],
		}
	}

	return action.Result{
		"total_investment":  amount,
		"allocation":        allocation,
		"recommended_funds": recommended,
		"profile": map[string]interface{}{
			"age":               age,
			"risk_appetite":     risk,
			"equity_allocation": equityPct,
			"debt_allocation":   debtPct,
		},
	}
}
