// Package action defines the dispatchable action model shared by the
// router, the calculators, and the market data agent.
package action

import "fmt"

// Kind names a dispatchable operation.
type Kind string

const (
	GetStockMetric             Kind = "get_stock_metric"
	GetStockPrice              Kind = "get_stock_price"
	GetETFPrice                Kind = "get_etf_price"
	SearchMutualFund           Kind = "search_mutual_fund"
	GetTopFunds                Kind = "get_top_funds"
	CalculateSIP               Kind = "calculate_sip"
	CalculateEMI               Kind = "calculate_emi"
	CalculateRetirement        Kind = "calculate_retirement"
	GetPortfolioRecommendation Kind = "get_portfolio_recommendation"
)

// Known reports whether k is one of the dispatchable kinds.
func Known(k Kind) bool {
	switch k {
	case GetStockMetric, GetStockPrice, GetETFPrice, SearchMutualFund,
		GetTopFunds, CalculateSIP, CalculateEMI, CalculateRetirement,
		GetPortfolioRecommendation:
		return true
	}
	return false
}

// Detected is a resolved intent: an action plus its fully extracted and
// validated parameters.
type Detected struct {
	Action     Kind                   `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Result is the outcome of executing an action. The reserved "error"
// key marks failure; everything else is action-specific payload.
type Result map[string]interface{}

// Errorf builds a failed Result.
func Errorf(format string, args ...interface{}) Result {
	return Result{"error": fmt.Sprintf(format, args...)}
}

// IsError reports whether the result carries the reserved error key.
func (r Result) IsError() bool {
	_, ok := r["error"]
	return ok
}

// ErrorMessage returns the error text, or "" for successful results.
func (r Result) ErrorMessage() string {
	if msg, ok := r["error"].(string); ok {
		return msg
	}
	return ""
}
