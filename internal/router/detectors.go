package router

import (
	"fmt"
	"regexp"
	"strings"

	"finchat-assistant/internal/action"
	"finchat-assistant/internal/common/config"
	"finchat-assistant/internal/common/metrics"
	"finchat-assistant/internal/profile"
	"finchat-assistant/internal/units"
)

// boundsError marks a detector that claimed the query but found a
// parameter outside its configured range. In lenient mode the chain
// moves on and the LLM gets the query; in strict mode the router turns
// it into a validation error response.
type boundsError struct {
	detector string
	msg      string
}

func (e *boundsError) Error() string { return e.msg }

func declined(detector, format string, args ...interface{}) (*action.Detected, error) {
	return nil, &boundsError{detector: detector, msg: fmt.Sprintf(format, args...)}
}

// detector pairs a name (for decline metrics) with its matcher. A
// matcher returns (nil, nil) when the query is not its kind of query.
type detector struct {
	name string
	fn   func(q, original string, snap profile.Snapshot) (*action.Detected, error)
}

// Detectors is the ordered intent detection chain. Order is priority:
// the first detector to claim a query wins, so the more specific
// patterns (a metric request names a metric AND a stock) sit above the
// broader ones.
type Detectors struct {
	limits        config.LimitsConfig
	defaults      config.DefaultsConfig
	topFundsLimit int
	chain         []detector
}

func NewDetectors(limits config.LimitsConfig, defaults config.DefaultsConfig, topFundsLimit int) *Detectors {
	d := &Detectors{
		limits:        limits,
		defaults:      defaults,
		topFundsLimit: topFundsLimit,
	}
	d.chain = []detector{
		{"stock_metric", d.detectStockMetric},
		{"stock_price", d.detectStockPrice},
		{"etf_price", d.detectETFPrice},
		{"fund_nav", d.detectFundNAV},
		{"fund_category", d.detectFundCategory},
		{"sip", d.detectSIP},
		{"emi", d.detectEMI},
		{"retirement", d.detectRetirement},
		{"portfolio", d.detectPortfolio},
	}
	return d
}

// Detect folds the query through the chain and returns the first
// match. When no detector matches but one declined on bounds, the
// first decline is returned so the caller can report it under strict
// bounds. The query is matched lowercased; extracted free-text
// parameters keep the original casing.
func (d *Detectors) Detect(query string, snap profile.Snapshot) (*action.Detected, *boundsError) {
	q := strings.ToLower(query)
	var firstDecline *boundsError
	for _, det := range d.chain {
		detected, err := det.fn(q, query, snap)
		if detected != nil {
			return detected, nil
		}
		if err != nil {
			if decline, ok := err.(*boundsError); ok && firstDecline == nil {
				firstDecline = decline
			}
			metrics.DetectorDeclines.WithLabelValues(det.name).Inc()
		}
	}
	return nil, firstDecline
}

func containsAny(q string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

// resolve picks the first available value: an explicit mention in the
// query, then a profile-derived value, then the configured fallback.
func resolve(explicit float64, ok bool, fromProfile, fallback float64) float64 {
	if ok {
		return explicit
	}
	if fromProfile > 0 {
		return fromProfile
	}
	return fallback
}

func resolveInt(explicit int, ok bool, fromProfile, fallback int) int {
	if ok {
		return explicit
	}
	if fromProfile > 0 {
		return fromProfile
	}
	return fallback
}

// --- 1. stock metric ---

var metricPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bp/e\s+(?:ratio\s+)?of\b`),
	regexp.MustCompile(`\bpe\s+(?:ratio\s+)?of\b`),
	regexp.MustCompile(`\bp\s+e\s+(?:ratio\s+)?of\b`),
	regexp.MustCompile(`\bdividend\s+yield\s+of\b`),
	regexp.MustCompile(`\byield\s+of\b`),
	regexp.MustCompile(`\bp/e\s+ratio\b`),
	regexp.MustCompile(`\bpe\s+ratio\b`),
	regexp.MustCompile(`\bdividend\s+yield\b`),
}

func (d *Detectors) detectStockMetric(q, original string, _ profile.Snapshot) (*action.Detected, error) {
	if containsAny(q, "mutual fund", "fund", "best", "top") {
		return nil, nil
	}
	for _, re := range metricPatterns {
		if re.MatchString(q) {
			return &action.Detected{
				Action:     action.GetStockMetric,
				Parameters: map[string]interface{}{"query": original},
			}, nil
		}
	}
	return nil, nil
}

// --- 2. stock price ---

var (
	stockKeywords   = []string{"stock", "price", "share", "trading", "quote", "market cap"}
	stockExclusions = []string{
		"mutual fund", "nav", "sip", "emi", "portfolio", "best", "top",
		"etf", "bees", "fund", "p/e", "pe ratio", "dividend yield",
	}
)

func (d *Detectors) detectStockPrice(q, original string, _ profile.Snapshot) (*action.Detected, error) {
	if !containsAny(q, stockKeywords...) || containsAny(q, stockExclusions...) {
		return nil, nil
	}
	return &action.Detected{
		Action:     action.GetStockPrice,
		Parameters: map[string]interface{}{"query": original},
	}, nil
}

// --- 3. ETF price ---

func (d *Detectors) detectETFPrice(q, original string, _ profile.Snapshot) (*action.Detected, error) {
	if !containsAny(q, "etf", "bees", "index fund") {
		return nil, nil
	}
	return &action.Detected{
		Action:     action.GetETFPrice,
		Parameters: map[string]interface{}{"query": original},
	}, nil
}

// --- 4. mutual fund NAV ---

func (d *Detectors) detectFundNAV(q, original string, _ profile.Snapshot) (*action.Detected, error) {
	wantsNAV := strings.Contains(q, "nav") ||
		(strings.Contains(q, "mutual fund") && strings.Contains(q, "price"))
	if !wantsNAV || containsAny(q, "best", "top", "good", "recommend") {
		return nil, nil
	}
	return &action.Detected{
		Action:     action.SearchMutualFund,
		Parameters: map[string]interface{}{"query": original},
	}, nil
}

// --- 5. fund category listing ---

func (d *Detectors) detectFundCategory(q, _ string, _ profile.Snapshot) (*action.Detected, error) {
	if !containsAny(q, "best", "top", "good", "show", "recommend") {
		return nil, nil
	}
	if !containsAny(q, "large cap", "mid cap", "small cap", "elss",
		"equity", "debt", "hybrid", "mutual fund", "balanced") {
		return nil, nil
	}

	category := "equity"
	switch {
	case containsAny(q, "large cap", "largecap"):
		category = "large cap"
	case containsAny(q, "mid cap", "midcap"):
		category = "mid cap"
	case containsAny(q, "small cap", "smallcap"):
		category = "small cap"
	case containsAny(q, "elss", "tax saver"):
		category = "elss"
	case containsAny(q, "debt", "bond"):
		category = "debt"
	case containsAny(q, "hybrid", "balanced"):
		category = "hybrid"
	}

	return &action.Detected{
		Action: action.GetTopFunds,
		Parameters: map[string]interface{}{
			"category": category,
			"limit":    d.topFundsLimit,
		},
	}, nil
}

// --- 6. SIP calculation ---

func (d *Detectors) detectSIP(q, _ string, snap profile.Snapshot) (*action.Detected, error) {
	if !strings.Contains(q, "sip") {
		return nil, nil
	}

	explicit, ok := units.ThousandsOnly(q)
	amount := resolve(float64(explicit), ok, snap.MonthlyIncome*0.20, 5000)
	amount = float64(int64(amount))
	// Upper bound is exclusive: an amount equal to the cap is treated
	// as out of range.
	if amount < d.limits.SIPMinAmount || amount >= d.limits.SIPMaxAmount {
		return declined("sip", "Monthly SIP amount must be between ₹%.0f and ₹%.0f",
			d.limits.SIPMinAmount, d.limits.SIPMaxAmount)
	}

	years, ok := units.Years(q)
	if !ok {
		years = d.defaults.SIPYears
	}
	if years < 1 || years > d.limits.SIPMaxYears {
		return declined("sip", "Investment period must be between 1 and %d years", d.limits.SIPMaxYears)
	}

	return &action.Detected{
		Action: action.CalculateSIP,
		Parameters: map[string]interface{}{
			"monthly_sip":     amount,
			"years":           years,
			"expected_return": d.defaults.SIPReturn,
		},
	}, nil
}

// --- 7. EMI calculation ---

func (d *Detectors) detectEMI(q, _ string, _ profile.Snapshot) (*action.Detected, error) {
	if !containsAny(q, "emi", "loan") {
		return nil, nil
	}

	amount, ok := units.Amount(q)
	if !ok {
		return nil, nil
	}
	loan := float64(amount)
	if loan < d.limits.EMIMinLoan || loan > d.limits.EMIMaxLoan {
		return declined("emi", "Loan amount must be between ₹%.0f and ₹%.0f",
			d.limits.EMIMinLoan, d.limits.EMIMaxLoan)
	}

	interest, ok := units.Percent(q)
	if !ok {
		interest = d.defaults.EMIInterest
	}
	if interest < d.limits.EMIMinInterest || interest > d.limits.EMIMaxInterest {
		return declined("emi", "Interest rate must be between %v%% and %v%%",
			d.limits.EMIMinInterest, d.limits.EMIMaxInterest)
	}

	tenure, ok := units.Tenure(q)
	if !ok {
		tenure = d.defaults.EMITenureYears
	}
	if tenure < 1 || tenure > d.limits.EMIMaxTenure {
		return declined("emi", "Tenure must be between 1 and %d years", d.limits.EMIMaxTenure)
	}

	return &action.Detected{
		Action: action.CalculateEMI,
		Parameters: map[string]interface{}{
			"loan_amount":   loan,
			"interest_rate": interest,
			"tenure_years":  tenure,
		},
	}, nil
}

// --- 8. retirement corpus ---

func (d *Detectors) detectRetirement(q, _ string, snap profile.Snapshot) (*action.Detected, error) {
	if !containsAny(q, "retirement", "corpus", "retire") {
		return nil, nil
	}

	explicitAge, ok := units.Age(q)
	currentAge := resolveInt(explicitAge, ok, snap.Age, 30)
	if currentAge < d.limits.MinAge || currentAge > d.limits.MaxAge {
		return declined("retirement", "Current age must be between %d and %d",
			d.limits.MinAge, d.limits.MaxAge)
	}

	retirementAge, ok := units.RetirementAge(q)
	if !ok {
		retirementAge = d.defaults.RetirementAge
	}
	if retirementAge < d.limits.MinRetirementAge || retirementAge > d.limits.MaxRetirementAge {
		return declined("retirement", "Retirement age must be between %d and %d",
			d.limits.MinRetirementAge, d.limits.MaxRetirementAge)
	}
	if retirementAge <= currentAge {
		return declined("retirement", "Retirement age must be greater than current age %d", currentAge)
	}

	explicitExpense, ok := units.AmountAfter(q, "expense", "spend", "need")
	expense := resolve(float64(explicitExpense), ok, snap.MonthlyIncome*0.7, 50000)
	expense = float64(int64(expense))
	if expense < d.limits.MinMonthlyExpense || expense > d.limits.MaxMonthlyExpense {
		return declined("retirement", "Monthly expense must be between ₹%.0f and ₹%.0f",
			d.limits.MinMonthlyExpense, d.limits.MaxMonthlyExpense)
	}

	return &action.Detected{
		Action: action.CalculateRetirement,
		Parameters: map[string]interface{}{
			"current_age":     currentAge,
			"retirement_age":  retirementAge,
			"monthly_expense": expense,
		},
	}, nil
}

// --- 9. portfolio recommendation ---

func (d *Detectors) detectPortfolio(q, _ string, snap profile.Snapshot) (*action.Detected, error) {
	wantsPortfolio := strings.Contains(q, "portfolio") ||
		(strings.Contains(q, "invest") && containsAny(q, "i have", "create", "suggest", "build"))
	if !wantsPortfolio {
		return nil, nil
	}

	explicit, ok := units.Amount(q)
	amount := resolve(float64(explicit), ok, 0, 100000)
	if amount < d.limits.MinInvestment || amount > d.limits.MaxInvestment {
		return declined("portfolio", "Investment amount must be between ₹%.0f and ₹%.0f",
			d.limits.MinInvestment, d.limits.MaxInvestment)
	}

	age := snap.Age
	if age == 0 {
		age = 30
	}
	risk := snap.RiskAppetite
	if risk == "" {
		risk = "moderate"
	}

	return &action.Detected{
		Action: action.GetPortfolioRecommendation,
		Parameters: map[string]interface{}{
			"age":               age,
			"risk_appetite":     risk,
			"investment_amount": amount,
		},
	}, nil
}
