// Package calculator implements the SIP, EMI, and retirement corpus
// calculations. All functions are pure: they validate their inputs and
// return an error-shaped result instead of failing.
package calculator

import (
	"fmt"
	"math"

	"finchat-assistant/internal/action"
	"finchat-assistant/internal/common/config"
	"finchat-assistant/internal/common/logger"
)

// Calculator computes investment and loan projections against the
// configured bounds and assumption defaults.
type Calculator struct {
	limits   config.LimitsConfig
	defaults config.DefaultsConfig
	logger   logger.Logger
}

func New(limits config.LimitsConfig, defaults config.DefaultsConfig, log logger.Logger) *Calculator {
	return &Calculator{
		limits:   limits,
		defaults: defaults,
		logger:   log,
	}
}

func validatePositive(value float64, name string) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive, got %v", name, value)
	}
	return nil
}

func validateRate(value float64, name string) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%s must be between 0 and 1 (as decimal), got %v", name, value)
	}
	return nil
}

func validateAge(age int, name string) error {
	if age <= 0 || age >= 120 {
		return fmt.Errorf("%s must be between 0 and 120, got %d", name, age)
	}
	return nil
}

// sipMaturity is the annuity-due closed form: each contribution starts
// earning in the month it is made.
func sipMaturity(monthly float64, monthlyRate float64, months int) float64 {
	if monthlyRate == 0 {
		return monthly * float64(months)
	}
	return monthly * ((math.Pow(1+monthlyRate, float64(months)) - 1) / monthlyRate) * (1 + monthlyRate)
}

func round0(v float64) float64 {
	return math.Round(v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// SIPReturns projects a monthly SIP to maturity with a year-by-year
// breakdown and milestone snapshots.
func (c *Calculator) SIPReturns(monthlySIP float64, years int, expectedReturn float64) action.Result {
	if expectedReturn == 0 {
		expectedReturn = c.defaults.SIPReturn
	}

	if err := validatePositive(monthlySIP, "Monthly SIP"); err != nil {
		c.logger.Error("SIP validation failed", map[string]interface{}{"error": err.Error()})
		return action.Result{"error": err.Error()}
	}
	if err := validatePositive(float64(years), "Investment years"); err != nil {
		c.logger.Error("SIP validation failed", map[string]interface{}{"error": err.Error()})
		return action.Result{"error": err.Error()}
	}
	if err := validateRate(expectedReturn, "Expected return"); err != nil {
		c.logger.Error("SIP validation failed", map[string]interface{}{"error": err.Error()})
		return action.Result{"error": err.Error()}
	}
	if years > c.limits.SIPMaxYears {
		msg := fmt.Sprintf("Investment period cannot exceed %d years", c.limits.SIPMaxYears)
		c.logger.Error("SIP validation failed", map[string]interface{}{"error": msg})
		return action.Result{"error": msg}
	}

	c.logger.Info("Calculating SIP", map[string]interface{}{
		"monthly_sip": monthlySIP,
		"years":       years,
		"return":      expectedReturn,
	})

	months := years * 12
	monthlyRate := expectedReturn / 12
	maturityValue := sipMaturity(monthlySIP, monthlyRate, months)
	totalInvested := monthlySIP * float64(months)
	gains := maturityValue - totalInvested

	yearlyBreakdown := make([]map[string]interface{}, 0, years)
	for year := 1; year <= years; year++ {
		m := year * 12
		value := sipMaturity(monthlySIP, monthlyRate, m)
		invested := monthlySIP * float64(m)
		yearlyBreakdown = append(yearlyBreakdown, map[string]interface{}{
			"year":     year,
			"invested": round0(invested),
			"value":    round0(value),
			"gains":    round0(value - invested),
		})
	}

	return action.Result{
		"monthly_sip":             monthlySIP,
		"years":                   years,
		"investment_period":       fmt.Sprintf("%d years", years),
		"expected_return":         expectedReturn,
		"expected_return_display": fmt.Sprintf("%.1f%%", expectedReturn*100),
		"total_invested":          round0(totalInvested),
		"maturity_amount":         round0(maturityValue),
		"gains":                   round0(gains),
		"returns_percentage":      round2(gains / totalInvested * 100),
		"calculation_breakdown": map[string]interface{}{
			"step1_monthly_sip":      monthlySIP,
			"step2_total_months":     months,
			"step3_monthly_rate":     round4(monthlyRate * 100),
			"step4_total_invested":   round0(totalInvested),
			"step5_maturity_value":   round0(maturityValue),
			"step6_total_gains":      round0(gains),
			"step7_returns_percent":  round2(gains / totalInvested * 100),
		},
		"yearly_breakdown": yearlyBreakdown,
		"milestones": map[string]interface{}{
			"year_5":  milestone(yearlyBreakdown, 5),
			"year_10": milestone(yearlyBreakdown, 10),
			"year_15": milestone(yearlyBreakdown, 15),
			"year_20": milestone(yearlyBreakdown, 20),
		},
	}
}

func milestone(breakdown []map[string]interface{}, year int) interface{} {
	if len(breakdown) >= year {
		return breakdown[year-1]
	}
	return nil
}

// EMI computes the reducing-balance installment and a yearly
// amortization schedule.
func (c *Calculator) EMI(loanAmount, interestRate float64, tenureYears int) action.Result {
	if interestRate == 0 {
		interestRate = c.defaults.EMIInterest
	}

	if err := validatePositive(loanAmount, "Loan amount"); err != nil {
		c.logger.Error("EMI validation failed", map[string]interface{}{"error": err.Error()})
		return action.Result{"error": err.Error()}
	}
	if err := validatePositive(interestRate, "Interest rate"); err != nil {
		c.logger.Error("EMI validation failed", map[string]interface{}{"error": err.Error()})
		return action.Result{"error": err.Error()}
	}
	if err := validatePositive(float64(tenureYears), "Tenure"); err != nil {
		c.logger.Error("EMI validation failed", map[string]interface{}{"error": err.Error()})
		return action.Result{"error": err.Error()}
	}
	if interestRate > c.limits.EMIMaxInterest {
		msg := fmt.Sprintf("Interest rate cannot exceed %v%%", c.limits.EMIMaxInterest)
		c.logger.Error("EMI validation failed", map[string]interface{}{"error": msg})
		return action.Result{"error": msg}
	}
	if tenureYears > c.limits.EMIMaxTenure {
		msg := fmt.Sprintf("Tenure cannot exceed %d years", c.limits.EMIMaxTenure)
		c.logger.Error("EMI validation failed", map[string]interface{}{"error": msg})
		return action.Result{"error": msg}
	}
	if loanAmount > c.limits.EMIMaxLoan {
		msg := fmt.Sprintf("Loan amount cannot exceed ₹%.0f", c.limits.EMIMaxLoan)
		c.logger.Error("EMI validation failed", map[string]interface{}{"error": msg})
		return action.Result{"error": msg}
	}

	c.logger.Info("Calculating EMI", map[string]interface{}{
		"loan_amount": loanAmount,
		"interest":    interestRate,
		"tenure":      tenureYears,
	})

	monthlyRate := interestRate / 12 / 100
	months := tenureYears * 12

	var emi float64
	if monthlyRate == 0 {
		emi = loanAmount / float64(months)
	} else {
		pow := math.Pow(1+monthlyRate, float64(months))
		emi = loanAmount * monthlyRate * pow / (pow - 1)
	}

	totalPayment := emi * float64(months)
	totalInterest := totalPayment - loanAmount

	yearlyBreakdown := make([]map[string]interface{}, 0, tenureYears)
	remaining := loanAmount
	for year := 1; year <= tenureYears; year++ {
		var yearPrincipal, yearInterest float64
		for month := 0; month < 12; month++ {
			if remaining <= 0 {
				break
			}
			monthInterest := remaining * monthlyRate
			monthPrincipal := emi - monthInterest
			yearPrincipal += monthPrincipal
			yearInterest += monthInterest
			remaining -= monthPrincipal
		}
		yearlyBreakdown = append(yearlyBreakdown, map[string]interface{}{
			"year":              year,
			"principal_paid":    round0(yearPrincipal),
			"interest_paid":     round0(yearInterest),
			"total_paid":        round0(yearPrincipal + yearInterest),
			"remaining_balance": round0(math.Max(0, remaining)),
		})
	}

	first := yearlyBreakdown[0]
	last := yearlyBreakdown[len(yearlyBreakdown)-1]

	return action.Result{
		"loan_amount":           loanAmount,
		"interest_rate":         interestRate,
		"interest_rate_display": fmt.Sprintf("%v%%", interestRate),
		"tenure":                fmt.Sprintf("%d years", tenureYears),
		"tenure_years":          tenureYears,
		"tenure_months":         months,
		"monthly_emi":           round0(emi),
		"total_payment":         round0(totalPayment),
		"total_interest":        round0(totalInterest),
		"principal_percentage":  round2(loanAmount / totalPayment * 100),
		"interest_percentage":   round2(totalInterest / totalPayment * 100),
		"calculation_breakdown": map[string]interface{}{
			"step1_loan_amount":                  loanAmount,
			"step2_monthly_interest_rate":        round4(monthlyRate * 100),
			"step3_total_months":                 months,
			"step4_monthly_emi":                  round0(emi),
			"step5_total_payment":                round0(totalPayment),
			"step6_total_interest":               round0(totalInterest),
			"step7_interest_to_principal_ratio":  round2(totalInterest / loanAmount),
		},
		"yearly_breakdown": yearlyBreakdown,
		"milestones": map[string]interface{}{
			"year_1":  milestone(yearlyBreakdown, 1),
			"year_5":  milestone(yearlyBreakdown, 5),
			"year_10": milestone(yearlyBreakdown, 10),
			"year_15": milestone(yearlyBreakdown, 15),
			"year_20": milestone(yearlyBreakdown, 20),
		},
		"summary": map[string]interface{}{
			"first_year_principal": first["principal_paid"],
			"first_year_interest":  first["interest_paid"],
			"last_year_principal":  last["principal_paid"],
			"last_year_interest":   last["interest_paid"],
		},
	}
}

// RetirementOptions override the configured assumption defaults.
type RetirementOptions struct {
	Inflation           float64
	PostRetirementYears int
	SIPReturn           float64
	PostRetirementRate  float64
}

// RetirementCorpus estimates the corpus needed at retirement and the
// monthly SIP required to reach it.
//
// The gross need is discounted by (1+post_ret_return)^(years/2), a
// mid-point shortcut rather than a full annuity present value. The
// shortcut understates the corpus slightly but keeps the arithmetic
// explainable in the summary breakdown.
func (c *Calculator) RetirementCorpus(currentAge, retirementAge int, monthlyExpense float64, opts *RetirementOptions) action.Result {
	inflation := c.defaults.Inflation
	postRetYears := c.defaults.PostRetirementYears
	sipReturn := c.defaults.SIPReturn
	postRetReturn := c.defaults.PostRetirementRate
	if opts != nil {
		if opts.Inflation != 0 {
			inflation = opts.Inflation
		}
		if opts.PostRetirementYears != 0 {
			postRetYears = opts.PostRetirementYears
		}
		if opts.SIPReturn != 0 {
			sipReturn = opts.SIPReturn
		}
		if opts.PostRetirementRate != 0 {
			postRetReturn = opts.PostRetirementRate
		}
	}

	fail := func(msg string) action.Result {
		c.logger.Error("Retirement corpus validation failed", map[string]interface{}{"error": msg})
		return action.Result{"error": msg}
	}

	if err := validateAge(currentAge, "Current age"); err != nil {
		return fail(err.Error())
	}
	if err := validateAge(retirementAge, "Retirement age"); err != nil {
		return fail(err.Error())
	}
	if err := validatePositive(monthlyExpense, "Monthly expense"); err != nil {
		return fail(err.Error())
	}
	if err := validateRate(inflation, "Inflation rate"); err != nil {
		return fail(err.Error())
	}
	if err := validateRate(sipReturn, "SIP return rate"); err != nil {
		return fail(err.Error())
	}
	if err := validateRate(postRetReturn, "Post-retirement return rate"); err != nil {
		return fail(err.Error())
	}
	if retirementAge <= currentAge {
		return fail("Retirement age must be greater than current age")
	}
	if retirementAge-currentAge > 50 {
		return fail("Years to retirement cannot exceed 50")
	}
	if postRetYears > 50 {
		return fail("Post-retirement years cannot exceed 50")
	}

	c.logger.Info("Calculating retirement corpus", map[string]interface{}{
		"current_age":     currentAge,
		"retirement_age":  retirementAge,
		"monthly_expense": monthlyExpense,
	})

	yearsToRetirement := retirementAge - currentAge

	inflationMultiplier := math.Pow(1+inflation, float64(yearsToRetirement))
	futureMonthlyExpense := monthlyExpense * inflationMultiplier
	annualExpenseAtRetirement := futureMonthlyExpense * 12
	totalForPostRetirement := annualExpenseAtRetirement * float64(postRetYears)

	discountFactor := math.Pow(1+postRetReturn, float64(postRetYears)/2)
	corpusNeeded := totalForPostRetirement / discountFactor

	monthsToRetirement := yearsToRetirement * 12
	monthlySIPRate := sipReturn / 12

	var monthlySIPRequired float64
	if monthlySIPRate == 0 {
		monthlySIPRequired = corpusNeeded / float64(monthsToRetirement)
	} else {
		pow := math.Pow(1+monthlySIPRate, float64(monthsToRetirement))
		monthlySIPRequired = corpusNeeded * monthlySIPRate / ((pow - 1) * (1 + monthlySIPRate))
	}

	totalSIPInvestment := monthlySIPRequired * float64(monthsToRetirement)

	return action.Result{
		"current_age":                    currentAge,
		"retirement_age":                 retirementAge,
		"years_to_retirement":            yearsToRetirement,
		"current_monthly_expense":        monthlyExpense,
		"future_monthly_expense":         round0(futureMonthlyExpense),
		"corpus_needed":                  round0(corpusNeeded),
		"monthly_sip_required":           round0(monthlySIPRequired),
		"total_sip_investment":           round0(totalSIPInvestment),
		"inflation_rate":                 inflation,
		"assumed_sip_return":             sipReturn,
		"assumed_post_retirement_return": postRetReturn,
		"post_retirement_years":          postRetYears,
		"calculation_breakdown": map[string]interface{}{
			"step1_years_to_retirement":          yearsToRetirement,
			"step2_inflation_multiplier":         round2(inflationMultiplier),
			"step3_future_monthly_expense":       round0(futureMonthlyExpense),
			"step4_annual_expense_at_retirement": round0(annualExpenseAtRetirement),
			"step5_total_for_post_retirement":    round0(totalForPostRetirement),
			"step6_discount_factor":              round2(discountFactor),
			"step7_final_corpus":                 round0(corpusNeeded),
		},
	}
}
