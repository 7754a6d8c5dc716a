package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat-assistant/internal/common/config"
	"finchat-assistant/internal/common/logger"
)

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		SIPMinAmount:      100,
		SIPMaxAmount:      1000000,
		SIPMaxYears:       50,
		EMIMinLoan:        50000,
		EMIMaxLoan:        100000000,
		EMIMinInterest:    1,
		EMIMaxInterest:    30,
		EMIMaxTenure:      30,
		MinAge:            18,
		MaxAge:            80,
		MinRetirementAge:  30,
		MaxRetirementAge:  100,
		MinInvestment:     1000,
		MaxInvestment:     100000000,
		MinMonthlyExpense: 1000,
		MaxMonthlyExpense: 1000000,
	}
}

func testDefaults() config.DefaultsConfig {
	return config.DefaultsConfig{
		SIPReturn:           0.12,
		SIPYears:            10,
		EMIInterest:         8.5,
		EMITenureYears:      20,
		Inflation:           0.06,
		PostRetirementRate:  0.04,
		PostRetirementYears: 25,
		RetirementAge:       60,
	}
}

func newTestCalculator(t *testing.T) *Calculator {
	return New(testLimits(), testDefaults(), logger.NewTestLogger(t))
}

func TestSIPReturns(t *testing.T) {
	calc := newTestCalculator(t)

	tests := []struct {
		name           string
		monthlySIP     float64
		years          int
		expectedReturn float64
		wantError      bool
		validate       func(t *testing.T, result map[string]interface{})
	}{
		{
			name:           "standard twenty year sip",
			monthlySIP:     10000,
			years:          20,
			expectedReturn: 0.12,
			validate: func(t *testing.T, result map[string]interface{}) {
				invested := result["total_invested"].(float64)
				maturity := result["maturity_amount"].(float64)
				gains := result["gains"].(float64)

				assert.Equal(t, float64(10000*12*20), invested)
				assert.Greater(t, maturity, invested, "compounding must beat plain saving")
				assert.InDelta(t, maturity, invested+gains, 1)

				pct := result["returns_percentage"].(float64)
				assert.InDelta(t, gains/invested*100, pct, 0.01)
			},
		},
		{
			name:           "yearly breakdown length and milestones",
			monthlySIP:     5000,
			years:          15,
			expectedReturn: 0.10,
			validate: func(t *testing.T, result map[string]interface{}) {
				breakdown := result["yearly_breakdown"].([]map[string]interface{})
				require.Len(t, breakdown, 15)
				assert.Equal(t, 1, breakdown[0]["year"])
				assert.Equal(t, 15, breakdown[14]["year"])

				milestones := result["milestones"].(map[string]interface{})
				assert.NotNil(t, milestones["year_5"])
				assert.NotNil(t, milestones["year_10"])
				assert.NotNil(t, milestones["year_15"])
				assert.Nil(t, milestones["year_20"])
			},
		},
		{
			name:           "default return applied when omitted",
			monthlySIP:     5000,
			years:          10,
			expectedReturn: 0,
			validate: func(t *testing.T, result map[string]interface{}) {
				assert.Equal(t, 0.12, result["expected_return"])
				assert.Equal(t, "12.0%", result["expected_return_display"])
			},
		},
		{
			name:       "negative amount rejected",
			monthlySIP: -100,
			years:      10,
			wantError:  true,
		},
		{
			name:           "return above one rejected",
			monthlySIP:     5000,
			years:          10,
			expectedReturn: 12,
			wantError:      true,
		},
		{
			name:           "years above cap rejected",
			monthlySIP:     5000,
			years:          51,
			expectedReturn: 0.12,
			wantError:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := calc.SIPReturns(tt.monthlySIP, tt.years, tt.expectedReturn)
			if tt.wantError {
				assert.True(t, result.IsError())
				return
			}
			require.False(t, result.IsError(), result.ErrorMessage())
			tt.validate(t, result)
		})
	}
}

func TestEMI(t *testing.T) {
	calc := newTestCalculator(t)

	tests := []struct {
		name         string
		loanAmount   float64
		interestRate float64
		tenureYears  int
		wantError    bool
		validate     func(t *testing.T, result map[string]interface{})
	}{
		{
			name:         "fifty lakh home loan",
			loanAmount:   5000000,
			interestRate: 8.5,
			tenureYears:  20,
			validate: func(t *testing.T, result map[string]interface{}) {
				emi := result["monthly_emi"].(float64)
				totalPayment := result["total_payment"].(float64)
				totalInterest := result["total_interest"].(float64)

				// Known value for 50L at 8.5% over 20 years.
				assert.InDelta(t, 43391, emi, 1)
				assert.InDelta(t, emi*12*20, totalPayment, emi)
				assert.InDelta(t, totalPayment-5000000, totalInterest, 1)

				pPct := result["principal_percentage"].(float64)
				iPct := result["interest_percentage"].(float64)
				assert.InDelta(t, 100, pPct+iPct, 0.01)
			},
		},
		{
			name:         "amortization drains balance",
			loanAmount:   1000000,
			interestRate: 9,
			tenureYears:  10,
			validate: func(t *testing.T, result map[string]interface{}) {
				breakdown := result["yearly_breakdown"].([]map[string]interface{})
				require.Len(t, breakdown, 10)
				assert.Equal(t, float64(0), breakdown[9]["remaining_balance"])

				// Interest share shrinks over the life of the loan.
				firstInterest := breakdown[0]["interest_paid"].(float64)
				lastInterest := breakdown[9]["interest_paid"].(float64)
				assert.Greater(t, firstInterest, lastInterest)

				summary := result["summary"].(map[string]interface{})
				assert.Equal(t, breakdown[0]["principal_paid"], summary["first_year_principal"])
				assert.Equal(t, breakdown[9]["interest_paid"], summary["last_year_interest"])
			},
		},
		{
			name:         "default interest applied when omitted",
			loanAmount:   1000000,
			interestRate: 0,
			tenureYears:  10,
			validate: func(t *testing.T, result map[string]interface{}) {
				assert.Equal(t, 8.5, result["interest_rate"])
			},
		},
		{
			name:         "interest above cap rejected",
			loanAmount:   1000000,
			interestRate: 31,
			tenureYears:  10,
			wantError:    true,
		},
		{
			name:         "tenure above cap rejected",
			loanAmount:   1000000,
			interestRate: 9,
			tenureYears:  31,
			wantError:    true,
		},
		{
			name:         "loan above ceiling rejected",
			loanAmount:   200000000,
			interestRate: 9,
			tenureYears:  10,
			wantError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := calc.EMI(tt.loanAmount, tt.interestRate, tt.tenureYears)
			if tt.wantError {
				assert.True(t, result.IsError())
				return
			}
			require.False(t, result.IsError(), result.ErrorMessage())
			tt.validate(t, result)
		})
	}
}

func TestRetirementCorpus(t *testing.T) {
	calc := newTestCalculator(t)

	t.Run("basic projection", func(t *testing.T) {
		result := calc.RetirementCorpus(30, 60, 50000, nil)
		require.False(t, result.IsError(), result.ErrorMessage())

		assert.Equal(t, 30, result["years_to_retirement"])
		future := result["future_monthly_expense"].(float64)
		assert.Greater(t, future, 50000.0, "inflation must raise the expense")

		corpus := result["corpus_needed"].(float64)
		sip := result["monthly_sip_required"].(float64)
		assert.Greater(t, corpus, 0.0)
		assert.Greater(t, sip, 0.0)
	})

	t.Run("monotonic in expense", func(t *testing.T) {
		lo := calc.RetirementCorpus(30, 60, 40000, nil)
		hi := calc.RetirementCorpus(30, 60, 80000, nil)
		require.False(t, lo.IsError())
		require.False(t, hi.IsError())
		assert.Greater(t, hi["corpus_needed"].(float64), lo["corpus_needed"].(float64))
	})

	t.Run("monotonic in years to retirement", func(t *testing.T) {
		near := calc.RetirementCorpus(50, 60, 50000, nil)
		far := calc.RetirementCorpus(30, 60, 50000, nil)
		require.False(t, near.IsError())
		require.False(t, far.IsError())
		assert.Greater(t, far["corpus_needed"].(float64), near["corpus_needed"].(float64))
	})

	t.Run("required sip compounds back to corpus", func(t *testing.T) {
		result := calc.RetirementCorpus(30, 60, 50000, nil)
		require.False(t, result.IsError())

		sip := result["monthly_sip_required"].(float64)
		corpus := result["corpus_needed"].(float64)
		check := calc.SIPReturns(sip, 30, 0.12)
		require.False(t, check.IsError())
		assert.InDelta(t, corpus, check["maturity_amount"].(float64), corpus*0.001)
	})

	t.Run("option overrides", func(t *testing.T) {
		result := calc.RetirementCorpus(30, 60, 50000, &RetirementOptions{
			Inflation:           0.08,
			PostRetirementYears: 30,
		})
		require.False(t, result.IsError())
		assert.Equal(t, 0.08, result["inflation_rate"])
		assert.Equal(t, 30, result["post_retirement_years"])
	})

	t.Run("validation failures", func(t *testing.T) {
		assert.True(t, calc.RetirementCorpus(60, 60, 50000, nil).IsError(), "equal ages")
		assert.True(t, calc.RetirementCorpus(65, 60, 50000, nil).IsError(), "retiring in the past")
		assert.True(t, calc.RetirementCorpus(5, 60, 50000, nil).IsError(), "span above fifty years")
		assert.True(t, calc.RetirementCorpus(30, 60, -100, nil).IsError(), "negative expense")
		assert.True(t, calc.RetirementCorpus(0, 60, 50000, nil).IsError(), "zero age")
	})
}
