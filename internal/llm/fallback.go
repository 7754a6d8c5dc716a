package llm

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"finchat-assistant/internal/action"
)

// printer groups large amounts with commas the way the summaries
// display rupee values.
var printer = message.NewPrinter(language.English)

func getFloat(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func getString(data map[string]interface{}, key, fallback string) string {
	if s, ok := data[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func getMap(data map[string]interface{}, key string) map[string]interface{} {
	m, _ := data[key].(map[string]interface{})
	return m
}

// FallbackSummary renders a deterministic summary of an action result
// when the model cannot. The result shape selects the template.
func FallbackSummary(data action.Result, query string) string {
	if _, ok := data["company"]; ok {
		if _, ok := data["price"]; ok {
			return stockSummary(data, query)
		}
	}
	if _, ok := data["dividend_yield"]; ok {
		company := getString(data, "company", query)
		return fmt.Sprintf("%s has a dividend yield of %v%% with an annual dividend rate of ₹%v.",
			company, data["dividend_yield"], data["dividend_rate"])
	}
	if _, ok := data["pe_ratio"]; ok {
		company := getString(data, "company", query)
		return fmt.Sprintf("%s has a P/E ratio of %v.", company, data["pe_ratio"])
	}
	if _, ok := data["maturity_amount"]; ok {
		return sipSummary(data)
	}
	if _, ok := data["monthly_emi"]; ok {
		return emiSummary(data)
	}
	if _, ok := data["corpus_needed"]; ok {
		return retirementSummary(data)
	}
	if _, ok := data["nav"]; ok {
		return fmt.Sprintf("%s has a current NAV of ₹%.2f with 1-year returns of %.2f%%.",
			getString(data, "name", query), getFloat(data, "nav"), getFloat(data, "returns_1y"))
	}
	if funds, ok := data["funds"].([]interface{}); ok && len(funds) > 0 {
		return fmt.Sprintf("Here are %d top %s mutual funds based on performance and ratings.",
			len(funds), getString(data, "category", ""))
	}
	if _, ok := data["allocation"]; ok {
		equity := getFloat(getMap(data, "profile"), "equity_allocation")
		return fmt.Sprintf("Based on your profile, I recommend %.0f%% equity allocation. Diversify across large cap, mid cap, and debt funds.", equity)
	}
	return "Here's the information you requested."
}

func stockSummary(data map[string]interface{}, query string) string {
	company := getString(data, "company", query)
	change := getFloat(data, "change_percent")
	arrow := "📈"
	if change < 0 {
		arrow = "📉"
	}
	return printer.Sprintf("%s is currently trading at ₹%.2f, %s %+.2f%% today.",
		company, getFloat(data, "price"), arrow, change)
}

func sipSummary(data map[string]interface{}) string {
	s := "💰 **SIP Investment Plan**\n\n"
	s += printer.Sprintf("Monthly SIP: ₹%.0f\n", getFloat(data, "monthly_sip"))
	s += fmt.Sprintf("Investment Period: %v years\n", data["years"])
	s += fmt.Sprintf("Expected Return: %s\n\n", getString(data, "expected_return_display", "12.0%"))
	s += "📊 **Results:**\n"
	s += printer.Sprintf("• Total Invested: ₹%.0f\n", getFloat(data, "total_invested"))
	s += printer.Sprintf("• Maturity Value: ₹%.0f\n", getFloat(data, "maturity_amount"))
	s += printer.Sprintf("• Total Gains: ₹%.0f (%.1f%%)\n\n", getFloat(data, "gains"), getFloat(data, "returns_percentage"))

	if milestones := getMap(data, "milestones"); len(milestones) > 0 {
		keys := make([]string, 0, len(milestones))
		for k := range milestones {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		s += "📈 **Milestones:**\n"
		for _, k := range keys {
			m := getMap(milestones, k)
			if m == nil {
				continue
			}
			s += printer.Sprintf("• Year %.0f: ₹%.0f\n", getFloat(m, "year"), getFloat(m, "value"))
		}
	}
	return s
}

func emiSummary(data map[string]interface{}) string {
	tenure := getFloat(data, "tenure_years")

	s := "🏠 **Loan EMI Calculation**\n\n"
	s += printer.Sprintf("Loan Amount: ₹%.0f\n", getFloat(data, "loan_amount"))
	s += fmt.Sprintf("Interest Rate: %v%% per annum\n", data["interest_rate"])
	s += fmt.Sprintf("Tenure: %.0f years\n\n", tenure)
	s += printer.Sprintf("📊 **Monthly EMI: ₹%.0f**\n\n", getFloat(data, "monthly_emi"))
	s += "💳 **Total Payment Breakdown:**\n"
	s += printer.Sprintf("• Principal: ₹%.0f (%.1f%%)\n", getFloat(data, "loan_amount"), getFloat(data, "principal_percentage"))
	s += printer.Sprintf("• Interest: ₹%.0f (%.1f%%)\n", getFloat(data, "total_interest"), getFloat(data, "interest_percentage"))
	s += printer.Sprintf("• Total Payable: ₹%.0f\n\n", getFloat(data, "total_payment"))

	if summ := getMap(data, "summary"); summ != nil {
		s += "📈 **Year-wise Breakdown:**\n"
		s += printer.Sprintf("• Year 1: Principal ₹%.0f, Interest ₹%.0f\n",
			getFloat(summ, "first_year_principal"), getFloat(summ, "first_year_interest"))
		s += printer.Sprintf("• Year %.0f: Principal ₹%.0f, Interest ₹%.0f\n",
			tenure, getFloat(summ, "last_year_principal"), getFloat(summ, "last_year_interest"))
	}
	return s
}

func retirementSummary(data map[string]interface{}) string {
	sipReturn := getFloat(data, "assumed_sip_return")
	if sipReturn == 0 {
		sipReturn = 0.12
	}

	s := "🏖️ **Retirement Planning**\n\n"
	s += fmt.Sprintf("Current Age: %.0f years\n", getFloat(data, "current_age"))
	s += fmt.Sprintf("Retirement Age: %.0f years\n", getFloat(data, "retirement_age"))
	s += fmt.Sprintf("Years to Retirement: %.0f years\n\n", getFloat(data, "years_to_retirement"))
	s += "💰 **Expenses:**\n"
	s += printer.Sprintf("• Current Monthly: ₹%.0f\n", getFloat(data, "current_monthly_expense"))
	s += printer.Sprintf("• At Retirement: ₹%.0f\n\n", getFloat(data, "future_monthly_expense"))
	s += printer.Sprintf("🎯 **Retirement Corpus Needed: ₹%.0f**\n\n", getFloat(data, "corpus_needed"))
	s += "📊 **Investment Plan:**\n"
	s += printer.Sprintf("• Monthly SIP Required: ₹%.0f\n", getFloat(data, "monthly_sip_required"))
	s += printer.Sprintf("• Total Investment: ₹%.0f\n", getFloat(data, "total_sip_investment"))
	s += fmt.Sprintf("• Expected Returns: %.1f%% p.a.\n", sipReturn*100)
	return s
}
