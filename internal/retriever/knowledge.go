package retriever

// defaultKnowledge is the built-in corpus used when no documents are
// present on disk.
const defaultKnowledge = `
# Financial Investment Basics

## SIP (Systematic Investment Plan)
A SIP is a method of investing a fixed amount regularly in mutual funds. It helps in rupee cost averaging and disciplined investing.

Benefits:
- Disciplined investing
- Rupee cost averaging
- Compound growth
- Lower risk through averaging

## Mutual Funds
Mutual funds pool money from investors to invest in diversified portfolios.

Types:
- Large Cap: Invest in top 100 companies by market cap
- Mid Cap: Invest in companies ranked 101-250
- Small Cap: Invest in companies ranked 251+
- ELSS: Tax-saving equity funds (80C benefit)
- Debt: Lower risk, invest in bonds
- Hybrid: Mix of equity and debt

## Stock Market Metrics

P/E Ratio (Price-to-Earnings):
- Valuation metric
- Lower P/E may indicate undervaluation
- Higher P/E may indicate growth expectations

Dividend Yield:
- Annual dividend as % of stock price
- Indicates income generation
- Higher yield = more income

## Tax Saving (Section 80C)
- ELSS mutual funds: Lock-in 3 years, tax benefit up to ₹1.5 lakh
- PPF: Lock-in 15 years, tax-free returns
- EPF: Employer contribution, tax-free

## Risk Appetite
- Aggressive: High equity (80-90%), suitable for young investors
- Moderate: Balanced (50-70% equity), suitable for middle-aged
- Conservative: Low equity (20-40%), suitable for near-retirement

## Retirement Planning
- Start early for compound growth
- Consider inflation (6-7% annually)
- Plan for 25-30 years post-retirement
- Diversify across equity and debt
`
