package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"finchat-assistant/internal/common/metrics"
)

// quote is the subset of the Yahoo quoteSummary payload the agent uses.
// Yield and payout ratios are fractions, not percentages.
type quote struct {
	Name          string
	Price         float64
	PrevClose     float64
	DayHigh       float64
	DayLow        float64
	Volume        int64
	MarketCap     float64
	TrailingPE    float64
	DividendYield float64
	DividendRate  float64
	PayoutRatio   float64
}

// yNum is Yahoo's wrapped number: {"raw": 123.4, "fmt": "123.40"}.
type yNum struct {
	Raw float64 `json:"raw"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				LongName             string `json:"longName"`
				ShortName            string `json:"shortName"`
				RegularMarketPrice   yNum   `json:"regularMarketPrice"`
				RegularMarketVolume  yNum   `json:"regularMarketVolume"`
				RegularMarketDayHigh yNum   `json:"regularMarketDayHigh"`
				RegularMarketDayLow  yNum   `json:"regularMarketDayLow"`
				MarketCap            yNum   `json:"marketCap"`
			} `json:"price"`
			SummaryDetail struct {
				PreviousClose yNum `json:"previousClose"`
				TrailingPE    yNum `json:"trailingPE"`
				DividendYield yNum `json:"dividendYield"`
				DividendRate  yNum `json:"dividendRate"`
				PayoutRatio   yNum `json:"payoutRatio"`
			} `json:"summaryDetail"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteSummary"`
}

// fetchQuote pulls price and summary detail for a resolved ticker.
func (a *Agent) fetchQuote(ctx context.Context, ticker string) (*quote, error) {
	endpoint := fmt.Sprintf("%s/%s?modules=price,summaryDetail",
		a.cfg.YahooQuoteURL, url.PathEscape(ticker))

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.DoWithContext(ctx, req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("yahoo", "error").Inc()
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues("yahoo", fmt.Sprint(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("quote status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed quoteSummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}
	if len(parsed.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("no quote data for %s", ticker)
	}

	r := parsed.QuoteSummary.Result[0]
	name := r.Price.LongName
	if name == "" {
		name = r.Price.ShortName
	}

	q := &quote{
		Name:          name,
		Price:         r.Price.RegularMarketPrice.Raw,
		PrevClose:     r.SummaryDetail.PreviousClose.Raw,
		DayHigh:       r.Price.RegularMarketDayHigh.Raw,
		DayLow:        r.Price.RegularMarketDayLow.Raw,
		Volume:        int64(r.Price.RegularMarketVolume.Raw),
		MarketCap:     r.Price.MarketCap.Raw,
		TrailingPE:    r.SummaryDetail.TrailingPE.Raw,
		DividendYield: r.SummaryDetail.DividendYield.Raw,
		DividendRate:  r.SummaryDetail.DividendRate.Raw,
		PayoutRatio:   r.SummaryDetail.PayoutRatio.Raw,
	}
	if q.Price == 0 {
		return nil, fmt.Errorf("no market price for %s", ticker)
	}
	if q.PrevClose == 0 {
		q.PrevClose = q.Price
	}
	return q, nil
}
