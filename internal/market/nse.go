package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"finchat-assistant/internal/common/metrics"
)

// userAgent keeps NSE from rejecting the request outright.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// stockNoise strips question phrasing and trailing qualifiers from
// stock queries before the NSE lookup. Order matters: phrases first,
// then trailing words.
var stockNoise = []*regexp.Regexp{
	regexp.MustCompile(`\bwhat\s+is\s+the\b`),
	regexp.MustCompile(`\bwhat\s+is\b`),
	regexp.MustCompile(`\bget\s+me\b`),
	regexp.MustCompile(`\bshow\s+me\b`),
	regexp.MustCompile(`\btell\s+me\b`),
	regexp.MustCompile(`\bfind\b`),
	regexp.MustCompile(`\bsearch\b`),
	regexp.MustCompile(`\s+stock\s+price$`),
	regexp.MustCompile(`\s+share\s+price$`),
	regexp.MustCompile(`\s+price$`),
	regexp.MustCompile(`\s+stock$`),
	regexp.MustCompile(`\s+share$`),
	regexp.MustCompile(`\s+quote$`),
	regexp.MustCompile(`\s+trading\s+at$`),
	regexp.MustCompile(`\s+today$`),
}

// etfNoise additionally drops the instrument words that show up in ETF
// queries anywhere in the text.
var etfNoise = []*regexp.Regexp{
	regexp.MustCompile(`\bwhat\s+is\b`),
	regexp.MustCompile(`\bprice\s+of\b`),
	regexp.MustCompile(`\btrading\s+at\b`),
	regexp.MustCompile(`\btoday\b`),
	regexp.MustCompile(`\bshare\b`),
	regexp.MustCompile(`\bstock\b`),
	regexp.MustCompile(`\bquote\b`),
	regexp.MustCompile(`\betf\b`),
}

type index struct {
	name   string
	ticker string
}

// Well-known indices bypass the NSE lookup entirely.
var indexShortcuts = []struct {
	match string
	index index
}{
	{"nifty 50", index{"NIFTY 50", "^NSEI"}},
	{"bank nifty", index{"BANK NIFTY", "^NSEBANK"}},
	{"nifty bank", index{"BANK NIFTY", "^NSEBANK"}},
	{"nifty", index{"NIFTY 50", "^NSEI"}},
	{"sensex", index{"SENSEX", "^BSESN"}},
}

func cleanQuery(query string, noise []*regexp.Regexp) string {
	cleaned := strings.ToLower(strings.TrimSpace(query))
	for _, re := range noise {
		cleaned = strings.TrimSpace(re.ReplaceAllString(cleaned, ""))
	}
	if len(cleaned) < 2 {
		return strings.ToLower(strings.TrimSpace(query))
	}
	return cleaned
}

// searchTicker resolves a free-text query to an NSE-validated ticker.
// It never guesses: either NSE confirms a symbol or the lookup fails.
func (a *Agent) searchTicker(ctx context.Context, query string, noise []*regexp.Regexp) (name, ticker string, ok bool) {
	cacheKey := strings.ToLower(strings.TrimSpace(query))

	a.mu.Lock()
	if entry, hit := a.symbolCache[cacheKey]; hit {
		a.mu.Unlock()
		return entry.name, entry.ticker, true
	}
	a.mu.Unlock()

	cleaned := cleanQuery(query, noise)

	for _, shortcut := range indexShortcuts {
		if strings.Contains(cleaned, shortcut.match) {
			a.rememberSymbol(cacheKey, shortcut.index.name, shortcut.index.ticker)
			return shortcut.index.name, shortcut.index.ticker, true
		}
	}

	name, ticker, err := a.callAutocomplete(ctx, cleaned)
	if err == nil {
		a.rememberSymbol(cacheKey, name, ticker)
		a.logger.Info("NSE ticker resolved", map[string]interface{}{
			"query":  query,
			"ticker": ticker,
		})
		return name, ticker, true
	}

	// Full name missed; retry with just the leading word
	// ("Infosys Limited" -> "Infosys").
	if fields := strings.Fields(cleaned); len(fields) > 1 {
		name, ticker, err = a.callAutocomplete(ctx, fields[0])
		if err == nil {
			a.rememberSymbol(cacheKey, name, ticker)
			return name, ticker, true
		}
	}

	a.logger.Warn("NSE search failed", map[string]interface{}{
		"query": query,
		"error": err.Error(),
	})
	return "", "", false
}

func (a *Agent) rememberSymbol(key, name, ticker string) {
	a.mu.Lock()
	a.symbolCache[key] = symbolEntry{name: name, ticker: ticker}
	a.mu.Unlock()
}

type autocompleteResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		SymbolInfo string `json:"symbol_info"`
	} `json:"symbols"`
}

// callAutocomplete queries the NSE autocomplete API, retrying rate
// limits and server errors with exponential backoff.
func (a *Agent) callAutocomplete(ctx context.Context, query string) (name, ticker string, err error) {
	endpoint := a.cfg.NSESearchURL + "?q=" + url.QueryEscape(query)

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		req, reqErr := http.NewRequest(http.MethodGet, endpoint, nil)
		if reqErr != nil {
			return "", "", fmt.Errorf("build nse request: %w", reqErr)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, doErr := a.http.DoWithContext(ctx, req)
		if doErr != nil {
			metrics.UpstreamRequests.WithLabelValues("nse", "error").Inc()
			if attempt < a.cfg.MaxRetries {
				if err := a.backoff(ctx, attempt); err != nil {
					return "", "", err
				}
				continue
			}
			return "", "", fmt.Errorf("nse request: %w", doErr)
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if retryable {
			resp.Body.Close()
			metrics.UpstreamRequests.WithLabelValues("nse", fmt.Sprint(resp.StatusCode)).Inc()
			if attempt < a.cfg.MaxRetries {
				a.logger.Warn("NSE retryable error", map[string]interface{}{
					"status":  resp.StatusCode,
					"attempt": attempt + 1,
				})
				if err := a.backoff(ctx, attempt); err != nil {
					return "", "", err
				}
				continue
			}
			return "", "", fmt.Errorf("nse status %d after %d attempts", resp.StatusCode, attempt+1)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			metrics.UpstreamRequests.WithLabelValues("nse", fmt.Sprint(resp.StatusCode)).Inc()
			return "", "", fmt.Errorf("nse status %d", resp.StatusCode)
		}

		var parsed autocompleteResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		metrics.UpstreamRequests.WithLabelValues("nse", "200").Inc()
		if decodeErr != nil {
			return "", "", fmt.Errorf("decode nse response: %w", decodeErr)
		}

		if len(parsed.Symbols) == 0 || parsed.Symbols[0].Symbol == "" {
			return "", "", fmt.Errorf("no nse symbols for %q", query)
		}

		best := parsed.Symbols[0]
		name = best.SymbolInfo
		if name == "" {
			name = best.Symbol
		}
		return name, best.Symbol + ".NS", nil
	}

	return "", "", fmt.Errorf("nse retries exhausted for %q", query)
}
