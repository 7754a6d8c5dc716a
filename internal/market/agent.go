// Package market fetches live market data: NSE ticker resolution,
// Yahoo Finance quotes, and MFApi mutual fund data. Results are the
// map-shaped payloads the executor and summarizer consume; lookups
// that fail return an error-shaped result, never a Go error.
package market

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"finchat-assistant/internal/action"
	"finchat-assistant/internal/common/config"
	"finchat-assistant/internal/common/database"
	"finchat-assistant/internal/common/httpclient"
	"finchat-assistant/internal/common/logger"
	"finchat-assistant/internal/common/metrics"
)

type symbolEntry struct {
	name   string
	ticker string
}

type memEntry struct {
	result  action.Result
	expires time.Time
}

// Agent is the market-data collaborator. Quote and fund results are
// cached in redis when a client is supplied, in memory otherwise.
// Symbol and negative caches are always in-process.
type Agent struct {
	cfg    config.MarketConfig
	ttls   config.CacheConfig
	http   *httpclient.Client
	cache  *database.RedisClient
	logger logger.Logger

	mu          sync.Mutex
	symbolCache map[string]symbolEntry
	negative    map[string]time.Time
	memCache    map[string]memEntry

	allFunds        []Fund
	fundsByCategory map[string][]Fund
}

// New builds the agent and loads the mutual fund list. A fund list
// failure is not fatal; fund operations report their own errors.
func New(ctx context.Context, cfg config.MarketConfig, ttls config.CacheConfig, cache *database.RedisClient, log logger.Logger) *Agent {
	a := &Agent{
		cfg:         cfg,
		ttls:        ttls,
		http:        httpclient.NewClient(config.GetDuration(cfg.Timeout)),
		cache:       cache,
		logger:      log,
		symbolCache: make(map[string]symbolEntry),
		negative:    make(map[string]time.Time),
		memCache:    make(map[string]memEntry),
	}
	a.loadFunds(ctx)
	return a
}

// GetStockPrice resolves the query to an NSE-validated ticker and
// fetches the quote. No ticker guessing: an NSE miss is a miss.
func (a *Agent) GetStockPrice(ctx context.Context, query string) action.Result {
	a.logger.Info("Fetching stock price", map[string]interface{}{"query": query})

	cacheKey := "stock:" + strings.ToLower(query)
	if cached, ok := a.cacheGet(ctx, cacheKey); ok {
		metrics.CacheHits.WithLabelValues("stock", "hit").Inc()
		return cached
	}
	metrics.CacheHits.WithLabelValues("stock", "miss").Inc()

	if a.isNegativeCached(cacheKey) {
		return action.Errorf("Stock '%s' not found. Try using the exact company name as listed on NSE.", query)
	}

	name, ticker, ok := a.searchTicker(ctx, query, stockNoise)
	if !ok {
		a.setNegative(cacheKey)
		return action.Errorf("Could not find ticker for '%s' on NSE. Please try the exact company name (e.g., 'Reliance Industries', 'Infosys Limited').", query)
	}

	q, err := a.fetchQuote(ctx, ticker)
	if err != nil {
		a.logger.Error("Quote fetch failed", map[string]interface{}{
			"ticker": ticker,
			"error":  err.Error(),
		})
		return action.Errorf("Error fetching data: %s", err.Error())
	}

	if name == "" {
		name = q.Name
	}
	change := q.Price - q.PrevClose
	changePct := 0.0
	if q.PrevClose != 0 {
		changePct = change / q.PrevClose * 100
	}

	var marketCap interface{} = "N/A"
	if q.MarketCap > 0 {
		marketCap = q.MarketCap
	}
	var peRatio interface{} = "N/A"
	if q.TrailingPE > 0 {
		peRatio = round2(q.TrailingPE)
	}

	result := action.Result{
		"company":        name,
		"symbol":         ticker,
		"price":          round2(q.Price),
		"change":         round2(change),
		"change_percent": round2(changePct),
		"volume":         q.Volume,
		"day_high":       round2(q.DayHigh),
		"day_low":        round2(q.DayLow),
		"market_cap":     marketCap,
		"pe_ratio":       peRatio,
		"dividend_yield": round2(q.DividendYield * 100),
		"dividend_rate":  round2(q.DividendRate),
		"payout_ratio":   round2(q.PayoutRatio * 100),
		"data_source":    "Yahoo Finance (NSE)",
	}
	a.cacheSet(ctx, cacheKey, result, config.TTL(a.ttls.StockTTL))
	return result
}

var (
	metricDividendRe = regexp.MustCompile(`(?i)\b(dividend\s+yield|yield|dividend\s+rate)\b`)
	metricPERe       = regexp.MustCompile(`(?i)\b(p/e\s+ratio|pe\s+ratio|p\s+e\s+ratio|p/e|pe)\b`)
	metricFillerRe   = regexp.MustCompile(`(?i)\b(of|for|the)\b`)
)

// GetStockMetric strips the metric phrase to isolate the company name,
// fetches the full quote, and projects only the requested metric.
func (a *Agent) GetStockMetric(ctx context.Context, query string) action.Result {
	a.logger.Info("Fetching stock metric", map[string]interface{}{"query": query})

	stockQuery := metricDividendRe.ReplaceAllString(query, "")
	stockQuery = metricPERe.ReplaceAllString(stockQuery, "")
	stockQuery = metricFillerRe.ReplaceAllString(stockQuery, "")
	stockQuery = strings.Join(strings.Fields(stockQuery), " ")

	stock := a.GetStockPrice(ctx, stockQuery)
	if stock.IsError() {
		return stock
	}

	qLower := strings.ToLower(query)
	if strings.Contains(qLower, "dividend") && strings.Contains(qLower, "yield") {
		return action.Result{
			"company":        stock["company"],
			"symbol":         stock["symbol"],
			"dividend_yield": stock["dividend_yield"],
			"dividend_rate":  stock["dividend_rate"],
			"data_source":    stock["data_source"],
		}
	}
	if strings.Contains(qLower, "p/e") || strings.Contains(qLower, "pe ratio") ||
		strings.Contains(qLower, "p e ratio") ||
		(strings.Contains(qLower, "pe") && strings.Contains(qLower, "of")) {
		return action.Result{
			"company":     stock["company"],
			"symbol":      stock["symbol"],
			"pe_ratio":    stock["pe_ratio"],
			"data_source": stock["data_source"],
		}
	}
	return stock
}

// GetETFPrice fetches an ETF quote by name or symbol.
func (a *Agent) GetETFPrice(ctx context.Context, query string) action.Result {
	a.logger.Info("Fetching ETF price", map[string]interface{}{"query": query})

	name, ticker, ok := a.searchTicker(ctx, query, etfNoise)
	if !ok {
		return action.Errorf("ETF '%s' not found", query)
	}

	q, err := a.fetchQuote(ctx, ticker)
	if err != nil {
		a.logger.Error("ETF quote fetch failed", map[string]interface{}{
			"ticker": ticker,
			"error":  err.Error(),
		})
		return action.Result{"error": err.Error()}
	}

	if name == "" {
		name = q.Name
	}
	change := q.Price - q.PrevClose
	changePct := 0.0
	if q.PrevClose != 0 {
		changePct = change / q.PrevClose * 100
	}

	return action.Result{
		"etf_name":       name,
		"ticker":         ticker,
		"price":          round2(q.Price),
		"change":         round2(change),
		"change_percent": round2(changePct),
		"volume":         q.Volume,
		"data_source":    "Yahoo Finance",
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func (a *Agent) isNegativeCached(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts, ok := a.negative[key]
	if !ok {
		return false
	}
	if time.Since(ts) > config.TTL(a.ttls.NegativeTTL) {
		delete(a.negative, key)
		return false
	}
	return true
}

func (a *Agent) setNegative(key string) {
	a.mu.Lock()
	a.negative[key] = time.Now()
	a.mu.Unlock()
}

func (a *Agent) cacheGet(ctx context.Context, key string) (action.Result, bool) {
	if a.cache != nil {
		raw, err := a.cache.Get(ctx, "market:"+key)
		if err != nil {
			return nil, false
		}
		var result action.Result
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, false
		}
		return result, true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.memCache[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.result, true
}

func (a *Agent) cacheSet(ctx context.Context, key string, result action.Result, ttl time.Duration) {
	if a.cache != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return
		}
		if err := a.cache.Set(ctx, "market:"+key, string(raw), ttl); err != nil {
			a.logger.Warn("Market cache write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return
	}

	a.mu.Lock()
	a.memCache[key] = memEntry{result: result, expires: time.Now().Add(ttl)}
	a.mu.Unlock()
}

// backoff sleeps for the exponential retry delay unless the context
// ends first.
func (a *Agent) backoff(ctx context.Context, attempt int) error {
	delay := 500 * time.Millisecond << attempt
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
