package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"finchat-assistant/internal/action"
	"finchat-assistant/internal/common/config"
	"finchat-assistant/internal/common/metrics"
)

// Fund is one entry of the MFApi scheme list.
type Fund struct {
	SchemeCode int64  `json:"schemeCode"`
	SchemeName string `json:"schemeName"`
}

// categoryIndexKeywords maps canonical categories to the scheme-name
// substrings used for indexing.
var categoryIndexKeywords = map[string][]string{
	"large cap": {"large cap", "largecap", "large-cap", "bluechip", "blue chip"},
	"mid cap":   {"mid cap", "midcap", "mid-cap"},
	"small cap": {"small cap", "smallcap", "small-cap"},
	"elss":      {"elss", "tax saver", "tax-saver"},
	"equity":    {"equity", "growth"},
	"debt":      {"debt", "bond", "income", "gilt"},
	"hybrid":    {"hybrid", "balanced", "multi asset"},
}

// searchCategoryKeywords is looser: it maps single words seen in user
// queries to a category filter for the fuzzy search.
var searchCategoryKeywords = map[string][]string{
	"large cap": {"large", "largecap", "large-cap", "bluechip", "blue chip"},
	"mid cap":   {"mid", "midcap", "mid-cap", "mid cap"},
	"small cap": {"small", "smallcap", "small-cap", "small cap"},
	"elss":      {"elss", "tax saver", "tax-saver", "taxsaver", "tax"},
	"equity":    {"equity"},
	"hybrid":    {"hybrid", "balanced"},
	"debt":      {"debt", "bond", "liquid"},
}

const (
	fundMatchThreshold = 55
	maxFuzzyCandidates = 100
	tradingDaysPerYear = 252
	fundListCacheFile  = "mf_list.json"
)

// loadFunds loads the MFApi scheme list, preferring the on-disk cache
// when it is fresh enough. Failure leaves the list empty; fund lookups
// will report their own errors.
func (a *Agent) loadFunds(ctx context.Context) {
	if a.cfg.MFApiURL == "" {
		return
	}

	if funds, ok := a.loadFundCache(); ok {
		a.allFunds = funds
	} else {
		funds, err := a.downloadFundList(ctx)
		if err != nil {
			a.logger.Error("Failed to load mutual fund list", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		a.allFunds = funds
		a.saveFundCache(funds)
	}

	a.indexFundsByCategory()
	a.logger.Info("Mutual funds loaded", map[string]interface{}{
		"funds":      len(a.allFunds),
		"categories": len(a.fundsByCategory),
	})
}

func (a *Agent) fundCachePath() string {
	dir := a.cfg.FundListCacheDir
	if dir == "" {
		dir = ".cache"
	}
	return filepath.Join(dir, fundListCacheFile)
}

func (a *Agent) loadFundCache() ([]Fund, bool) {
	path := a.fundCachePath()
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > config.TTL(a.cfg.FundListCacheTTL) {
		return nil, false
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var funds []Fund
	if err := json.Unmarshal(raw, &funds); err != nil {
		a.logger.Warn("Corrupt fund list cache, downloading fresh", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}
	a.logger.Info("Loaded mutual fund list from cache", map[string]interface{}{"funds": len(funds)})
	return funds, true
}

func (a *Agent) saveFundCache(funds []Fund) {
	raw, err := json.Marshal(funds)
	if err != nil {
		return
	}
	path := a.fundCachePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		a.logger.Warn("Failed to cache fund list", map[string]interface{}{"error": err.Error()})
	}
}

func (a *Agent) downloadFundList(ctx context.Context) ([]Fund, error) {
	req, err := http.NewRequest(http.MethodGet, a.cfg.MFApiURL+"/mf", nil)
	if err != nil {
		return nil, fmt.Errorf("build fund list request: %w", err)
	}

	resp, err := a.http.DoWithContext(ctx, req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("mfapi", "error").Inc()
		return nil, fmt.Errorf("fund list request: %w", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues("mfapi", fmt.Sprint(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fund list status %d", resp.StatusCode)
	}

	var funds []Fund
	if err := json.NewDecoder(resp.Body).Decode(&funds); err != nil {
		return nil, fmt.Errorf("decode fund list: %w", err)
	}
	return funds, nil
}

func (a *Agent) indexFundsByCategory() {
	a.fundsByCategory = make(map[string][]Fund, len(categoryIndexKeywords))
	for _, fund := range a.allFunds {
		name := strings.ToLower(fund.SchemeName)
		for category, keywords := range categoryIndexKeywords {
			for _, kw := range keywords {
				if strings.Contains(name, kw) {
					a.fundsByCategory[category] = append(a.fundsByCategory[category], fund)
					break
				}
			}
		}
	}
}

// SearchFund fuzzy-matches a fund name against the MFApi list. A
// category word in the query narrows the pool first. Below the match
// threshold it returns the top three candidates instead of guessing.
func (a *Agent) SearchFund(ctx context.Context, query string) action.Result {
	a.logger.Info("Searching mutual fund", map[string]interface{}{"query": query})

	cacheKey := "fund:" + strings.ToLower(query)
	if cached, ok := a.cacheGet(ctx, cacheKey); ok {
		metrics.CacheHits.WithLabelValues("fund", "hit").Inc()
		return cached
	}
	metrics.CacheHits.WithLabelValues("fund", "miss").Inc()

	if len(a.allFunds) == 0 {
		return action.Errorf("Fund search error: fund list unavailable")
	}

	cleaned := strings.ToLower(query)
	cleaned = strings.ReplaceAll(cleaned, "nav", "")
	cleaned = strings.ReplaceAll(cleaned, "mutual fund", "")
	cleaned = strings.ReplaceAll(cleaned, "fund", "")
	cleaned = strings.TrimSpace(cleaned)

	pool := a.allFunds
	category := detectSearchCategory(cleaned)
	if category != "" {
		keywords := searchCategoryKeywords[category]
		var filtered []Fund
		for _, fund := range a.allFunds {
			name := strings.ToLower(fund.SchemeName)
			for _, kw := range keywords {
				if strings.Contains(name, kw) {
					filtered = append(filtered, fund)
					break
				}
			}
		}
		pool = filtered
	} else if len(pool) > maxFuzzyCandidates {
		pool = pool[:maxFuzzyCandidates]
	}

	type scoredFund struct {
		fund  Fund
		score int
	}
	var best *Fund
	bestScore := 0
	scored := make([]scoredFund, 0, len(pool))
	for i := range pool {
		name := strings.ToLower(pool[i].SchemeName)
		score := tokenSetRatio(cleaned, name)
		if strings.Contains(name, cleaned) {
			score += 10
		}
		scored = append(scored, scoredFund{fund: pool[i], score: score})
		if score > bestScore && score >= fundMatchThreshold {
			bestScore = score
			best = &pool[i]
		}
	}

	if best != nil {
		a.logger.Info("Fund matched", map[string]interface{}{
			"fund":  best.SchemeName,
			"score": bestScore,
		})
		if details := a.fundDetails(ctx, best.SchemeCode); details != nil {
			result := action.Result(details)
			a.cacheSet(ctx, cacheKey, result, config.TTL(a.ttls.FundTTL))
			return result
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > 3 {
		scored = scored[:3]
	}
	candidates := make([]interface{}, len(scored))
	for i, s := range scored {
		candidates[i] = map[string]interface{}{
			"schemeName": s.fund.SchemeName,
			"schemeCode": s.fund.SchemeCode,
			"score":      s.score,
		}
	}

	return action.Result{
		"error":      fmt.Sprintf("No exact fund match for '%s'", query),
		"candidates": candidates,
	}
}

func detectSearchCategory(query string) string {
	// Specific categories first so "small cap equity" resolves to
	// small cap, not equity.
	order := []string{"large cap", "mid cap", "small cap", "elss", "hybrid", "debt", "equity"}
	for _, category := range order {
		for _, kw := range searchCategoryKeywords[category] {
			if strings.Contains(query, kw) {
				return category
			}
		}
	}
	return ""
}

// topFundsKeywords are the scheme-name substrings used by the top-funds
// category lookup. Unknown categories fall back to the raw name.
var topFundsKeywords = map[string][]string{
	"large cap": {"large", "largecap", "large-cap"},
	"mid cap":   {"mid", "midcap", "mid-cap"},
	"small cap": {"small", "smallcap", "small-cap"},
	"equity":    {"equity"},
	"elss":      {"elss", "tax saver", "tax-saver", "taxsaver"},
}

var directPlanTokens = []string{"direct", "direct plan", "direct-plan", "directplan"}

// GetTopFunds lists funds in a category, preferring direct plans and
// enriching each with live NAV and annualized returns.
func (a *Agent) GetTopFunds(ctx context.Context, category string, limit int) action.Result {
	if limit <= 0 {
		limit = a.cfg.TopFundsLimit
	}
	a.logger.Info("Fetching top funds", map[string]interface{}{
		"category": category,
		"limit":    limit,
	})

	if len(a.allFunds) == 0 {
		return action.Errorf("No funds found for '%s'", category)
	}

	normalized := strings.ReplaceAll(strings.ToLower(category), "_", " ")
	keywords, ok := topFundsKeywords[normalized]
	if !ok {
		keywords = []string{normalized}
	}

	collect := func(directOnly bool) []interface{} {
		var out []interface{}
		for _, fund := range a.allFunds {
			name := strings.ToLower(fund.SchemeName)
			if directOnly && !containsAny(name, directPlanTokens) {
				continue
			}
			if !containsAny(name, keywords) {
				continue
			}
			details := a.fundDetails(ctx, fund.SchemeCode)
			if details == nil {
				continue
			}
			if directOnly {
				details["plan_type"] = "direct"
			} else {
				details["plan_type"] = "regular"
			}
			out = append(out, details)
			if len(out) >= limit {
				break
			}
		}
		return out
	}

	funds := collect(true)
	if len(funds) == 0 {
		funds = collect(false)
	}
	if len(funds) == 0 {
		return action.Errorf("No funds found for '%s'", category)
	}

	return action.Result{
		"success":     true,
		"category":    titleWords(strings.ReplaceAll(category, "_", " ")),
		"funds":       funds,
		"data_source": "MFApi",
	}
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}

func titleWords(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}

type fundDetailsResponse struct {
	Meta struct {
		SchemeName string `json:"scheme_name"`
		FundHouse  string `json:"fund_house"`
	} `json:"meta"`
	Data []struct {
		Date string `json:"date"`
		NAV  string `json:"nav"`
	} `json:"data"`
}

// fundDetails fetches NAV history for a scheme and derives annualized
// 1y/3y returns. Returns nil when the scheme has no usable data.
func (a *Agent) fundDetails(ctx context.Context, schemeCode int64) map[string]interface{} {
	endpoint := fmt.Sprintf("%s/mf/%d", a.cfg.MFApiURL, schemeCode)
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}

	resp, err := a.http.DoWithContext(ctx, req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("mfapi", "error").Inc()
		a.logger.Error("Fund details request failed", map[string]interface{}{
			"scheme_code": schemeCode,
			"error":       err.Error(),
		})
		return nil
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues("mfapi", fmt.Sprint(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 256))
		return nil
	}

	var parsed fundDetailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil
	}
	if len(parsed.Data) < 2 {
		return nil
	}

	navs := make([]float64, len(parsed.Data))
	for i, point := range parsed.Data {
		nav, err := strconv.ParseFloat(point.NAV, 64)
		if err != nil {
			nav = 0
		}
		navs[i] = nav
	}

	name := parsed.Meta.SchemeName
	if name == "" {
		name = "Unknown"
	}
	house := parsed.Meta.FundHouse
	if house == "" {
		house = "Unknown"
	}

	return map[string]interface{}{
		"name":        name,
		"nav":         navs[0],
		"fund_house":  house,
		"returns_1y":  annualizedReturn(navs, tradingDaysPerYear),
		"returns_3y":  annualizedReturn(navs, 3*tradingDaysPerYear),
		"data_source": "MFApi",
	}
}

// annualizedReturn computes the annualized percentage return between
// the latest NAV (index 0) and the NAV daysBack trading days earlier.
func annualizedReturn(navs []float64, daysBack int) float64 {
	if len(navs) <= daysBack {
		return 0
	}
	current := navs[0]
	oldIdx := daysBack
	if oldIdx > len(navs)-1 {
		oldIdx = len(navs) - 1
	}
	old := navs[oldIdx]
	if old == 0 {
		return 0
	}
	years := float64(daysBack) / float64(tradingDaysPerYear)
	annualized := (math.Pow(current/old, 1/years) - 1) * 100
	return round2(annualized)
}

// tokenSetRatio approximates fuzzy token-set similarity: both strings
// are tokenized, and the best normalized edit-distance ratio among the
// intersection/remainder recombinations wins.
func tokenSetRatio(a, b string) int {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			common = append(common, token)
		} else {
			onlyA = append(onlyA, token)
		}
	}
	for token := range tokensB {
		if _, ok := tokensA[token]; !ok {
			onlyB = append(onlyB, token)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := similarityRatio(base, withA)
	if r := similarityRatio(base, withB); r > best {
		best = r
	}
	if r := similarityRatio(withA, withB); r > best {
		best = r
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(s)) {
		set[token] = struct{}{}
	}
	return set
}

func similarityRatio(a, b string) int {
	if a == b {
		return 100
	}
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	if longer == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(longer))))
}
