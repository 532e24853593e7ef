// Package sentiment implements the Sentiment Source (C5): a per-symbol
// market mood reading with a short Redis-backed cache, a news-feed primary
// provider, and a local fallback classifier when the feed is unavailable.
// Structurally this is the teacher's internal/ai/sentiment.Analyzer
// (Fear & Greed Index + CryptoPanic news) reshaped from one global score
// into one score per symbol, cached the way internal/cache.CacheService
// caches everything else in this codebase.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Label is the coarse sentiment bucket attached to a Score.
type Label string

const (
	LabelBullish Label = "Bullish"
	LabelBearish Label = "Bearish"
	LabelNeutral Label = "Neutral"
)

// Source identifies which provider produced a Score.
type Source string

const (
	SourceNewsFeed  Source = "news_feed"
	SourceFallback  Source = "local_fallback"
	SourceCache     Source = "cache"
)

// Score is the Sentiment Source's output for one symbol.
type Score struct {
	Symbol string  `json:"symbol"`
	Label  Label   `json:"label"`
	Value  float64 `json:"value"` // -1 (bearish) .. +1 (bullish)
	Source Source  `json:"source"`
}

const (
	cacheTTL    = 5 * time.Minute
	fetchBudget = 5 * time.Second
)

// Cache is the subset of internal/cache.CacheService the Sentiment Source
// needs. Defined locally so sentiment does not depend on cache's Redis
// connection-health machinery directly, only its JSON get/set contract.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Provider fetches a raw news-based sentiment reading for one symbol.
type Provider interface {
	Fetch(ctx context.Context, symbol string) (Score, error)
}

// Reader evaluates the sentiment for a symbol, consulting cache first, the
// primary Provider second, and a local fallback classifier last.
type Reader struct {
	cache    Cache
	provider Provider
}

func NewReader(cache Cache, provider Provider) *Reader {
	return &Reader{cache: cache, provider: provider}
}

func cacheKey(symbol string) string {
	return fmt.Sprintf("sentiment:%s", symbol)
}

// Read returns the sentiment for symbol. It never blocks past
// fetchBudget: a slow or erroring provider falls back to the local
// heuristic rather than stalling the caller.
func (r *Reader) Read(ctx context.Context, symbol string) Score {
	if r.cache != nil {
		var cached Score
		if err := r.cache.GetJSON(ctx, cacheKey(symbol), &cached); err == nil {
			cached.Source = SourceCache
			return cached
		}
	}

	score := r.fetchWithBudget(ctx, symbol)

	if r.cache != nil {
		_ = r.cache.SetJSON(ctx, cacheKey(symbol), score, cacheTTL)
	}
	return score
}

func (r *Reader) fetchWithBudget(ctx context.Context, symbol string) Score {
	if r.provider == nil {
		return FallbackScore(symbol, nil)
	}

	budgeted, cancel := context.WithTimeout(ctx, fetchBudget)
	defer cancel()

	type result struct {
		score Score
		err   error
	}
	done := make(chan result, 1)
	go func() {
		s, err := r.provider.Fetch(budgeted, symbol)
		done <- result{s, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return FallbackScore(symbol, nil)
		}
		res.score.Source = SourceNewsFeed
		return res.score
	case <-budgeted.Done():
		return FallbackScore(symbol, nil)
	}
}

// FallbackScore is the local, network-free classifier used when the news
// feed is unavailable or returns no usable signal. It derives a coarse
// label from simple keyword counting over any headlines passed in, or
// returns a neutral reading with no headlines at all.
func FallbackScore(symbol string, headlines []string) Score {
	if len(headlines) == 0 {
		return Score{Symbol: symbol, Label: LabelNeutral, Value: 0, Source: SourceFallback}
	}

	var positive, negative int
	for _, h := range headlines {
		lower := strings.ToLower(h)
		for _, w := range bullishWords {
			if strings.Contains(lower, w) {
				positive++
			}
		}
		for _, w := range bearishWords {
			if strings.Contains(lower, w) {
				negative++
			}
		}
	}

	total := positive + negative
	if total == 0 {
		return Score{Symbol: symbol, Label: LabelNeutral, Value: 0, Source: SourceFallback}
	}

	value := float64(positive-negative) / float64(total)
	label := LabelNeutral
	switch {
	case value > 0.2:
		label = LabelBullish
	case value < -0.2:
		label = LabelBearish
	}
	return Score{Symbol: symbol, Label: label, Value: value, Source: SourceFallback}
}

var bullishWords = []string{"rally", "surge", "bullish", "breakout", "adoption", "upgrade", "record high", "inflow"}
var bearishWords = []string{"crash", "plunge", "bearish", "hack", "lawsuit", "ban", "selloff", "outflow", "liquidation"}

// CryptoPanicProvider adapts the teacher's CryptoPanic news feed into the
// Provider contract, scoring headlines the way the teacher's
// calculateNewsScore weighted votes, but per-symbol via the API's
// currencies filter instead of a fixed BTC,ETH pair.
// cryptoPanicRateLimit caps outbound requests to CryptoPanic's public API at
// one per second.
const cryptoPanicRateLimit = 1 * time.Second

type CryptoPanicProvider struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewCryptoPanicProvider(apiKey string) *CryptoPanicProvider {
	return &CryptoPanicProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: fetchBudget},
		limiter:    rate.NewLimiter(rate.Every(cryptoPanicRateLimit), 1),
	}
}

type cryptoPanicResponse struct {
	Results []struct {
		Title string `json:"title"`
		Votes struct {
			Positive int `json:"positive"`
			Negative int `json:"negative"`
		} `json:"votes"`
	} `json:"results"`
}

func (p *CryptoPanicProvider) Fetch(ctx context.Context, symbol string) (Score, error) {
	if p.apiKey == "" {
		return Score{}, fmt.Errorf("sentiment: no CryptoPanic API key configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return Score{}, fmt.Errorf("sentiment: rate limit wait: %w", err)
	}

	currency := strings.TrimSuffix(strings.TrimSuffix(symbol, "USDT"), "USD")
	url := fmt.Sprintf("https://cryptopanic.com/api/v1/posts/?auth_token=%s&currencies=%s&filter=hot", p.apiKey, currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Score{}, fmt.Errorf("sentiment: building request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Score{}, fmt.Errorf("sentiment: fetching news: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Score{}, fmt.Errorf("sentiment: reading response: %w", err)
	}

	var parsed cryptoPanicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Score{}, fmt.Errorf("sentiment: parsing response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return Score{Symbol: symbol, Label: LabelNeutral, Value: 0}, nil
	}

	var weightedSum, totalVotes float64
	for _, r := range parsed.Results {
		pos, neg := float64(r.Votes.Positive), float64(r.Votes.Negative)
		if pos+neg == 0 {
			continue
		}
		weightedSum += pos - neg
		totalVotes += pos + neg
	}
	if totalVotes == 0 {
		return Score{Symbol: symbol, Label: LabelNeutral, Value: 0}, nil
	}

	value := weightedSum / totalVotes
	label := LabelNeutral
	switch {
	case value > 0.2:
		label = LabelBullish
	case value < -0.2:
		label = LabelBearish
	}
	return Score{Symbol: symbol, Label: label, Value: value}, nil
}
