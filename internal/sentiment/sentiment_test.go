package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackScore_NoHeadlinesIsNeutral(t *testing.T) {
	s := FallbackScore("BTCUSDT", nil)
	assert.Equal(t, LabelNeutral, s.Label)
	assert.Equal(t, SourceFallback, s.Source)
}

func TestFallbackScore_BullishKeywords(t *testing.T) {
	s := FallbackScore("BTCUSDT", []string{"Bitcoin rallies to record high on ETF inflow"})
	assert.Equal(t, LabelBullish, s.Label)
	assert.Greater(t, s.Value, 0.0)
}

func TestFallbackScore_BearishKeywords(t *testing.T) {
	s := FallbackScore("BTCUSDT", []string{"Exchange hacked, panic selloff follows"})
	assert.Equal(t, LabelBearish, s.Label)
	assert.Less(t, s.Value, 0.0)
}

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	v, ok := m.data[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(v, dest)
}

func (m *memCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

type stubProvider struct {
	score Score
	err   error
	calls int
}

func (p *stubProvider) Fetch(ctx context.Context, symbol string) (Score, error) {
	p.calls++
	return p.score, p.err
}

func TestReader_UsesCacheOnSecondRead(t *testing.T) {
	cache := newMemCache()
	provider := &stubProvider{score: Score{Symbol: "BTCUSDT", Label: LabelBullish, Value: 0.5}}
	r := NewReader(cache, provider)

	first := r.Read(context.Background(), "BTCUSDT")
	second := r.Read(context.Background(), "BTCUSDT")

	require.Equal(t, SourceNewsFeed, first.Source)
	require.Equal(t, SourceCache, second.Source)
	assert.Equal(t, 1, provider.calls)
}

func TestReader_FallsBackOnProviderError(t *testing.T) {
	cache := newMemCache()
	provider := &stubProvider{err: errors.New("boom")}
	r := NewReader(cache, provider)

	s := r.Read(context.Background(), "ETHUSDT")
	assert.Equal(t, SourceFallback, s.Source)
}

func TestReader_NilProviderFallsBack(t *testing.T) {
	r := NewReader(nil, nil)
	s := r.Read(context.Background(), "ETHUSDT")
	assert.Equal(t, SourceFallback, s.Source)
}
