package marketdata

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// LiveFeed is an optional push-path price cache fed by the venue's
// websocket ticker stream, sitting alongside the polled REST path Fetch
// uses. It is grounded on the teacher's internal/binance websocket
// listen-key reconnect loop, generalized from Binance's user-data stream to
// a plain public ticker stream this engine's venue exposes. A LiveFeed that
// is never started (Start not called) is simply unused; LatestCached
// always misses and callers fall back to the REST path.
type LiveFeed struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	prices map[string]float64
}

// NewLiveFeed builds an unstarted LiveFeed.
func NewLiveFeed(logger zerolog.Logger) *LiveFeed {
	return &LiveFeed{
		logger: logger.With().Str("component", "LiveFeed").Logger(),
		prices: make(map[string]float64),
	}
}

// tickerMessage is the venue's ticker push payload: {"symbol": "...",
// "price": "..."}.
type tickerMessage struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Start connects to url and reconnects with backoff until ctx is canceled.
// It never blocks the caller: the listen loop runs in its own goroutine.
func (f *LiveFeed) Start(ctx context.Context, url string) {
	go f.run(ctx, url)
}

func (f *LiveFeed) run(ctx context.Context, url string) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			f.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("live feed connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		f.listen(ctx, conn)
	}
}

func (f *LiveFeed) listen(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg tickerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				f.logger.Warn().Err(err).Msg("live feed read failed, reconnecting")
			}
			return
		}
		price, err := strconv.ParseFloat(msg.Price, 64)
		if err != nil {
			continue
		}
		f.mu.Lock()
		f.prices[msg.Symbol] = price
		f.mu.Unlock()
	}
}

// LatestCached returns the last pushed price for symbol, if any has arrived
// since Start.
func (f *LiveFeed) LatestCached(symbol string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.prices[symbol]
	return price, ok
}
