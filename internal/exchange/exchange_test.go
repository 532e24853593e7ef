package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConfigured(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://example.invalid"}, zerolog.Nop())
	assert.False(t, c.IsConfigured())

	c2 := NewClient(Config{BaseURL: "http://example.invalid", APIKey: "k", APISecret: "s", Passphrase: "p"}, zerolog.Nop())
	assert.True(t, c2.IsConfigured())
}

func TestRequest_ErrorsWhenNotConfigured(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://example.invalid"}, zerolog.Nop())
	_, err := c.GetAssets(context.Background())
	require.Error(t, err)
}

func TestRequest_SignsHeadersCorrectly(t *testing.T) {
	var gotKey, gotSign, gotPass, gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("ACCESS-KEY")
		gotSign = r.Header.Get("ACCESS-SIGN")
		gotPass = r.Header.Get("ACCESS-PASSPHRASE")
		gotTS = r.Header.Get("ACCESS-TIMESTAMP")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "mykey", APISecret: "mysecret", Passphrase: "mypass"}, zerolog.Nop())
	_, err := c.GetAssets(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "mykey", gotKey)
	assert.Equal(t, "mypass", gotPass)
	assert.NotEmpty(t, gotSign)
	assert.NotEmpty(t, gotTS)

	// the signature must match what sign() computes for the same inputs
	want := c.sign(gotTS, "GET", "/api/v1/account/assets", "", "")
	assert.Equal(t, want, gotSign)
}

func TestFetchCandles_ParsesAndNormalizesSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := []rawCandle{
			{"2000", "100", "105", "95", "102", "10"},
			{"1000", "90", "95", "85", "92", "8"},
		}
		body, _ := json.Marshal(raw)
		w.Write(body)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	set, err := c.FetchCandles(context.Background(), "BTCUSDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, set.Candles, 2)
	assert.Equal(t, int64(1000), set.Candles[0].OpenTime)
	assert.Equal(t, int64(2000), set.Candles[1].OpenTime)
}

func TestPlaceOrder_ParsesSuccessEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"00000","msg":"success","data":{"orderId":"abc123"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", APISecret: "s", Passphrase: "p"}, zerolog.Nop())
	resp, err := c.PlaceOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT", Side: SideBuy, Type: OrderTypeMarket, Size: 0.01})
	require.NoError(t, err)
	assert.True(t, resp.Succeeded())
	assert.Equal(t, "abc123", resp.Data.OrderID)
}

func TestPlaceOrder_ReportsFailureEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"40001","msg":"insufficient balance"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", APISecret: "s", Passphrase: "p"}, zerolog.Nop())
	resp, err := c.PlaceOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT", Side: SideSell, Type: OrderTypeMarket, Size: 0.01})
	require.NoError(t, err)
	assert.False(t, resp.Succeeded())
}
