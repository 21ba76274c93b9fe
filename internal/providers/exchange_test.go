package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"cryptostrategist/internal/models"
)

func newTestExchange(server *httptest.Server) *Exchange {
	return &Exchange{
		http: &httpClient{
			client:  resty.New().SetBaseURL(server.URL),
			limiter: rate.NewLimiter(rate.Inf, 1),
			logger:  zap.NewNop(),
		},
	}
}

func TestExchangeFetchTicker24h(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ticker/24hr", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"65000.50","priceChangePercent":"2.5","volume":"1000.0","highPrice":"66000.0","lowPrice":"64000.0"}`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	e := newTestExchange(server)
	v, err := e.Fetch(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	ticker, ok := v.(Ticker24h)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", ticker.Symbol)
	assert.Equal(t, 65000.50, ticker.LastPrice)
	assert.Equal(t, 2.5, ticker.PriceChangePercent)
}

func TestExchangeFetchHistoryParsesKlineRows(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/klines", r.URL.Path)
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.0","10.5",1700003599999,"0","0",0,"0","0"],
			[1700003600000,"105.0","115.0","100.0","112.0","12.0",1700007199999,"0","0",0,"0","0"]
		]`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	e := newTestExchange(server)
	bars, err := e.FetchHistory(context.Background(), "ETHUSDT", models.Timeframe1h, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "ETHUSDT", bars[0].Symbol)
	assert.Equal(t, models.Timeframe1h, bars[0].Timeframe)
	assert.Equal(t, 100.0, bars[0].Open)
	assert.Equal(t, 105.0, bars[0].Close)
	assert.True(t, bars[1].OpenTime.After(bars[0].OpenTime))
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), bars[0].OpenTime)
}

func TestExchangeFetchSincePassesStartTime(t *testing.T) {
	since := time.UnixMilli(1700000000000).UTC()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1700000000001", r.URL.Query().Get("startTime"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	e := newTestExchange(server)
	bars, err := e.FetchSince(context.Background(), "BTCUSDT", models.Timeframe1h, since)
	require.NoError(t, err)
	assert.Empty(t, bars)
}
