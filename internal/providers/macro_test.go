package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func withTestClient(server *httptest.Server) *httpClient {
	return &httpClient{
		client:  resty.New().SetBaseURL(server.URL),
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zap.NewNop(),
	}
}

func TestFearGreedIndexFetch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fear-and-greed", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":15,"classification":"extreme_fear"}`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	f := &FearGreedIndex{http: withTestClient(server)}
	v, err := f.Fetch(context.Background(), "")
	require.NoError(t, err)

	fg, ok := v.(FearGreed)
	require.True(t, ok)
	assert.Equal(t, 15, fg.Value)
	assert.Equal(t, FearGreedExtremeFear, fg.Classification)
}

func TestMacroFredFetch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"fed_rate":3.0,"treasury_10y":3.2,"dxy":95.0,"m2_growth_yoy":6.0}`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	m := &MacroFred{http: withTestClient(server)}
	v, err := m.Fetch(context.Background(), "")
	require.NoError(t, err)

	ind, ok := v.(MacroIndicators)
	require.True(t, ok)
	assert.Equal(t, 3.0, ind.FedRate)
	assert.Equal(t, 6.0, ind.M2GrowthYoY)
}

func TestMstrMnavProviderFetch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ratio":1.2}`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	m := &MstrMnavProvider{http: withTestClient(server)}
	v, err := m.Fetch(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1.2, v.(float64))
}
