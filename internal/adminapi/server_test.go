package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"cryptostrategist/internal/broker"
	"cryptostrategist/internal/marketdata"
	"cryptostrategist/internal/models"
	"cryptostrategist/internal/notify"
	"cryptostrategist/internal/risk"
	"cryptostrategist/internal/scheduler"
	"cryptostrategist/internal/strategy"
)

type memStore struct{ db *gorm.DB }

func (m *memStore) DB() *gorm.DB { return m.db }
func (m *memStore) Write(fn func(tx *gorm.DB) error) error {
	return m.db.Transaction(fn)
}

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Strategy{}, &models.Position{}, &models.Trade{}, &models.Signal{},
		&models.RunLog{}, &models.TraceStep{}, &models.Account{},
	))
	require.NoError(t, db.Create(&models.Account{Cash: 10000, EquityHighWaterMark: 10000}).Error)
	store := &memStore{db: db}

	prices := fakePrices{prices: map[string]float64{"BTCUSDT": 50000}}
	brk := broker.New(store, prices, 10, 5)
	riskFilter := risk.New(risk.Thresholds{
		MaxTradeNotionalPct: 1.0, MaxSymbolExposurePct: 1.0, SoftDrawdownPct: 0.10, HardDrawdownPct: 0.20,
	}, &scheduler.AccountBreakerSetter{Store: store})
	sched := scheduler.New(
		store, marketdata.New(nil, time.Second, zap.NewNop()), nil, brk, riskFilter,
		notify.NopSink{}, prices,
		map[models.StrategyKind]strategy.Evaluator{},
		2, 5*time.Second, zap.NewNop(),
	)

	return New(zap.NewNop(), store, brk, riskFilter, sched, ":0"), store
}

type fakePrices struct{ prices map[string]float64 }

func (f fakePrices) LastPrice(ctx context.Context, symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateAndListStrategy(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"name": "btc-ta", "type": "TA", "symbol": "BTCUSDT", "schedule_interval": 300,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/strategies", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeBody(t, rec)
	assert.True(t, created["success"].(bool))

	listReq := httptest.NewRequest(http.MethodGet, "/api/strategies", nil)
	listRec := httptest.NewRecorder()
	srv.router.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)
	listed := decodeBody(t, listRec)
	data := listed["data"].([]any)
	assert.Len(t, data, 1)
}

func TestPauseResumeStrategy(t *testing.T) {
	srv, store := newTestServer(t)
	st := models.Strategy{Name: "s1", Kind: models.StrategyTA, Symbol: "BTCUSDT", Status: models.StrategyActive, ScheduleInterval: 60}
	require.NoError(t, store.db.Create(&st).Error)

	req := httptest.NewRequest(http.MethodPut, "/api/strategies/1/pause", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var reloaded models.Strategy
	require.NoError(t, store.db.First(&reloaded, st.ID).Error)
	assert.Equal(t, models.StrategyPaused, reloaded.Status)

	req2 := httptest.NewRequest(http.MethodPut, "/api/strategies/1/resume", nil)
	rec2 := httptest.NewRecorder()
	srv.router.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	require.NoError(t, store.db.First(&reloaded, st.ID).Error)
	assert.Equal(t, models.StrategyActive, reloaded.Status)
}

func TestGetStrategyNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/strategies/999", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearCircuitBreaker(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.db.Model(&models.Account{}).Where("id = ?", 1).Update("circuit_breaker_active", true).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/risk/circuit-breaker/clear", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var account models.Account
	require.NoError(t, store.db.First(&account).Error)
	assert.False(t, account.CircuitBreakerActive)
}
