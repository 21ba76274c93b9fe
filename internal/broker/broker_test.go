package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"cryptostrategist/internal/models"
)

type fakePrices struct {
	prices map[string]float64
}

func (f *fakePrices) LastPrice(ctx context.Context, symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

type memStore struct {
	db *gorm.DB
}

func newMemStore(t *testing.T) *memStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.Position{}, &models.Trade{}))
	require.NoError(t, db.Create(&models.Account{Cash: 10000, EquityHighWaterMark: 10000}).Error)
	return &memStore{db: db}
}

func (m *memStore) DB() *gorm.DB { return m.db }
func (m *memStore) Write(fn func(tx *gorm.DB) error) error {
	return m.db.Transaction(fn)
}

func TestExecuteBuyCreatesPositionAndDeductsCash(t *testing.T) {
	store := newMemStore(t)
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 50000}}
	b := New(store, prices, 10, 5) // 10bps fee, 5bps slippage

	trade, err := b.Execute(context.Background(), Order{
		Symbol:           "BTCUSDT",
		Side:             models.SideBuy,
		NotionalOrAmount: 1000,
		Reason:           "test_buy",
	})
	require.NoError(t, err)

	expectedExecPrice := 50000.0 * (1 + 0.0015)
	assert.InDelta(t, expectedExecPrice, trade.Price, 0.001)
	assert.InDelta(t, 1000.0/expectedExecPrice, trade.Amount, 1e-9)

	var account models.Account
	require.NoError(t, store.DB().First(&account).Error)
	expectedFee := 1000.0 * (10.0 / 10000)
	assert.InDelta(t, 10000-1000-expectedFee, account.Cash, 0.001)

	var position models.Position
	require.NoError(t, store.DB().Where("symbol = ?", "BTCUSDT").First(&position).Error)
	assert.InDelta(t, 1000.0/expectedExecPrice, position.Amount, 1e-9)
}

func TestExecuteBuyInsufficientCash(t *testing.T) {
	store := newMemStore(t)
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 50000}}
	b := New(store, prices, 10, 5)

	_, err := b.Execute(context.Background(), Order{
		Symbol:           "BTCUSDT",
		Side:             models.SideBuy,
		NotionalOrAmount: 20000,
	})
	assert.ErrorIs(t, err, ErrInsufficientCash)
}

func TestExecuteSellReducesPositionPreservesAverageCost(t *testing.T) {
	store := newMemStore(t)
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 50000}}
	b := New(store, prices, 0, 0)

	_, err := b.Execute(context.Background(), Order{
		Symbol: "BTCUSDT", Side: models.SideBuy, NotionalOrAmount: 5000,
	})
	require.NoError(t, err)

	var before models.Position
	require.NoError(t, store.DB().Where("symbol = ?", "BTCUSDT").First(&before).Error)

	_, err = b.Execute(context.Background(), Order{
		Symbol: "BTCUSDT", Side: models.SideSell, NotionalOrAmount: before.Amount / 2,
	})
	require.NoError(t, err)

	var after models.Position
	require.NoError(t, store.DB().Where("symbol = ?", "BTCUSDT").First(&after).Error)
	assert.InDelta(t, before.Amount/2, after.Amount, 1e-9)
	assert.Equal(t, before.AverageCost, after.AverageCost)
}

func TestExecuteSellFullyClosesDeletesPosition(t *testing.T) {
	store := newMemStore(t)
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 50000}}
	b := New(store, prices, 0, 0)

	_, err := b.Execute(context.Background(), Order{
		Symbol: "BTCUSDT", Side: models.SideBuy, NotionalOrAmount: 5000,
	})
	require.NoError(t, err)

	var position models.Position
	require.NoError(t, store.DB().Where("symbol = ?", "BTCUSDT").First(&position).Error)

	_, err = b.Execute(context.Background(), Order{
		Symbol: "BTCUSDT", Side: models.SideSell, NotionalOrAmount: position.Amount,
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, store.DB().Model(&models.Position{}).Where("symbol = ?", "BTCUSDT").Count(&count).Error)
	assert.Zero(t, count)
}

func TestExecuteSellInsufficientHolding(t *testing.T) {
	store := newMemStore(t)
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 50000}}
	b := New(store, prices, 0, 0)

	_, err := b.Execute(context.Background(), Order{
		Symbol: "BTCUSDT", Side: models.SideSell, NotionalOrAmount: 1,
	})
	assert.ErrorIs(t, err, ErrInsufficientHolding)
}

func TestSnapshotUsesAverageCostWhenNoPrice(t *testing.T) {
	store := newMemStore(t)
	prices := &fakePrices{prices: map[string]float64{}}
	require.NoError(t, store.DB().Create(&models.Position{
		Symbol: "ETHUSDT", Amount: 2, AverageCost: 1000,
	}).Error)

	b := New(store, prices, 0, 0)
	snap, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10000+2000, snap.Equity, 0.001)
}

func TestCloseAllSellsEntirePosition(t *testing.T) {
	store := newMemStore(t)
	prices := &fakePrices{prices: map[string]float64{"BTCUSDT": 50000}}
	b := New(store, prices, 0, 0)

	_, err := b.Execute(context.Background(), Order{
		Symbol: "BTCUSDT", Side: models.SideBuy, NotionalOrAmount: 5000,
	})
	require.NoError(t, err)

	_, err = b.CloseAll(context.Background(), "BTCUSDT", 0, "manual_close")
	require.NoError(t, err)

	var count int64
	require.NoError(t, store.DB().Model(&models.Position{}).Where("symbol = ?", "BTCUSDT").Count(&count).Error)
	assert.Zero(t, count)
}
