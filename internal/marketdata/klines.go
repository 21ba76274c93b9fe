package marketdata

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cryptostrategist/internal/models"
)

// KlinesSourceMarker tags whether a klines response was served from the
// local store or had to fall back to a live provider call.
type KlinesSourceMarker string

const (
	KlinesLocal        KlinesSourceMarker = "local"
	KlinesProviderLive KlinesSourceMarker = "provider_live"
)

// KlinesResult is the response shape for a klines request.
type KlinesResult struct {
	Bars   []models.PriceBar
	Source KlinesSourceMarker
}

// KlinesProvider fetches OHLCV history from an upstream exchange-compatible
// source. Full fetches honor a cap; incremental fetches request only bars
// strictly after `since`.
type KlinesProvider interface {
	FetchHistory(ctx context.Context, symbol string, timeframe models.Timeframe, limit int) ([]models.PriceBar, error)
	FetchSince(ctx context.Context, symbol string, timeframe models.Timeframe, since time.Time) ([]models.PriceBar, error)
}

// KlinesStore is the subset of database.Store the klines cache needs.
type KlinesStore interface {
	DB() *gorm.DB
	Write(fn func(tx *gorm.DB) error) error
}

// Klines fronts the persisted PriceBar table with the incremental-backfill
// policy of spec.md §4.2: the first request for a (symbol, timeframe)
// fetches the provider's full history (capped); later requests fetch only
// bars newer than the highest stored open_time.
type Klines struct {
	store       KlinesStore
	provider    KlinesProvider
	backfillCap int
}

// NewKlines builds a Klines cache over the given store/provider.
func NewKlines(store KlinesStore, provider KlinesProvider, backfillCap int) *Klines {
	return &Klines{store: store, provider: provider, backfillCap: backfillCap}
}

// Get serves bars for (symbol, timeframe) from the local store, backfilling
// from the provider as needed.
func (k *Klines) Get(ctx context.Context, symbol string, timeframe models.Timeframe) (KlinesResult, error) {
	var existing []models.PriceBar
	err := k.store.DB().
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("open_time asc").
		Find(&existing).Error
	if err != nil {
		return KlinesResult{}, fmt.Errorf("klines: query local store: %w", err)
	}

	if len(existing) == 0 {
		fetched, err := k.provider.FetchHistory(ctx, symbol, timeframe, k.backfillCap)
		if err != nil {
			if len(existing) == 0 {
				return KlinesResult{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
			}
		} else if err := k.persist(fetched); err != nil {
			return KlinesResult{}, err
		} else {
			return KlinesResult{Bars: fetched, Source: KlinesProviderLive}, nil
		}
	}

	since := existing[len(existing)-1].OpenTime
	fresh, err := k.provider.FetchSince(ctx, symbol, timeframe, since)
	if err != nil {
		// Upstream flaky: serve what we have locally rather than failing
		// the caller (spec.md §4.2 resilience).
		return KlinesResult{Bars: existing, Source: KlinesLocal}, nil
	}
	if len(fresh) > 0 {
		if err := k.persist(fresh); err != nil {
			return KlinesResult{}, err
		}
		existing = append(existing, fresh...)
	}

	return KlinesResult{Bars: existing, Source: KlinesLocal}, nil
}

func (k *Klines) persist(bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	return k.store.Write(func(tx *gorm.DB) error {
		for _, b := range bars {
			bar := b
			if err := tx.
				Where("symbol = ? AND timeframe = ? AND open_time = ?", bar.Symbol, bar.Timeframe, bar.OpenTime).
				FirstOrCreate(&bar).Error; err != nil {
				return fmt.Errorf("klines: persist bar: %w", err)
			}
		}
		return nil
	})
}
