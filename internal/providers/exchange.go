package providers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cryptostrategist/internal/models"
)

// ExchangeConfig parametrizes the Exchange provider. It mirrors the fields
// config.Exchange exposes so main only has to pass that struct through.
type ExchangeConfig struct {
	BaseURL        string
	Testnet        bool
	RateLimit      float64
	RateLimitBurst int
	TimeoutSeconds int
}

// Exchange is a marketdata.Fetcher for ticker_24h and a
// marketdata.KlinesProvider for OHLCV history, both over the same
// exchange-compatible REST API.
type Exchange struct {
	http *httpClient
}

// NewExchange builds an Exchange provider.
func NewExchange(cfg ExchangeConfig, logger *zap.Logger) *Exchange {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.binance.com/api/v3"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Exchange{
		http: newHTTPClient(base, cfg.RateLimit, cfg.RateLimitBurst, timeout, logger),
	}
}

type ticker24hResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
}

// Ticker24h is the parsed value an Exchange.Fetch("ticker_24h") call
// produces; marketdata.Result.Value holds one of these.
type Ticker24h struct {
	Symbol             string
	LastPrice          float64
	PriceChangePercent float64
	Volume             float64
	HighPrice          float64
	LowPrice           float64
}

// Fetch implements marketdata.Fetcher for the ticker_24h source. param is
// the symbol (e.g. "BTCUSDT").
func (e *Exchange) Fetch(ctx context.Context, param string) (any, error) {
	var out ticker24hResponse
	req := e.http.client.R().
		SetQueryParam("symbol", param).
		SetResult(&out)

	resp, err := e.http.do(ctx, "GET", "/ticker/24hr", req)
	if err != nil {
		return nil, fmt.Errorf("exchange: fetch ticker_24h: %w", err)
	}
	parsed := resp.Result().(*ticker24hResponse)

	last, _ := strconv.ParseFloat(parsed.LastPrice, 64)
	changePct, _ := strconv.ParseFloat(parsed.PriceChangePercent, 64)
	volume, _ := strconv.ParseFloat(parsed.Volume, 64)
	high, _ := strconv.ParseFloat(parsed.HighPrice, 64)
	low, _ := strconv.ParseFloat(parsed.LowPrice, 64)

	return Ticker24h{
		Symbol:             parsed.Symbol,
		LastPrice:          last,
		PriceChangePercent: changePct,
		Volume:             volume,
		HighPrice:          high,
		LowPrice:           low,
	}, nil
}

// klineRow is the exchange's wire representation of a single candle: a
// heterogeneous array, not an object.
type klineRow [12]any

func (e *Exchange) fetchKlines(ctx context.Context, symbol string, timeframe models.Timeframe, limit int, startTimeMs int64) ([]models.PriceBar, error) {
	req := e.http.client.R().
		SetQueryParam("symbol", symbol).
		SetQueryParam("interval", string(timeframe)).
		SetQueryParam("limit", strconv.Itoa(limit))
	if startTimeMs > 0 {
		req.SetQueryParam("startTime", strconv.FormatInt(startTimeMs, 10))
	}

	var rows []klineRow
	req.SetResult(&rows)

	resp, err := e.http.do(ctx, "GET", "/klines", req)
	if err != nil {
		return nil, fmt.Errorf("exchange: fetch klines: %w", err)
	}
	parsed := resp.Result().(*[]klineRow)

	bars := make([]models.PriceBar, 0, len(*parsed))
	for _, row := range *parsed {
		bar, err := parseKlineRow(symbol, timeframe, row)
		if err != nil {
			return nil, fmt.Errorf("exchange: parse kline row: %w", err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseKlineRow(symbol string, timeframe models.Timeframe, row klineRow) (models.PriceBar, error) {
	openTimeMs, ok := row[0].(float64)
	if !ok {
		return models.PriceBar{}, fmt.Errorf("unexpected open_time field type %T", row[0])
	}
	open, err := parseStringField(row[1])
	if err != nil {
		return models.PriceBar{}, err
	}
	high, err := parseStringField(row[2])
	if err != nil {
		return models.PriceBar{}, err
	}
	low, err := parseStringField(row[3])
	if err != nil {
		return models.PriceBar{}, err
	}
	closePrice, err := parseStringField(row[4])
	if err != nil {
		return models.PriceBar{}, err
	}
	volume, err := parseStringField(row[5])
	if err != nil {
		return models.PriceBar{}, err
	}

	return models.PriceBar{
		Symbol:    symbol,
		Timeframe: timeframe,
		OpenTime:  time.UnixMilli(int64(openTimeMs)).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}

func parseStringField(v any) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected field type %T", v)
	}
	return strconv.ParseFloat(s, 64)
}

// FetchHistory implements marketdata.KlinesProvider: a capped full-history
// pull, most recent `limit` bars.
func (e *Exchange) FetchHistory(ctx context.Context, symbol string, timeframe models.Timeframe, limit int) ([]models.PriceBar, error) {
	return e.fetchKlines(ctx, symbol, timeframe, limit, 0)
}

// FetchSince implements marketdata.KlinesProvider: bars strictly after
// `since`. The exchange's startTime is inclusive, so we nudge forward one
// millisecond and rely on the caller's (symbol, timeframe, open_time)
// uniqueness to absorb any boundary overlap.
func (e *Exchange) FetchSince(ctx context.Context, symbol string, timeframe models.Timeframe, since time.Time) ([]models.PriceBar, error) {
	startMs := since.UnixMilli() + 1
	return e.fetchKlines(ctx, symbol, timeframe, 1000, startMs)
}
