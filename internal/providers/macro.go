package providers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SmallProviderConfig parametrizes any of the lightweight single-endpoint
// providers in this file.
type SmallProviderConfig struct {
	BaseURL        string
	APIKey         string
	RateLimit      float64
	RateLimitBurst int
	TimeoutSeconds int
}

func (c SmallProviderConfig) httpClient(logger *zap.Logger) *httpClient {
	timeout := time.Duration(c.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := c.RateLimit
	if rps <= 0 {
		rps = 5
	}
	burst := c.RateLimitBurst
	if burst <= 0 {
		burst = 2
	}
	return newHTTPClient(c.BaseURL, rps, burst, timeout, logger)
}

// MacroIndicators is the value a MacroFred.Fetch call produces, matching
// the { fed_rate, treasury_10y, dxy, m2_growth_yoy } record.
type MacroIndicators struct {
	FedRate       float64 `json:"fed_rate"`
	Treasury10Y   float64 `json:"treasury_10y"`
	DXY           float64 `json:"dxy"`
	M2GrowthYoY   float64 `json:"m2_growth_yoy"`
}

// MacroFred is a marketdata.Fetcher for the macro_fred source.
type MacroFred struct {
	http *httpClient
}

func NewMacroFred(cfg SmallProviderConfig, logger *zap.Logger) *MacroFred {
	return &MacroFred{http: cfg.httpClient(logger)}
}

// Fetch ignores param: this source is symbol-agnostic, one global reading.
func (m *MacroFred) Fetch(ctx context.Context, param string) (any, error) {
	var out MacroIndicators
	req := m.http.client.R().SetResult(&out)
	resp, err := m.http.do(ctx, "GET", "/macro", req)
	if err != nil {
		return nil, fmt.Errorf("macro_fred: fetch: %w", err)
	}
	return *(resp.Result().(*MacroIndicators)), nil
}

// FearGreedClass is the qualitative bucket attached to a fear/greed index
// reading.
type FearGreedClass string

const (
	FearGreedExtremeFear FearGreedClass = "extreme_fear"
	FearGreedFear        FearGreedClass = "fear"
	FearGreedNeutral     FearGreedClass = "neutral"
	FearGreedGreed       FearGreedClass = "greed"
	FearGreedExtremeGreed FearGreedClass = "extreme_greed"
)

// FearGreed is the { value, classification } record.
type FearGreed struct {
	Value          int            `json:"value"`
	Classification FearGreedClass `json:"classification"`
}

// FearGreedIndex is a marketdata.Fetcher for the fear_greed source.
type FearGreedIndex struct {
	http *httpClient
}

func NewFearGreedIndex(cfg SmallProviderConfig, logger *zap.Logger) *FearGreedIndex {
	return &FearGreedIndex{http: cfg.httpClient(logger)}
}

func (f *FearGreedIndex) Fetch(ctx context.Context, param string) (any, error) {
	var out FearGreed
	req := f.http.client.R().SetResult(&out)
	resp, err := f.http.do(ctx, "GET", "/fear-and-greed", req)
	if err != nil {
		return nil, fmt.Errorf("fear_greed: fetch: %w", err)
	}
	return *(resp.Result().(*FearGreed)), nil
}

// ETFFlows is the { btc, eth, sol } net USD flow record.
type ETFFlows struct {
	BTC float64 `json:"btc"`
	ETH float64 `json:"eth"`
	SOL float64 `json:"sol"`
}

// ETFFlowsProvider is a marketdata.Fetcher for the etf_flows source.
type ETFFlowsProvider struct {
	http *httpClient
}

func NewETFFlowsProvider(cfg SmallProviderConfig, logger *zap.Logger) *ETFFlowsProvider {
	return &ETFFlowsProvider{http: cfg.httpClient(logger)}
}

func (e *ETFFlowsProvider) Fetch(ctx context.Context, param string) (any, error) {
	var out ETFFlows
	req := e.http.client.R().SetResult(&out)
	resp, err := e.http.do(ctx, "GET", "/etf-flows", req)
	if err != nil {
		return nil, fmt.Errorf("etf_flows: fetch: %w", err)
	}
	return *(resp.Result().(*ETFFlows)), nil
}

// OnchainBTC is the { ahr999, mvrv_ratio, wma200, hashrate, halving_days }
// record.
type OnchainBTC struct {
	AHR999      float64 `json:"ahr999"`
	MVRVRatio   float64 `json:"mvrv_ratio"`
	WMA200      float64 `json:"wma200"`
	Hashrate    float64 `json:"hashrate"`
	HalvingDays int     `json:"halving_days"`
}

// OnchainBTCProvider is a marketdata.Fetcher for the onchain_btc source.
type OnchainBTCProvider struct {
	http *httpClient
}

func NewOnchainBTCProvider(cfg SmallProviderConfig, logger *zap.Logger) *OnchainBTCProvider {
	return &OnchainBTCProvider{http: cfg.httpClient(logger)}
}

func (o *OnchainBTCProvider) Fetch(ctx context.Context, param string) (any, error) {
	var out OnchainBTC
	req := o.http.client.R().SetResult(&out)
	resp, err := o.http.do(ctx, "GET", "/onchain/btc", req)
	if err != nil {
		return nil, fmt.Errorf("onchain_btc: fetch: %w", err)
	}
	return *(resp.Result().(*OnchainBTC)), nil
}

// Miners is the { profitable, total } record.
type Miners struct {
	Profitable int `json:"profitable"`
	Total      int `json:"total"`
}

// MinersProvider is a marketdata.Fetcher for the miners source.
type MinersProvider struct {
	http *httpClient
}

func NewMinersProvider(cfg SmallProviderConfig, logger *zap.Logger) *MinersProvider {
	return &MinersProvider{http: cfg.httpClient(logger)}
}

func (m *MinersProvider) Fetch(ctx context.Context, param string) (any, error) {
	var out Miners
	req := m.http.client.R().SetResult(&out)
	resp, err := m.http.do(ctx, "GET", "/miners", req)
	if err != nil {
		return nil, fmt.Errorf("miners: fetch: %w", err)
	}
	return *(resp.Result().(*Miners)), nil
}

// StablecoinSupplyProvider is a marketdata.Fetcher for the
// stablecoin_supply source; the value is total supply in USD billions.
type StablecoinSupplyProvider struct {
	http *httpClient
}

func NewStablecoinSupplyProvider(cfg SmallProviderConfig, logger *zap.Logger) *StablecoinSupplyProvider {
	return &StablecoinSupplyProvider{http: cfg.httpClient(logger)}
}

func (s *StablecoinSupplyProvider) Fetch(ctx context.Context, param string) (any, error) {
	var out struct {
		SupplyB float64 `json:"supply_b"`
	}
	req := s.http.client.R().SetResult(&out)
	resp, err := s.http.do(ctx, "GET", "/stablecoin-supply", req)
	if err != nil {
		return nil, fmt.Errorf("stablecoin_supply: fetch: %w", err)
	}
	return resp.Result().(*struct {
		SupplyB float64 `json:"supply_b"`
	}).SupplyB, nil
}

// MstrMnavProvider is a marketdata.Fetcher for the mstr_mnav source; the
// value is a bare ratio.
type MstrMnavProvider struct {
	http *httpClient
}

func NewMstrMnavProvider(cfg SmallProviderConfig, logger *zap.Logger) *MstrMnavProvider {
	return &MstrMnavProvider{http: cfg.httpClient(logger)}
}

func (m *MstrMnavProvider) Fetch(ctx context.Context, param string) (any, error) {
	var out struct {
		Ratio float64 `json:"ratio"`
	}
	req := m.http.client.R().SetResult(&out)
	resp, err := m.http.do(ctx, "GET", "/mstr-mnav", req)
	if err != nil {
		return nil, fmt.Errorf("mstr_mnav: fetch: %w", err)
	}
	return resp.Result().(*struct {
		Ratio float64 `json:"ratio"`
	}).Ratio, nil
}
