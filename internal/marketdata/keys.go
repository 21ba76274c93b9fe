package marketdata

import "fmt"

// Source names the nine upstream source kinds recognized by the cache
// (spec.md §4.2).
type Source string

const (
	SourceTicker24h        Source = "ticker_24h"
	SourceKlines           Source = "klines"
	SourceMacroFred        Source = "macro_fred"
	SourceFearGreed        Source = "fear_greed"
	SourceEtfFlows         Source = "etf_flows"
	SourceOnchainBTC       Source = "onchain_btc"
	SourceMiners           Source = "miners"
	SourceStablecoinSupply Source = "stablecoin_supply"
	SourceMstrMnav         Source = "mstr_mnav"
)

// Key identifies one cache entry: a source plus an opaque per-source
// qualifier (e.g. a symbol, or "symbol|timeframe" for klines).
type Key struct {
	Source Source
	Param  string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Source, k.Param)
}

// TickerKey builds the ticker_24h key for a symbol.
func TickerKey(symbol string) Key { return Key{Source: SourceTicker24h, Param: symbol} }

// KlinesKey builds the klines key for a symbol/timeframe pair.
func KlinesKey(symbol, timeframe string) Key {
	return Key{Source: SourceKlines, Param: symbol + "|" + timeframe}
}

// SingletonKey builds a key for a source that takes no parameter (macro,
// fear/greed, miners, stablecoin supply, MSTR mNAV) or a single symbol
// parameter (etf_flows, onchain_btc).
func SingletonKey(source Source, param string) Key { return Key{Source: source, Param: param} }
