package model

import (
	"strings"
	"time"
)

// Source identifies which feed produced a record.
type Source string

const (
	// SourceStream marks records from the streaming (WebSocket) feed.
	SourceStream Source = "stream"

	// SourcePollFX marks records from the polled FX rates feed.
	SourcePollFX Source = "poll-fx"
)

// AssetType is the UI-facing instrument class derived from a Source.
type AssetType string

const (
	AssetCrypto AssetType = "crypto"
	AssetFX     AssetType = "fx"
	AssetStock  AssetType = "stock"
)

// AssetType maps a source tag to the instrument class shown to consumers.
// Unknown sources fall back to stock.
func (s Source) AssetType() AssetType {
	switch s {
	case SourceStream:
		return AssetCrypto
	case SourcePollFX:
		return AssetFX
	default:
		return AssetStock
	}
}

// TickerRecord is a normalized price observation for one instrument.
// Records are immutable once constructed; feed clients build new ones
// on every upstream update.
type TickerRecord struct {
	Symbol        string  `json:"symbol"`           // Canonical symbol (non-empty, unique per store)
	Price         float64 `json:"price"`            // Last traded/quoted price
	Change        float64 `json:"change"`           // Absolute change since previous observation
	ChangePercent float64 `json:"change_percent"`   // Change / previous price × 100
	Volume        float64 `json:"volume,omitempty"` // 0 when the source does not report volume
	LastUpdate    int64   `json:"last_update"`      // Wall clock, ms since epoch
	Source        Source  `json:"source"`
}

// NowMillis returns the current wall-clock time in milliseconds since epoch.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// CanonicalSymbol normalizes a raw instrument identifier: uppercase,
// with everything outside [A-Z0-9] removed. Source-specific quote
// suffixes are stripped by the feed clients before canonicalization.
func CanonicalSymbol(raw string) string {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
