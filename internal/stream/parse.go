package stream

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/DaveXRouz/Bental-sub004/internal/model"
)

// wsTicker mirrors one element of the upstream ticker array. Numeric
// fields arrive as strings.
type wsTicker struct {
	Symbol        string `json:"s"`
	LastPrice     string `json:"c"`
	PriceChange   string `json:"p"`
	PercentChange string `json:"P"`
	Volume        string `json:"v"`
}

// handleMessage parses one inbound frame, filters it to the watch list
// and delivers the resulting batch. Malformed frames are logged and
// dropped; the connection stays up.
func (c *Client) handleMessage(gen uint64, data []byte) {
	var frame []wsTicker
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Warn("dropping malformed stream frame", "error", err)
		return
	}

	now := model.NowMillis()
	records := make([]model.TickerRecord, 0, len(frame))
	for _, t := range frame {
		sym := c.canonical(t.Symbol)
		if sym == "" {
			continue
		}
		if _, ok := c.watch[sym]; !ok {
			continue
		}

		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil {
			c.logger.Debug("dropping ticker with unparseable price",
				"symbol", sym,
				"price", t.LastPrice,
			)
			continue
		}
		change, _ := strconv.ParseFloat(t.PriceChange, 64)
		pct, _ := strconv.ParseFloat(t.PercentChange, 64)
		volume, _ := strconv.ParseFloat(t.Volume, 64)

		records = append(records, model.TickerRecord{
			Symbol:        sym,
			Price:         price,
			Change:        change,
			ChangePercent: pct,
			Volume:        volume,
			LastUpdate:    now,
			Source:        model.SourceStream,
		})
	}

	if len(records) == 0 {
		return
	}

	c.mu.Lock()
	stale := gen != c.gen
	onData := c.onData
	c.mu.Unlock()

	if stale || onData == nil {
		return
	}
	onData(records)
}

// canonical strips the source quote suffix and normalizes the symbol.
func (c *Client) canonical(raw string) string {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if suffix := strings.ToUpper(c.cfg.QuoteSuffix); suffix != "" {
		sym = strings.TrimSuffix(sym, suffix)
	}
	return model.CanonicalSymbol(sym)
}
