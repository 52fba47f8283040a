package fxrates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/DaveXRouz/Bental-sub004/internal/model"
)

// Config holds FX client settings.
type Config struct {
	URL          string
	BaseCurrency string
	TTL          time.Duration
	Timeout      time.Duration
}

// Client fetches FX rates with a TTL cache and single-flight
// de-duplication of concurrent fetches.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
	group      singleflight.Group
	inFlight   atomic.Bool

	mu        sync.RWMutex
	cache     []model.TickerRecord
	expiresAt time.Time
	lastFetch time.Time
	prev      map[string]float64 // Last observed rate per symbol, outlives individual responses
}

// NewClient creates an FX rates client. No network I/O happens until
// FetchRates is called.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		prev:       make(map[string]float64),
	}
}

// ratesPayload mirrors the upstream response: rates are quoted against
// a fixed base currency.
type ratesPayload struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// FetchRates returns the cached batch when it is fresh or a fetch is
// already in flight, and otherwise performs the network call. A failed
// fetch degrades to the existing cache without advancing its expiry, so
// the next call retries immediately.
func (c *Client) FetchRates(ctx context.Context) []model.TickerRecord {
	c.mu.RLock()
	fresh := time.Now().Before(c.expiresAt)
	c.mu.RUnlock()

	if fresh {
		return c.CachedRates()
	}

	// Callers arriving while a fetch is in flight get the current cache
	// rather than a second request.
	if c.inFlight.Load() {
		return c.CachedRates()
	}

	// singleflight closes the window between the in-flight check and the
	// fetch itself: racing callers coalesce into one request.
	v, _, _ := c.group.Do("rates", func() (any, error) {
		c.inFlight.Store(true)
		defer c.inFlight.Store(false)
		return c.refresh(ctx), nil
	})
	return v.([]model.TickerRecord)
}

// CachedRates returns whatever is cached, possibly nil on cold start.
// It never blocks and never triggers network I/O.
func (c *Client) CachedRates() []model.TickerRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.TickerRecord, len(c.cache))
	copy(out, c.cache)
	return out
}

// IsStale reports whether the last successful fetch is older than the
// TTL. True on cold start.
func (c *Client) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.lastFetch) > c.cfg.TTL
}

// refresh performs one fetch. On any failure it logs and returns the
// cache unchanged.
func (c *Client) refresh(ctx context.Context) []model.TickerRecord {
	payload, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("fx fetch failed, serving stale cache", "error", err)
		return c.CachedRates()
	}

	records := c.normalize(payload)

	c.mu.Lock()
	c.cache = records
	now := time.Now()
	c.lastFetch = now
	c.expiresAt = now.Add(c.cfg.TTL)
	c.mu.Unlock()

	c.logger.Debug("fx rates refreshed", "instruments", len(records))

	out := make([]model.TickerRecord, len(records))
	copy(out, records)
	return out
}

func (c *Client) fetch(ctx context.Context) (*ratesPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var payload ratesPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("decode rates: empty rates map")
	}

	return &payload, nil
}

// normalize converts one payload into records, deriving deltas from the
// previous-rate table. The table keeps entries for instruments absent
// from this response so their deltas stay correct when they reappear.
func (c *Client) normalize(payload *ratesPayload) []model.TickerRecord {
	base := payload.Base
	if base == "" {
		base = c.cfg.BaseCurrency
	}
	base = model.CanonicalSymbol(base)

	now := model.NowMillis()

	c.mu.Lock()
	records := make([]model.TickerRecord, 0, len(payload.Rates))
	for currency, rate := range payload.Rates {
		quote := model.CanonicalSymbol(currency)
		if quote == "" || quote == base || rate == 0 {
			continue
		}
		symbol := base + quote

		previous, seen := c.prev[symbol]
		if !seen {
			previous = rate // First observation yields zero change
		}

		change := rate - previous
		changePercent := 0.0
		if previous != 0 {
			changePercent = change / previous * 100
		}

		c.prev[symbol] = rate

		records = append(records, model.TickerRecord{
			Symbol:        symbol,
			Price:         rate,
			Change:        change,
			ChangePercent: changePercent,
			LastUpdate:    now,
			Source:        model.SourcePollFX,
		})
	}
	c.mu.Unlock()

	// Map iteration order is random; keep output deterministic.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Symbol < records[j].Symbol
	})

	return records
}
