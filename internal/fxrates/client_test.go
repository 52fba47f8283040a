package fxrates

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DaveXRouz/Bental-sub004/internal/model"
)

// ratesServer serves a sequence of rate maps, one per request, and
// counts requests. The last response repeats once the sequence is
// exhausted. A nil map in the sequence produces a 500.
type ratesServer struct {
	server   *httptest.Server
	requests atomic.Int32
	delay    atomic.Int64 // nanoseconds
	sequence []map[string]float64
}

func newRatesServer(delay time.Duration, sequence ...map[string]float64) *ratesServer {
	rs := &ratesServer{sequence: sequence}
	rs.delay.Store(int64(delay))
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(rs.requests.Add(1)) - 1
		if d := time.Duration(rs.delay.Load()); d > 0 {
			time.Sleep(d)
		}
		if n >= len(rs.sequence) {
			n = len(rs.sequence) - 1
		}
		rates := rs.sequence[n]
		if rates == nil {
			http.Error(w, "upstream down", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"base": "USD", "rates": rates})
	}))
	return rs
}

func testClient(url string, ttl time.Duration) *Client {
	return NewClient(Config{
		URL:          url,
		BaseCurrency: "USD",
		TTL:          ttl,
		Timeout:      5 * time.Second,
	}, nil)
}

func findRecord(t *testing.T, records []model.TickerRecord, symbol string) model.TickerRecord {
	t.Helper()
	for _, r := range records {
		if r.Symbol == symbol {
			return r
		}
	}
	t.Fatalf("record %q not found in %v", symbol, records)
	return model.TickerRecord{}
}

func TestClient_FirstFetchYieldsZeroChange(t *testing.T) {
	rs := newRatesServer(0, map[string]float64{"EUR": 0.92, "GBP": 0.79})
	defer rs.server.Close()

	client := testClient(rs.server.URL, time.Minute)
	records := client.FetchRates(context.Background())

	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	eur := findRecord(t, records, "USDEUR")
	if eur.Price != 0.92 {
		t.Errorf("Price = %v, want 0.92", eur.Price)
	}
	if eur.Change != 0 || eur.ChangePercent != 0 {
		t.Errorf("first observation must yield zero change, got change=%v pct=%v", eur.Change, eur.ChangePercent)
	}
	if eur.Source != model.SourcePollFX {
		t.Errorf("Source = %q, want %q", eur.Source, model.SourcePollFX)
	}
}

func TestClient_DerivesChangeFromPreviousRate(t *testing.T) {
	rs := newRatesServer(0,
		map[string]float64{"EUR": 1.00},
		map[string]float64{"EUR": 1.05},
	)
	defer rs.server.Close()

	client := testClient(rs.server.URL, time.Millisecond)

	client.FetchRates(context.Background())
	time.Sleep(5 * time.Millisecond) // Let the cache go stale

	records := client.FetchRates(context.Background())
	eur := findRecord(t, records, "USDEUR")

	if math.Abs(eur.Change-0.05) > 1e-9 {
		t.Errorf("Change = %v, want 0.05", eur.Change)
	}
	if math.Abs(eur.ChangePercent-5.0) > 1e-9 {
		t.Errorf("ChangePercent = %v, want 5.0", eur.ChangePercent)
	}
}

func TestClient_FreshCacheSkipsNetwork(t *testing.T) {
	rs := newRatesServer(0, map[string]float64{"EUR": 0.92})
	defer rs.server.Close()

	client := testClient(rs.server.URL, time.Minute)

	client.FetchRates(context.Background())
	client.FetchRates(context.Background())
	client.FetchRates(context.Background())

	if got := rs.requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1 while the cache is fresh", got)
	}
	if client.IsStale() {
		t.Error("IsStale() = true right after a successful fetch")
	}
}

func TestClient_FailedFetchServesStaleCache(t *testing.T) {
	rs := newRatesServer(0,
		map[string]float64{"EUR": 0.92},
		nil, // Next fetch fails
	)
	defer rs.server.Close()

	client := testClient(rs.server.URL, time.Millisecond)

	first := client.FetchRates(context.Background())
	time.Sleep(5 * time.Millisecond)

	second := client.FetchRates(context.Background())
	if len(second) != len(first) || second[0] != first[0] {
		t.Errorf("failed fetch changed the cache: %v -> %v", first, second)
	}
	if !client.IsStale() {
		t.Error("IsStale() = false after a failed refresh")
	}

	// Expiry did not advance: the next call hits the network again.
	before := rs.requests.Load()
	client.FetchRates(context.Background())
	if got := rs.requests.Load(); got != before+1 {
		t.Errorf("requests = %d, want %d (stale cache must retry immediately)", got, before+1)
	}
}

func TestClient_PreviousRateTableOutlivesResponses(t *testing.T) {
	rs := newRatesServer(0,
		map[string]float64{"EUR": 1.00, "GBP": 0.80},
		map[string]float64{"EUR": 1.01}, // GBP absent this round
		map[string]float64{"EUR": 1.01, "GBP": 0.88},
	)
	defer rs.server.Close()

	client := testClient(rs.server.URL, time.Millisecond)

	client.FetchRates(context.Background())
	time.Sleep(5 * time.Millisecond)

	second := client.FetchRates(context.Background())
	if len(second) != 1 {
		t.Fatalf("len(second) = %d, want 1 (cache replaced by what the response contained)", len(second))
	}
	time.Sleep(5 * time.Millisecond)

	third := client.FetchRates(context.Background())
	gbp := findRecord(t, third, "USDGBP")

	// Delta computed against the rate from the first response, not zero.
	if math.Abs(gbp.Change-0.08) > 1e-9 {
		t.Errorf("Change = %v, want 0.08 (previous rate retained across absence)", gbp.Change)
	}
	if math.Abs(gbp.ChangePercent-10.0) > 1e-9 {
		t.Errorf("ChangePercent = %v, want 10.0", gbp.ChangePercent)
	}
}

func TestClient_CachedRatesNeverBlocks(t *testing.T) {
	rs := newRatesServer(0, map[string]float64{"EUR": 0.92})
	defer rs.server.Close()

	client := testClient(rs.server.URL, time.Minute)

	if got := client.CachedRates(); len(got) != 0 {
		t.Errorf("CachedRates() on cold start = %v, want empty", got)
	}
	if got := rs.requests.Load(); got != 0 {
		t.Errorf("CachedRates() triggered %d requests, want 0", got)
	}

	client.FetchRates(context.Background())
	if got := client.CachedRates(); len(got) != 1 {
		t.Errorf("len(CachedRates()) = %d, want 1", len(got))
	}
}

func TestClient_InFlightFetchReturnsCurrentCache(t *testing.T) {
	rs := newRatesServer(0,
		map[string]float64{"EUR": 0.92},
		map[string]float64{"EUR": 0.95},
	)
	defer rs.server.Close()

	client := testClient(rs.server.URL, time.Millisecond)

	client.FetchRates(context.Background())
	time.Sleep(5 * time.Millisecond)

	// Slow down the refresh so a second caller lands mid-flight.
	rs.delay.Store(int64(300 * time.Millisecond))

	started := make(chan struct{})
	done := make(chan []model.TickerRecord, 1)
	go func() {
		close(started)
		done <- client.FetchRates(context.Background())
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	begin := time.Now()
	stale := client.FetchRates(context.Background())
	if elapsed := time.Since(begin); elapsed > 100*time.Millisecond {
		t.Errorf("in-flight call blocked for %v, want immediate cache return", elapsed)
	}
	if len(stale) != 1 || stale[0].Price != 0.92 {
		t.Errorf("in-flight call returned %v, want the current (stale) cache", stale)
	}

	fresh := <-done
	if len(fresh) != 1 || fresh[0].Price != 0.95 {
		t.Errorf("initiating call returned %v, want fresh rates", fresh)
	}
	if got := rs.requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2 (one warm-up, one coalesced refresh)", got)
	}
}
