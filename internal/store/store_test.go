package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DaveXRouz/Bental-sub004/internal/model"
	"github.com/DaveXRouz/Bental-sub004/internal/snapshot"
	"github.com/DaveXRouz/Bental-sub004/internal/stream"
)

// fakeStream captures the callbacks the store wires in, so tests can
// push batches as if they came off the wire.
type fakeStream struct {
	mu          sync.Mutex
	onData      stream.OnData
	onError     stream.OnError
	connects    int
	disconnects int
}

func (f *fakeStream) Connect(onData stream.OnData, onError stream.OnError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onData = onData
	f.onError = onError
	f.connects++
}

func (f *fakeStream) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeStream) emit(records []model.TickerRecord) {
	f.mu.Lock()
	onData := f.onData
	f.mu.Unlock()
	if onData != nil {
		onData(records)
	}
}

// fakeRates returns a fixed batch on every poll.
type fakeRates struct {
	records []model.TickerRecord
	fetches atomic.Int32
}

func (f *fakeRates) FetchRates(ctx context.Context) []model.TickerRecord {
	f.fetches.Add(1)
	return f.records
}

func record(symbol string, price, changePercent float64, lastUpdate int64, source model.Source) model.TickerRecord {
	return model.TickerRecord{
		Symbol:        symbol,
		Price:         price,
		ChangePercent: changePercent,
		LastUpdate:    lastUpdate,
		Source:        source,
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestStore_UpdateLastWriterWinsByCallOrder(t *testing.T) {
	s := New(DefaultConfig(), nil, nil, nil, nil)

	fresh := record("BTC", 50000, 1.0, 2000, model.SourceStream)
	stale := record("BTC", 49000, 0.5, 1000, model.SourcePollFX)

	s.Update([]model.TickerRecord{fresh})
	s.Update([]model.TickerRecord{stale})

	got, ok := s.GetTicker("BTC")
	if !ok {
		t.Fatal("BTC missing")
	}
	// The later call wins even though its record's own timestamp is older.
	if got.Price != 49000 || got.LastUpdate != 1000 {
		t.Errorf("GetTicker(BTC) = %+v, want the later batch", got)
	}
}

func TestStore_GetTickerCanonicalizesSymbol(t *testing.T) {
	s := New(DefaultConfig(), nil, nil, nil, nil)
	s.Update([]model.TickerRecord{record("BTC", 50000, 1.0, 1, model.SourceStream)})

	if _, ok := s.GetTicker(" btc "); !ok {
		t.Error("lookup must canonicalize the requested symbol")
	}
	if _, ok := s.GetTicker("DOGE"); ok {
		t.Error("unknown symbol reported present")
	}
}

func TestStore_GetAllTickersSortedByAbsChangePercent(t *testing.T) {
	s := New(DefaultConfig(), nil, nil, nil, nil)
	s.Update([]model.TickerRecord{
		record("AAA", 1, -5.2, 1, model.SourceStream),
		record("BBB", 2, 1.0, 1, model.SourceStream),
		record("CCC", 3, 3.3, 1, model.SourceStream),
	})

	got := s.GetAllTickers()
	want := []string{"AAA", "CCC", "BBB"} // abs: 5.2, 3.3, 1.0
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, sym := range want {
		if got[i].Symbol != sym {
			t.Errorf("got[%d].Symbol = %q, want %q", i, got[i].Symbol, sym)
		}
	}
}

func TestStore_UpdateSkipsEmptySymbols(t *testing.T) {
	s := New(DefaultConfig(), nil, nil, nil, nil)

	var notified atomic.Int32
	defer s.OnChange(func([]model.TickerRecord) { notified.Add(1) })()

	s.Update([]model.TickerRecord{{Price: 1}})
	s.Update(nil)

	if got := len(s.GetAllTickers()); got != 0 {
		t.Errorf("stored %d records from invalid input, want 0", got)
	}
	if notified.Load() != 0 {
		t.Errorf("listeners notified %d times for no-op updates, want 0", notified.Load())
	}
}

func TestStore_OnChangeNotifiesAndUnregisters(t *testing.T) {
	s := New(DefaultConfig(), nil, nil, nil, nil)

	var mu sync.Mutex
	var batches [][]model.TickerRecord
	unregister := s.OnChange(func(records []model.TickerRecord) {
		mu.Lock()
		batches = append(batches, records)
		mu.Unlock()
	})

	s.Update([]model.TickerRecord{record("BTC", 50000, 1.0, 1, model.SourceStream)})

	mu.Lock()
	count := len(batches)
	mu.Unlock()
	if count != 1 {
		t.Fatalf("notifications = %d, want 1", count)
	}

	unregister()
	unregister() // Idempotent

	s.Update([]model.TickerRecord{record("ETH", 3000, 2.0, 1, model.SourceStream)})

	mu.Lock()
	after := len(batches)
	mu.Unlock()
	if after != 1 {
		t.Errorf("notifications after unregister = %d, want 1", after)
	}
}

func TestStore_InitializeRestoresSnapshot(t *testing.T) {
	snap := snapshot.NewMemory()
	seed := []model.TickerRecord{record("BTC", 48000, 0.8, 123, model.SourceStream)}
	if err := snap.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	s := New(DefaultConfig(), nil, nil, snap, nil)
	teardown := s.Initialize()
	defer teardown()

	got, ok := s.GetTicker("BTC")
	if !ok {
		t.Fatal("snapshot record not restored")
	}
	if got.Price != 48000 || got.LastUpdate != 123 {
		t.Errorf("restored record = %+v, want the persisted one", got)
	}
}

func TestStore_UpdatePersistsMergedTable(t *testing.T) {
	snap := snapshot.NewMemory()
	s := New(DefaultConfig(), nil, nil, snap, nil)
	teardown := s.Initialize()
	defer teardown()

	s.Update([]model.TickerRecord{record("BTC", 50000, 1.0, 1, model.SourceStream)})

	if !waitFor(t, time.Second, func() bool {
		records, _ := snap.Load(context.Background())
		return len(records) == 1 && records[0].Symbol == "BTC"
	}) {
		t.Error("merged table never persisted")
	}
}

func TestStore_LifecycleWiresSources(t *testing.T) {
	fs := &fakeStream{}
	fr := &fakeRates{records: []model.TickerRecord{record("USDEUR", 0.92, 0, 1, model.SourcePollFX)}}

	s := New(Config{FXPollInterval: 10 * time.Millisecond}, fs, fr, nil, nil)
	teardown := s.Initialize()

	// Stream connected and FX polled at least once.
	if !waitFor(t, time.Second, func() bool {
		fs.mu.Lock()
		connected := fs.connects == 1
		fs.mu.Unlock()
		return connected && fr.fetches.Load() >= 1
	}) {
		t.Fatal("sources not started by Initialize")
	}

	if _, ok := s.GetTicker("USDEUR"); !ok {
		t.Error("polled record not merged")
	}

	teardown()

	fs.mu.Lock()
	disconnects := fs.disconnects
	fs.mu.Unlock()
	if disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", disconnects)
	}

	// Polling stops after cleanup.
	time.Sleep(30 * time.Millisecond)
	before := fr.fetches.Load()
	time.Sleep(50 * time.Millisecond)
	if after := fr.fetches.Load(); after != before {
		t.Errorf("polling continued after Cleanup: %d -> %d", before, after)
	}

	// Cleanup is idempotent.
	s.Cleanup()
}

func TestStore_SourcesDoNotClobberEachOther(t *testing.T) {
	fs := &fakeStream{}
	fr := &fakeRates{records: []model.TickerRecord{record("USDEUR", 0.92, 0.1, 10, model.SourcePollFX)}}

	s := New(Config{FXPollInterval: 10 * time.Millisecond}, fs, fr, nil, nil)
	teardown := s.Initialize()
	defer teardown()

	btc := model.TickerRecord{Symbol: "BTC", Price: 50000, Change: 500, ChangePercent: 1.0, LastUpdate: 20, Source: model.SourceStream}
	fs.emit([]model.TickerRecord{btc})

	got, ok := s.GetTicker("BTC")
	if !ok {
		t.Fatal("streamed record missing")
	}
	if got != btc {
		t.Errorf("GetTicker(BTC) = %+v, want %+v", got, btc)
	}

	// Concurrent FX polling never touches the BTC entry.
	if !waitFor(t, time.Second, func() bool { return fr.fetches.Load() >= 3 }) {
		t.Fatal("FX polling did not run")
	}
	got, _ = s.GetTicker("BTC")
	if got != btc {
		t.Errorf("FX updates clobbered BTC: %+v", got)
	}
	if _, ok := s.GetTicker("USDEUR"); !ok {
		t.Error("USDEUR missing")
	}
}

func TestStore_InitializeTwiceWarnsAndKeepsRunning(t *testing.T) {
	s := New(DefaultConfig(), nil, nil, nil, nil)
	teardown := s.Initialize()
	defer teardown()

	teardown2 := s.Initialize()
	if teardown2 == nil {
		t.Fatal("second Initialize returned nil teardown")
	}

	s.Update([]model.TickerRecord{record("BTC", 50000, 1.0, 1, model.SourceStream)})
	if _, ok := s.GetTicker("BTC"); !ok {
		t.Error("store stopped working after duplicate Initialize")
	}
}
