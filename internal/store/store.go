package store

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/DaveXRouz/Bental-sub004/internal/model"
	"github.com/DaveXRouz/Bental-sub004/internal/snapshot"
	"github.com/DaveXRouz/Bental-sub004/internal/stream"
)

// StreamSource is the push-based feed the store drives.
type StreamSource interface {
	Connect(onData stream.OnData, onError stream.OnError)
	Disconnect()
}

// RatesSource is the pull-based feed the store drives.
type RatesSource interface {
	FetchRates(ctx context.Context) []model.TickerRecord
}

// Config holds store settings.
type Config struct {
	FXPollInterval time.Duration // Cadence of the owned FX poll loop
	LoadTimeout    time.Duration // Deadline for the one-time snapshot load
	PersistTimeout time.Duration // Deadline for each best-effort snapshot save
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FXPollInterval: 30 * time.Second,
		LoadTimeout:    5 * time.Second,
		PersistTimeout: 5 * time.Second,
	}
}

// Store holds the merged symbol→record table.
type Store struct {
	cfg      Config
	logger   *slog.Logger
	streamCl StreamSource
	rates    RatesSource
	snap     snapshot.Store // nil disables persistence

	mu      sync.RWMutex
	tickers map[string]model.TickerRecord

	listenMu     sync.Mutex
	listeners    map[int]func([]model.TickerRecord)
	nextListener int

	lifeMu      sync.Mutex
	initialized bool
	cancel      context.CancelFunc
	persistCh   chan struct{}
}

// New creates a store. Either source may be nil when the corresponding
// feed is not used.
func New(cfg Config, streamCl StreamSource, rates RatesSource, snap snapshot.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FXPollInterval == 0 {
		cfg.FXPollInterval = DefaultConfig().FXPollInterval
	}
	if cfg.LoadTimeout == 0 {
		cfg.LoadTimeout = DefaultConfig().LoadTimeout
	}
	if cfg.PersistTimeout == 0 {
		cfg.PersistTimeout = DefaultConfig().PersistTimeout
	}

	return &Store{
		cfg:       cfg,
		logger:    logger,
		streamCl:  streamCl,
		rates:     rates,
		snap:      snap,
		tickers:   make(map[string]model.TickerRecord),
		listeners: make(map[int]func([]model.TickerRecord)),
	}
}

// Initialize loads the persisted snapshot (best-effort), starts both
// feed sources wired into Update, and returns the teardown function.
// The store has one lifecycle at a time; Initialize while already
// running is a logged no-op returning the same teardown.
func (s *Store) Initialize() func() {
	s.lifeMu.Lock()
	if s.initialized {
		s.lifeMu.Unlock()
		s.logger.Warn("store already initialized")
		return s.Cleanup
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.persistCh = make(chan struct{}, 1)
	s.initialized = true
	s.lifeMu.Unlock()

	s.loadSnapshot(ctx)

	go s.persistLoop(ctx, s.persistCh)

	if s.streamCl != nil {
		s.streamCl.Connect(
			func(records []model.TickerRecord) { s.Update(records) },
			func(err error) { s.logger.Warn("stream feed error", "error", err) },
		)
	}

	if s.rates != nil {
		go s.fxLoop(ctx)
	}

	s.logger.Info("ticker store initialized")

	return s.Cleanup
}

// Cleanup disconnects the streaming source and stops the owned loops.
// It cancels rather than awaits in-flight work. Idempotent.
func (s *Store) Cleanup() {
	s.lifeMu.Lock()
	if !s.initialized {
		s.lifeMu.Unlock()
		return
	}
	s.initialized = false
	cancel := s.cancel
	s.cancel = nil
	s.lifeMu.Unlock()

	cancel()
	if s.streamCl != nil {
		s.streamCl.Disconnect()
	}

	s.logger.Info("ticker store cleaned up")
}

// Update merges a batch into the table. Last writer wins per symbol by
// call order: an incoming record always replaces the stored one, even
// when its own LastUpdate is older. Triggers an asynchronous best-effort
// persist after the merge.
func (s *Store) Update(records []model.TickerRecord) {
	if len(records) == 0 {
		return
	}

	merged := make([]model.TickerRecord, 0, len(records))
	s.mu.Lock()
	for _, r := range records {
		if r.Symbol == "" {
			continue
		}
		s.tickers[r.Symbol] = r
		merged = append(merged, r)
	}
	s.mu.Unlock()

	if len(merged) == 0 {
		return
	}

	s.notify(merged)
	s.requestPersist()
}

// GetTicker returns the current record for a symbol.
func (s *Store) GetTicker(symbol string) (model.TickerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.tickers[model.CanonicalSymbol(symbol)]
	return r, ok
}

// GetAllTickers returns every record sorted by abs(changePercent)
// descending — largest movers first. Ties break by symbol so the order
// is stable across calls.
func (s *Store) GetAllTickers() []model.TickerRecord {
	s.mu.RLock()
	out := make([]model.TickerRecord, 0, len(s.tickers))
	for _, r := range s.tickers {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := math.Abs(out[i].ChangePercent), math.Abs(out[j].ChangePercent)
		if a != b {
			return a > b
		}
		return out[i].Symbol < out[j].Symbol
	})

	return out
}

// OnChange registers a callback invoked with each merged batch. The
// returned function unregisters it and is idempotent.
func (s *Store) OnChange(cb func(records []model.TickerRecord)) func() {
	s.listenMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = cb
	s.listenMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenMu.Lock()
			delete(s.listeners, id)
			s.listenMu.Unlock()
		})
	}
}

func (s *Store) notify(records []model.TickerRecord) {
	s.listenMu.Lock()
	cbs := make([]func([]model.TickerRecord), 0, len(s.listeners))
	for _, cb := range s.listeners {
		cbs = append(cbs, cb)
	}
	s.listenMu.Unlock()

	for _, cb := range cbs {
		cb(records)
	}
}

// loadSnapshot restores the persisted table. Any failure leaves the
// store empty; it is never fatal.
func (s *Store) loadSnapshot(ctx context.Context) {
	if s.snap == nil {
		return
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.cfg.LoadTimeout)
	defer cancel()

	records, err := s.snap.Load(loadCtx)
	if err != nil {
		s.logger.Warn("snapshot load failed, starting empty", "error", err)
		return
	}

	s.mu.Lock()
	for _, r := range records {
		if r.Symbol == "" {
			continue
		}
		s.tickers[r.Symbol] = r
	}
	count := len(s.tickers)
	s.mu.Unlock()

	s.logger.Info("snapshot restored", "tickers", count)
}

// requestPersist signals the persist loop without blocking. A signal
// already pending covers this update too, since saves always write the
// full table.
func (s *Store) requestPersist() {
	s.lifeMu.Lock()
	ch := s.persistCh
	initialized := s.initialized
	s.lifeMu.Unlock()

	if !initialized || s.snap == nil {
		return
	}

	select {
	case ch <- struct{}{}:
	default:
	}
}

// persistLoop writes the full table after each merge signal. Failures
// are logged and ignored; in-memory state stays authoritative.
func (s *Store) persistLoop(ctx context.Context, signals <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			s.persist(ctx)
		}
	}
}

func (s *Store) persist(ctx context.Context) {
	s.mu.RLock()
	records := make([]model.TickerRecord, 0, len(s.tickers))
	for _, r := range s.tickers {
		records = append(records, r)
	}
	s.mu.RUnlock()

	saveCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()

	if err := s.snap.Save(saveCtx, records); err != nil {
		s.logger.Warn("snapshot save failed", "error", err, "tickers", len(records))
	}
}

// fxLoop drives the polled source: one immediate fetch, then the
// configured cadence.
func (s *Store) fxLoop(ctx context.Context) {
	s.Update(s.rates.FetchRates(ctx))

	ticker := time.NewTicker(s.cfg.FXPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Update(s.rates.FetchRates(ctx))
		}
	}
}
