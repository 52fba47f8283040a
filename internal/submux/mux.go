package submux

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DaveXRouz/Bental-sub004/internal/model"
)

// FetchFunc produces the current records for a symbol set. It must not
// panic and should honor the context deadline; returning an empty batch
// is fine.
type FetchFunc func(ctx context.Context, symbols []string) []model.TickerRecord

// Callback receives record batches for one subscription.
type Callback func(records []model.TickerRecord)

// Config holds multiplexer settings.
type Config struct {
	PollInterval time.Duration // Cadence of the shared per-key loops
	FetchTimeout time.Duration // Deadline for a single fetch
}

// Mux coalesces identical symbol sets into shared polling loops.
type Mux struct {
	cfg    Config
	fetch  FetchFunc
	logger *slog.Logger

	mu   sync.Mutex
	keys map[string]*keyState
}

// keyState is the shared loop for one distinct symbol set.
type keyState struct {
	symbols   []string
	callbacks map[uuid.UUID]Callback
	cancel    context.CancelFunc
}

// Stats describes the multiplexer's current load.
type Stats struct {
	ActiveKeys  int
	Subscribers int
}

// New creates a multiplexer driving fetch on behalf of subscribers.
func New(cfg Config, fetch FetchFunc, logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mux{
		cfg:    cfg,
		fetch:  fetch,
		logger: logger,
		keys:   make(map[string]*keyState),
	}
}

// Subscribe registers a callback for a symbol set and returns its
// unsubscribe function. The first subscriber for a key starts the
// shared loop; every subscriber gets an immediate replay of current
// data before any tick delivery. The returned function is idempotent.
func (m *Mux) Subscribe(symbols []string, cb Callback) func() {
	key, canonical := subscriptionKey(symbols)
	if key == "" || cb == nil {
		return func() {}
	}

	m.mu.Lock()
	ks, ok := m.keys[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		ks = &keyState{
			symbols:   canonical,
			callbacks: make(map[uuid.UUID]Callback),
			cancel:    cancel,
		}
		m.keys[key] = ks
		go m.loop(ctx, key, ks)
		m.logger.Debug("subscription loop started", "key", key)
	}
	m.mu.Unlock()

	// Replay-latest: deliver once before registering, so the first thing
	// this subscriber sees is never a scheduled tick.
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.FetchTimeout)
	cb(m.fetch(ctx, canonical))
	cancel()

	id := uuid.New()

	m.mu.Lock()
	// The key may have been torn down while we replayed (all other
	// subscribers left). Re-enter it from scratch.
	if current, ok := m.keys[key]; ok {
		ks = current
	} else {
		loopCtx, loopCancel := context.WithCancel(context.Background())
		ks = &keyState{
			symbols:   canonical,
			callbacks: make(map[uuid.UUID]Callback),
			cancel:    loopCancel,
		}
		m.keys[key] = ks
		go m.loop(loopCtx, key, ks)
	}
	ks.callbacks[id] = cb
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.unsubscribe(key, id)
		})
	}
}

// Stats returns the number of active keys and total subscribers.
func (m *Mux) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{ActiveKeys: len(m.keys)}
	for _, ks := range m.keys {
		s.Subscribers += len(ks.callbacks)
	}
	return s
}

// Close tears down every active loop. Pending subscriptions after Close
// start fresh loops; Close is for process shutdown, not pausing.
func (m *Mux) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, ks := range m.keys {
		ks.cancel()
		delete(m.keys, key)
	}
}

// unsubscribe removes one callback and tears the key down when it was
// the last one.
func (m *Mux) unsubscribe(key string, id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ks, ok := m.keys[key]
	if !ok {
		return
	}
	delete(ks.callbacks, id)
	if len(ks.callbacks) == 0 {
		ks.cancel()
		delete(m.keys, key)
		m.logger.Debug("subscription loop stopped", "key", key)
	}
}

// loop drives one key: fetch and fan out every tick until cancelled.
// Keys run independently, so a slow fetch for one key never delays
// delivery on another.
func (m *Mux) loop(ctx context.Context, key string, ks *keyState) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
			records := m.fetch(fetchCtx, ks.symbols)
			cancel()

			if ctx.Err() != nil {
				return
			}
			m.fanOut(ks, records)
		}
	}
}

// fanOut delivers one batch to a snapshot of the key's callbacks.
// Callbacks registered mid-replay are excluded until their replay
// delivery has happened.
func (m *Mux) fanOut(ks *keyState, records []model.TickerRecord) {
	m.mu.Lock()
	cbs := make([]Callback, 0, len(ks.callbacks))
	for _, cb := range ks.callbacks {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(records)
	}
}

// subscriptionKey derives the order-independent identity of a symbol
// set: canonicalized, deduplicated, sorted. Canonicalization strips
// anything outside [A-Z0-9], so the comma join is unambiguous.
func subscriptionKey(symbols []string) (string, []string) {
	seen := make(map[string]struct{}, len(symbols))
	canonical := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym := model.CanonicalSymbol(s)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		canonical = append(canonical, sym)
	}
	if len(canonical) == 0 {
		return "", nil
	}
	sort.Strings(canonical)
	return strings.Join(canonical, ","), canonical
}
