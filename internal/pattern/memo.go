package pattern

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/ben-ranford/reqmap/internal/chunk"
	"github.com/ben-ranford/reqmap/internal/diag"
	"github.com/ben-ranford/reqmap/internal/resolve"
)

type memoKey struct {
	identity string
	strategy LoadingStrategy
}

func (k memoKey) String() string {
	return k.strategy.String() + ":" + k.identity
}

type memoEntry struct {
	mapping     Mapping
	diagnostics []diag.Diagnostic
}

// MemoStats counts lookups served by a Memo. Shared counts callers that
// waited on a computation started by another caller.
type MemoStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Shared int64 `json:"shared"`
	Size   int   `json:"size"`
}

// Memo computes ResolveRequest at most once per (result, strategy) pair,
// however many callers ask concurrently. Diagnostics from the computation are
// replayed to every caller's sink. Failed computations are not cached. A
// caller whose context ends stops waiting without failing the others.
type Memo struct {
	cc    chunk.Context
	group singleflight.Group

	mu      sync.RWMutex
	entries map[memoKey]memoEntry

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
}

func NewMemo(cc chunk.Context) *Memo {
	return &Memo{cc: cc, entries: make(map[memoKey]memoEntry)}
}

func (m *Memo) Resolve(ctx context.Context, result resolve.Result, strategy LoadingStrategy, sink diag.Sink) (Mapping, error) {
	if !strategy.Valid() {
		return nil, &Error{Phase: PhaseResolve, Kind: KindInvalidLoadingStrategy, Detail: strategy.String()}
	}
	if sink == nil {
		sink = diag.Nop
	}
	key := memoKey{identity: resolve.Identity(result), strategy: strategy}

	if entry, ok := m.lookup(key); ok {
		m.hits.Add(1)
		return entry.replay(sink), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The shared computation outlives the caller that started it; each caller
	// stops waiting when its own ctx is done.
	flight := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key.String(), func() (any, error) {
		if entry, ok := m.lookup(key); ok {
			return entry, nil
		}
		m.misses.Add(1)
		collector := diag.NewCollector()
		mapping, err := ResolveRequest(flight, m.cc, result, strategy, collector)
		if err != nil {
			return nil, err
		}
		entry := memoEntry{mapping: mapping, diagnostics: collector.Diagnostics()}
		m.mu.Lock()
		m.entries[key] = entry
		m.mu.Unlock()
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			m.shared.Add(1)
		}
		return res.Val.(memoEntry).replay(sink), nil
	}
}

// Forget drops the cached mapping for result under strategy.
func (m *Memo) Forget(result resolve.Result, strategy LoadingStrategy) {
	key := memoKey{identity: resolve.Identity(result), strategy: strategy}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	m.group.Forget(key.String())
}

func (m *Memo) Stats() MemoStats {
	m.mu.RLock()
	size := len(m.entries)
	m.mu.RUnlock()
	return MemoStats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
		Shared: m.shared.Load(),
		Size:   size,
	}
}

func (m *Memo) lookup(key memoKey) (memoEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	return entry, ok
}

func (e memoEntry) replay(sink diag.Sink) Mapping {
	for _, d := range e.diagnostics {
		sink.Report(d)
	}
	return e.mapping
}
