package storage

import (
	"sort"
	"sync"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// Locks serializes transactions that touch the same records
// Transactions over disjoint handles proceed in parallel. Handles are always
// acquired in sorted order, so two overlapping acquisitions cannot deadlock.
type Locks struct {
	mu      sync.Mutex
	entries map[crypto.Pubkey]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{entries: make(map[crypto.Pubkey]*lockEntry)}
}

// Acquire blocks until every handle is held and returns the matching release func
// Duplicate handles are collapsed
func (l *Locks) Acquire(handles ...crypto.Pubkey) (release func()) {
	sorted := make([]crypto.Pubkey, len(handles))
	copy(sorted, handles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })

	unique := sorted[:0]
	for i, h := range sorted {
		if i > 0 && h == sorted[i-1] {
			continue
		}
		unique = append(unique, h)
	}

	held := make([]*lockEntry, 0, len(unique))
	for _, h := range unique {
		e := l.ref(h)
		e.mu.Lock()
		held = append(held, e)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
			}
			l.unref(unique)
		})
	}
}

func (l *Locks) ref(h crypto.Pubkey) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[h]
	if !ok {
		e = &lockEntry{}
		l.entries[h] = e
	}
	e.refs++
	return e
}

func (l *Locks) unref(handles []crypto.Pubkey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range handles {
		e := l.entries[h]
		e.refs--
		if e.refs == 0 {
			delete(l.entries, h)
		}
	}
}

// Held returns the number of handles currently locked or waited on
func (l *Locks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
