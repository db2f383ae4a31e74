package core

import "sync"

// keyMutex serializes check-then-act sections per stock key so that the
// negative-stock and over-reservation checks are atomic with the append.
// Movements against disjoint keys proceed in parallel. Locks are never
// evicted; the key space is bounded by products x locations.
type keyMutex struct {
	mu    sync.Mutex
	locks map[StockKey]*sync.RWMutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[StockKey]*sync.RWMutex)}
}

func (km *keyMutex) get(key StockKey) *sync.RWMutex {
	km.mu.Lock()
	defer km.mu.Unlock()
	l, ok := km.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		km.locks[key] = l
	}
	return l
}

// lock acquires write locks for all keys in their total order, so a
// transfer holding both endpoints cannot deadlock against another.
// Duplicate keys are collapsed. The returned func releases every lock.
func (km *keyMutex) lock(keys ...StockKey) (unlock func()) {
	ordered := dedupSorted(keys)
	held := make([]*sync.RWMutex, 0, len(ordered))
	for _, k := range ordered {
		l := km.get(k)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// rlock acquires a read lock for one key, giving evaluations a snapshot
// that cannot interleave with a concurrent append to the same key.
func (km *keyMutex) rlock(key StockKey) (unlock func()) {
	l := km.get(key)
	l.RLock()
	return l.RUnlock
}

func dedupSorted(keys []StockKey) []StockKey {
	out := make([]StockKey, 0, len(keys))
	for _, k := range keys {
		dup := false
		for _, seen := range out {
			if seen == k {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, k)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].less(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
