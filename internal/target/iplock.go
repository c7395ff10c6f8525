package target

import (
	"sort"
	"sync"
)

// hostLocks serializes writers that claim the same host. Combined with the
// in-transaction conflict check and the store's single connection it closes
// the window between checking a host and inserting it.
type hostLocks struct {
	mu    sync.Mutex
	locks map[string]*hostLock
}

type hostLock struct {
	mu   sync.Mutex
	refs int
}

func newHostLocks() *hostLocks {
	return &hostLocks{locks: make(map[string]*hostLock)}
}

// Lock acquires every named host in sorted order and returns the release
// func. Empty and duplicate keys are ignored.
func (h *hostLocks) Lock(hosts ...string) (unlock func()) {
	keys := make([]string, 0, len(hosts))
	seen := make(map[string]bool, len(hosts))
	for _, k := range hosts {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)

	held := make([]*hostLock, 0, len(keys))
	for _, k := range keys {
		h.mu.Lock()
		l, ok := h.locks[k]
		if !ok {
			l = &hostLock{}
			h.locks[k] = l
		}
		l.refs++
		h.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			h.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(h.locks, keys[i])
			}
			h.mu.Unlock()
		}
	}
}
