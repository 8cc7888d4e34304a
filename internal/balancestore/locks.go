package balancestore

import (
	"slices"
	"sync"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

// ownerLocks hands out one mutex per owner. Mutexes are never removed since
// balances are never deleted either.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[balance.Owner]*sync.Mutex
}

func newOwnerLocks() *ownerLocks { // A
	return &ownerLocks{locks: make(map[balance.Owner]*sync.Mutex)}
}

func (l *ownerLocks) get(owner balance.Owner) *sync.Mutex { // A
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[owner]
	if !ok {
		m = &sync.Mutex{}
		l.locks[owner] = m
	}
	return m
}

// lock acquires every owner's mutex in ascending byte order and returns the
// matching unlock. Duplicate owners are locked once. All multi-owner paths
// must go through here so two settlements touching the same pair in opposite
// directions cannot deadlock.
func (l *ownerLocks) lock(owners ...balance.Owner) func() { // AC
	sorted := slices.Clone(owners)
	slices.SortFunc(sorted, balance.Owner.Compare)
	sorted = slices.Compact(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, o := range sorted {
		m := l.get(o)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
