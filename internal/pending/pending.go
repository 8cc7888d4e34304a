// Package pending tracks computations that were dispatched but whose callback
// has not arrived yet. Entries are keyed by the caller-chosen offset and are
// persisted, so a restarted ledger still recognises the callbacks it is owed.
package pending

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/i5heu/ouroboros-ledger/internal/kv"
	"github.com/i5heu/ouroboros-ledger/pkg/balance"
	"github.com/i5heu/ouroboros-ledger/pkg/computation"
)

const keyPrefix = "pending/"

// ErrUnknownOffset is returned by Take for offsets that are not pending,
// either never dispatched or already resolved.
var ErrUnknownOffset = errors.New("pending: unknown offset")

// Entry is one in-flight computation.
type Entry struct {
	Offset  uint64
	Request computation.Request
}

type Registry struct {
	kv *kv.KV

	mu sync.Mutex
	// busy counts pending computations per writable owner.
	busy map[balance.Owner]int
	size int
}

func offsetKey(offset uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], offset)
	return key
}

// Open loads the entries already persisted in db.
func Open(db *kv.KV) (*Registry, error) { // A
	r := &Registry{
		kv:   db,
		busy: make(map[balance.Owner]int),
	}
	items, err := db.GetItemsWithPrefix([]byte(keyPrefix))
	if err != nil {
		return nil, fmt.Errorf("load pending computations: %w", err)
	}
	for _, item := range items {
		req, err := computation.UnmarshalRequest(item[1])
		if err != nil {
			return nil, fmt.Errorf("pending offset %d: %w", binary.BigEndian.Uint64(item[0][len(keyPrefix):]), err)
		}
		r.track(req, 1)
	}
	return r, nil
}

func (r *Registry) track(req computation.Request, delta int) {
	for _, o := range req.WritableOwners() {
		r.busy[o] += delta
		if r.busy[o] <= 0 {
			delete(r.busy, o)
		}
	}
	r.size += delta
}

// Reserve records offset as pending for req. It fails with
// computation.ErrDuplicateOffset if the offset is still pending and with
// computation.ErrAccountBusy if one of req's writable owners already has a
// pending computation.
func (r *Registry) Reserve(offset uint64, req computation.Request) error { // AC
	raw, err := computation.MarshalRequest(req)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := offsetKey(offset)
	if _, err := r.kv.Get(key); err == nil {
		return fmt.Errorf("%w: %d", computation.ErrDuplicateOffset, offset)
	} else if !errors.Is(err, kv.ErrNotFound) {
		return err
	}

	for _, o := range req.WritableOwners() {
		if r.busy[o] > 0 {
			return fmt.Errorf("%w: owner %s", computation.ErrAccountBusy, o)
		}
	}

	err = r.kv.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
	if err != nil {
		return err
	}
	r.track(req, 1)
	return nil
}

// Take removes and returns the pending entry for offset. Each offset can be
// taken once.
func (r *Registry) Take(offset uint64) (Entry, error) { // AC
	r.mu.Lock()
	defer r.mu.Unlock()

	key := offsetKey(offset)
	var req computation.Request
	err := r.kv.Update(func(txn *badger.Txn) error {
		raw, err := kv.GetTxn(txn, key)
		if errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrUnknownOffset, offset)
		}
		if err != nil {
			return err
		}
		req, err = computation.UnmarshalRequest(raw)
		if err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return Entry{}, err
	}
	r.track(req, -1)
	return Entry{Offset: offset, Request: req}, nil
}

// Release drops a reservation whose dispatch failed.
func (r *Registry) Release(offset uint64) error { // A
	_, err := r.Take(offset)
	return err
}

// Busy reports whether owner is a writable account of a pending computation.
func (r *Registry) Busy(owner balance.Owner) bool { // A
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy[owner] > 0
}

// Len returns the number of pending computations.
func (r *Registry) Len() int { // A
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
