// Package balancestore persists one EncryptedBalance per owner in badger.
//
// Writes replace all three fields of a record inside one badger transaction,
// so readers observe either the old or the new triple. Apply extends this to
// several owners at once, which is what a successful transfer settlement
// needs.
package balancestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/i5heu/ouroboros-ledger/internal/kv"
	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

const keyPrefix = "balance/"

// ErrNonceMismatch is returned when a mutation's ExpectNonce does not match the
// stored nonce.
var ErrNonceMismatch = errors.New("balancestore: stored nonce does not match expectation")

const (
	logKeyOwner = "owner"
	logKeyNonce = "nonce"
)

// Mutation is a pending write to one owner's record.
//
// With EncryptionPubKey set the mutation is a full upsert and may create the
// record. Without it only Nonce and Ciphertext are replaced and the stored key
// is preserved; the record must already exist.
type Mutation struct {
	Owner            balance.Owner
	Nonce            balance.Nonce
	Ciphertext       balance.Ciphertext
	EncryptionPubKey *balance.PubKey
	// ExpectNonce, when set, makes the mutation conditional on the stored
	// nonce still being this value.
	ExpectNonce *balance.Nonce
}

// Record pairs an owner with its balance.
type Record struct {
	Owner   balance.Owner
	Balance balance.EncryptedBalance
}

type Store struct {
	kv    *kv.KV
	log   *slog.Logger
	locks *ownerLocks
}

func New(db *kv.KV, logger *slog.Logger) *Store { // A
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:    db,
		log:   logger,
		locks: newOwnerLocks(),
	}
}

func recordKey(owner balance.Owner) []byte {
	return append([]byte(keyPrefix), owner[:]...)
}

// Get returns the owner's balance and whether it exists.
func (s *Store) Get(
	ctx context.Context,
	owner balance.Owner,
) (balance.EncryptedBalance, bool, error) { // A
	raw, err := s.kv.Get(recordKey(owner))
	if errors.Is(err, kv.ErrNotFound) {
		return balance.EncryptedBalance{}, false, nil
	}
	if err != nil {
		return balance.EncryptedBalance{}, false, fmt.Errorf("read balance %s: %w", owner, err)
	}
	b, err := balance.UnmarshalRecord(raw)
	if err != nil {
		return balance.EncryptedBalance{}, false, fmt.Errorf("owner %s: %w", owner, err)
	}
	return b, true, nil
}

// Upsert replaces the owner's full record, creating it if needed.
func (s *Store) Upsert(
	ctx context.Context,
	owner balance.Owner,
	b balance.EncryptedBalance,
) error { // A
	pk := b.EncryptionPubKey
	return s.Apply(ctx, Mutation{
		Owner:            owner,
		Nonce:            b.Nonce,
		Ciphertext:       b.Ciphertext,
		EncryptionPubKey: &pk,
	})
}

// Apply writes all mutations as one unit. If any mutation violates a record
// invariant nothing is written.
func (s *Store) Apply(ctx context.Context, muts ...Mutation) error { // AC
	if len(muts) == 0 {
		return nil
	}
	owners := make([]balance.Owner, len(muts))
	for i, m := range muts {
		if m.Owner.IsZero() {
			return fmt.Errorf("mutation %d: zero owner", i)
		}
		owners[i] = m.Owner
	}

	unlock := s.locks.lock(owners...)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.kv.Update(func(txn *badger.Txn) error {
		// staged holds records written earlier in this transaction so two
		// mutations of the same owner compose.
		staged := make(map[balance.Owner]balance.EncryptedBalance, len(muts))
		for _, m := range muts {
			current, exists, err := readTxn(txn, m.Owner, staged)
			if err != nil {
				return err
			}
			next, err := applyMutation(current, exists, m)
			if err != nil {
				return fmt.Errorf("owner %s: %w", m.Owner, err)
			}
			if err := txn.Set(recordKey(m.Owner), balance.MarshalRecord(next)); err != nil {
				return err
			}
			staged[m.Owner] = next
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, m := range muts {
		s.log.DebugContext(ctx, "balance written", logKeyOwner, m.Owner.String(), logKeyNonce, m.Nonce.String())
	}
	return nil
}

func readTxn(
	txn *badger.Txn,
	owner balance.Owner,
	staged map[balance.Owner]balance.EncryptedBalance,
) (balance.EncryptedBalance, bool, error) { // A
	if b, ok := staged[owner]; ok {
		return b, true, nil
	}
	raw, err := kv.GetTxn(txn, recordKey(owner))
	if errors.Is(err, kv.ErrNotFound) {
		return balance.EncryptedBalance{}, false, nil
	}
	if err != nil {
		return balance.EncryptedBalance{}, false, err
	}
	b, err := balance.UnmarshalRecord(raw)
	return b, err == nil, err
}

func applyMutation(
	current balance.EncryptedBalance,
	exists bool,
	m Mutation,
) (balance.EncryptedBalance, error) { // AC
	if !exists {
		if m.EncryptionPubKey == nil || m.ExpectNonce != nil {
			return current, balance.ErrNotInitialized
		}
		return balance.EncryptedBalance{
			Ciphertext:       m.Ciphertext,
			Nonce:            m.Nonce,
			EncryptionPubKey: *m.EncryptionPubKey,
		}, nil
	}

	if m.ExpectNonce != nil && !m.ExpectNonce.Equal(current.Nonce) {
		return current, ErrNonceMismatch
	}
	if m.EncryptionPubKey != nil && *m.EncryptionPubKey != current.EncryptionPubKey {
		return current, balance.ErrPubKeyImmutable
	}
	if m.Ciphertext != current.Ciphertext && m.Nonce.Equal(current.Nonce) {
		return current, balance.ErrStaleNonce
	}
	return balance.EncryptedBalance{
		Ciphertext:       m.Ciphertext,
		Nonce:            m.Nonce,
		EncryptionPubKey: current.EncryptionPubKey,
	}, nil
}

// List returns every stored record.
func (s *Store) List(ctx context.Context) ([]Record, error) { // A
	items, err := s.kv.GetItemsWithPrefix([]byte(keyPrefix))
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		var owner balance.Owner
		copy(owner[:], item[0][len(keyPrefix):])
		b, err := balance.UnmarshalRecord(item[1])
		if err != nil {
			return nil, fmt.Errorf("owner %s: %w", owner, err)
		}
		out = append(out, Record{Owner: owner, Balance: b})
	}
	return out, nil
}
