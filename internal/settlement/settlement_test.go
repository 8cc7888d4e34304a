package settlement

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-ledger/internal/balancestore"
	"github.com/i5heu/ouroboros-ledger/internal/kv"
	"github.com/i5heu/ouroboros-ledger/internal/pending"
	"github.com/i5heu/ouroboros-ledger/pkg/balance"
	"github.com/i5heu/ouroboros-ledger/pkg/callback"
	"github.com/i5heu/ouroboros-ledger/pkg/computation"
)

type fixture struct {
	store   *balancestore.Store
	settler *Settler
}

func newFixture(t *testing.T) fixture { // A
	t.Helper()
	db, err := kv.Open(kv.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := balancestore.New(db, logger)
	return fixture{store: store, settler: New(store, logger)}
}

func owner(b byte) balance.Owner { // A
	var o balance.Owner
	o[0] = b
	return o
}

func wrapEntry(t *testing.T, o balance.Owner, pk balance.PubKey) pending.Entry { // A
	req, err := computation.BuildWrap(o, 100, pk, balance.NewNonce(1))
	require.NoError(t, err)
	return pending.Entry{Offset: 1, Request: req}
}

func seed(t *testing.T, f fixture, o balance.Owner, ct, pk byte, nonce uint64) balance.EncryptedBalance { // A
	b := balance.EncryptedBalance{Nonce: balance.NewNonce(nonce)}
	b.Ciphertext[0] = ct
	b.EncryptionPubKey[0] = pk
	require.NoError(t, f.store.Upsert(context.Background(), o, b))
	return b
}

func TestWrapCreatesThenTopsUp(t *testing.T) { // A
	ctx := context.Background()
	f := newFixture(t)
	pk := balance.PubKey{9}

	res := callback.WrapResult{EncryptionPubKey: pk, Nonce: balance.NewNonce(2), Ciphertext: balance.Ciphertext{1}}
	out, err := f.settler.Settle(ctx, wrapEntry(t, owner(1), pk), res)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, out)

	got, ok, err := f.store.Get(ctx, owner(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(res.Balance()))

	res2 := callback.WrapResult{EncryptionPubKey: pk, Nonce: balance.NewNonce(3), Ciphertext: balance.Ciphertext{2}}
	out, err = f.settler.Settle(ctx, wrapEntry(t, owner(1), pk), res2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeToppedUp, out)
}

func TestWrapRejectsForeignPubKey(t *testing.T) { // A
	ctx := context.Background()
	f := newFixture(t)

	res := callback.WrapResult{EncryptionPubKey: balance.PubKey{8}, Nonce: balance.NewNonce(2)}
	_, err := f.settler.Settle(ctx, wrapEntry(t, owner(1), balance.PubKey{9}), res)
	assert.ErrorIs(t, err, computation.ErrMalformedCallback)

	_, ok, err := f.store.Get(ctx, owner(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func transferEntry(t *testing.T, f fixture, s, r balance.Owner) pending.Entry { // A
	ctx := context.Background()
	sb, _, err := f.store.Get(ctx, s)
	require.NoError(t, err)
	rb, _, err := f.store.Get(ctx, r)
	require.NoError(t, err)
	req, err := computation.BuildTransfer(s, &sb, r, &rb, 40)
	require.NoError(t, err)
	return pending.Entry{Offset: 2, Request: req}
}

func TestTransferSuccessUpdatesBoth(t *testing.T) { // A
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f, owner(1), 1, 9, 1)
	seed(t, f, owner(2), 2, 8, 1)
	entry := transferEntry(t, f, owner(1), owner(2))

	res := callback.TransferResult{
		Success:  true,
		Sender:   callback.EncryptedU64{Nonce: balance.NewNonce(5), Ciphertext: balance.Ciphertext{11}},
		Receiver: callback.EncryptedU64{Nonce: balance.NewNonce(6), Ciphertext: balance.Ciphertext{12}},
	}
	out, err := f.settler.Settle(ctx, entry, res)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransferred, out)

	a, _, err := f.store.Get(ctx, owner(1))
	require.NoError(t, err)
	b, _, err := f.store.Get(ctx, owner(2))
	require.NoError(t, err)
	assert.Equal(t, balance.Ciphertext{11}, a.Ciphertext)
	assert.Equal(t, balance.PubKey{9}, a.EncryptionPubKey)
	assert.Equal(t, balance.Ciphertext{12}, b.Ciphertext)
	assert.Equal(t, balance.PubKey{8}, b.EncryptionPubKey)
}

func TestTransferFailureChangesNothing(t *testing.T) { // A
	ctx := context.Background()
	f := newFixture(t)
	before1 := seed(t, f, owner(1), 1, 9, 1)
	before2 := seed(t, f, owner(2), 2, 8, 1)
	entry := transferEntry(t, f, owner(1), owner(2))

	out, err := f.settler.Settle(ctx, entry, callback.TransferResult{Success: false})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientFunds, out)

	a, _, _ := f.store.Get(ctx, owner(1))
	b, _, _ := f.store.Get(ctx, owner(2))
	assert.Equal(t, balance.MarshalRecord(before1), balance.MarshalRecord(a))
	assert.Equal(t, balance.MarshalRecord(before2), balance.MarshalRecord(b))
}

func TestTransferOnStaleInputs(t *testing.T) { // A
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f, owner(1), 1, 9, 1)
	seed(t, f, owner(2), 2, 8, 1)
	entry := transferEntry(t, f, owner(1), owner(2))

	// the receiver moves on before the callback lands
	moved := seed(t, f, owner(2), 3, 8, 2)

	res := callback.TransferResult{
		Success:  true,
		Sender:   callback.EncryptedU64{Nonce: balance.NewNonce(5), Ciphertext: balance.Ciphertext{11}},
		Receiver: callback.EncryptedU64{Nonce: balance.NewNonce(6), Ciphertext: balance.Ciphertext{12}},
	}
	_, err := f.settler.Settle(ctx, entry, res)
	assert.ErrorIs(t, err, computation.ErrStaleComputation)

	a, _, _ := f.store.Get(ctx, owner(1))
	b, _, _ := f.store.Get(ctx, owner(2))
	assert.Equal(t, balance.Ciphertext{1}, a.Ciphertext)
	assert.True(t, b.Equal(moved))
}

func TestKindMismatch(t *testing.T) { // A
	f := newFixture(t)
	_, err := f.settler.Settle(context.Background(), wrapEntry(t, owner(1), balance.PubKey{9}), callback.TransferResult{})
	assert.ErrorIs(t, err, computation.ErrMalformedCallback)

	_, err = f.settler.Settle(context.Background(), wrapEntry(t, owner(1), balance.PubKey{9}), nil)
	assert.ErrorIs(t, err, computation.ErrMalformedCallback)
}

func TestReadOnlyAccountNeverWritten(t *testing.T) { // A
	ctx := context.Background()
	f := newFixture(t)
	pk := balance.PubKey{9}
	entry := wrapEntry(t, owner(1), pk)
	entry.Request.CallbackAccounts = []computation.CallbackAccount{{Owner: owner(1)}}

	res := callback.WrapResult{EncryptionPubKey: pk, Nonce: balance.NewNonce(2), Ciphertext: balance.Ciphertext{1}}
	_, err := f.settler.Settle(ctx, entry, res)
	assert.ErrorIs(t, err, computation.ErrInvalidArgument)

	_, ok, err := f.store.Get(ctx, owner(1))
	require.NoError(t, err)
	assert.False(t, ok)
}
