package mxesim

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
	"github.com/i5heu/ouroboros-ledger/pkg/callback"
	"github.com/i5heu/ouroboros-ledger/pkg/computation"
)

type delivery struct {
	offset uint64
	kind   computation.Kind
	out    computation.Output
}

type recorder struct {
	mu   sync.Mutex
	seen []delivery
}

func (r *recorder) handle(_ context.Context, offset uint64, kind computation.Kind, out computation.Output) {
	r.mu.Lock()
	r.seen = append(r.seen, delivery{offset, kind, out})
	r.mu.Unlock()
}

func (r *recorder) only(t *testing.T) delivery {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.seen, 1)
	return r.seen[0]
}

func newCluster(t *testing.T) (*Cluster, *recorder) {
	t.Helper()
	c, err := New(Config{Workers: 2})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	ctx := context.Background()
	for _, k := range computation.Kinds() {
		require.NoError(t, c.RegisterDefinition(ctx, k, computation.DefinitionOffset(k)))
	}
	rec := &recorder{}
	c.Subscribe(rec.handle)
	return c, rec
}

func queue(t *testing.T, c *Cluster, offset uint64, req computation.Request) error {
	t.Helper()
	raw, err := computation.MarshalRequest(req)
	require.NoError(t, err)
	return c.Queue(context.Background(), offset, computation.DefinitionOffset(req.Kind), raw)
}

func owner(b byte) balance.Owner {
	var o balance.Owner
	o[0] = b
	return o
}

func TestCipherRoundTrip(t *testing.T) {
	c, _ := newCluster(t)
	client, err := c.NewClient()
	require.NoError(t, err)

	n := balance.NewNonce(7)
	bal, err := client.Encrypt(12345, n)
	require.NoError(t, err)
	v, err := client.Decrypt(bal)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), v)

	bal.Nonce = n.Next()
	_, err = client.Decrypt(bal)
	assert.ErrorIs(t, err, ErrUndecryptable)
}

func TestWrapProducesNextNonce(t *testing.T) {
	c, rec := newCluster(t)
	client, err := c.NewClient()
	require.NoError(t, err)

	req, err := computation.BuildWrap(owner(1), 100, client.PublicKey(), balance.NewNonce(41))
	require.NoError(t, err)
	require.NoError(t, queue(t, c, 1, req))
	c.Wait()

	d := rec.only(t)
	require.False(t, d.out.Aborted)
	res, err := callback.DecodeWrap(d.out.Bytes)
	require.NoError(t, err)
	assert.Equal(t, client.PublicKey(), res.EncryptionPubKey)
	assert.True(t, res.Nonce.Equal(balance.NewNonce(42)))
	v, err := client.Decrypt(res.Balance())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), v)
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name             string
		sender, receiver uint64
		amount           uint64
		success          bool
	}{
		{"enough funds", 100, 0, 40, true},
		{"exact funds", 40, 5, 40, true},
		{"insufficient funds", 10, 0, 40, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newCluster(t)
			a, err := c.NewClient()
			require.NoError(t, err)
			b, err := c.NewClient()
			require.NoError(t, err)
			sb, err := a.Encrypt(tt.sender, balance.NewNonce(1))
			require.NoError(t, err)
			rb, err := b.Encrypt(tt.receiver, balance.NewNonce(9))
			require.NoError(t, err)

			req, err := computation.BuildTransfer(owner(1), &sb, owner(2), &rb, tt.amount)
			require.NoError(t, err)
			require.NoError(t, queue(t, c, uint64(i), req))
			c.Wait()

			d := rec.only(t)
			require.Len(t, d.out.Bytes, callback.TransferSize)
			res, err := callback.DecodeTransfer(d.out.Bytes)
			require.NoError(t, err)
			require.Equal(t, tt.success, res.Success)
			if !tt.success {
				return
			}
			assert.True(t, res.Sender.Nonce.Equal(balance.NewNonce(2)))
			assert.True(t, res.Receiver.Nonce.Equal(balance.NewNonce(10)))
			sv, err := a.Decrypt(balance.EncryptedBalance{Ciphertext: res.Sender.Ciphertext, Nonce: res.Sender.Nonce, EncryptionPubKey: a.PublicKey()})
			require.NoError(t, err)
			rv, err := b.Decrypt(balance.EncryptedBalance{Ciphertext: res.Receiver.Ciphertext, Nonce: res.Receiver.Nonce, EncryptionPubKey: b.PublicKey()})
			require.NoError(t, err)
			assert.Equal(t, tt.sender-tt.amount, sv)
			assert.Equal(t, tt.receiver+tt.amount, rv)
		})
	}
}

func TestUndecryptableInputAborts(t *testing.T) {
	c, rec := newCluster(t)
	a, err := c.NewClient()
	require.NoError(t, err)
	sb, err := a.Encrypt(100, balance.NewNonce(1))
	require.NoError(t, err)
	rb := sb
	rb.Nonce = balance.NewNonce(2)

	req, err := computation.BuildTransfer(owner(1), &sb, owner(2), &rb, 1)
	require.NoError(t, err)
	require.NoError(t, queue(t, c, 5, req))
	c.Wait()
	assert.True(t, rec.only(t).out.Aborted)
}

func TestHoldReleaseAndAbort(t *testing.T) {
	c, rec := newCluster(t)
	client, err := c.NewClient()
	require.NoError(t, err)
	c.SetHold(true)

	for i := uint64(1); i <= 2; i++ {
		req, err := computation.BuildWrap(owner(byte(i)), i, client.PublicKey(), balance.NewNonce(0))
		require.NoError(t, err)
		require.NoError(t, queue(t, c, i, req))
	}
	assert.Equal(t, []uint64{1, 2}, c.Held())

	c.Abort(2)
	ctx := context.Background()
	require.NoError(t, c.Release(ctx, 2))
	c.Wait()
	d := rec.only(t)
	assert.Equal(t, uint64(2), d.offset)
	assert.True(t, d.out.Aborted)

	assert.ErrorIs(t, c.Release(ctx, 2), ErrNotHeld)
	require.NoError(t, c.Release(ctx))
	c.Wait()
	assert.Empty(t, c.Held())
	rec.mu.Lock()
	assert.Len(t, rec.seen, 2)
	rec.mu.Unlock()
}

func TestQueueRejections(t *testing.T) {
	c, rec := newCluster(t)
	client, err := c.NewClient()
	require.NoError(t, err)
	req, err := computation.BuildWrap(owner(1), 1, client.PublicKey(), balance.NewNonce(0))
	require.NoError(t, err)
	raw, err := computation.MarshalRequest(req)
	require.NoError(t, err)
	ctx := context.Background()

	c.SetReachable(false)
	assert.ErrorIs(t, c.Queue(ctx, 1, computation.DefinitionOffset(computation.KindWrap), raw), ErrUnreachable)
	c.SetReachable(true)

	err = c.Queue(ctx, 1, computation.DefinitionOffset(computation.KindTransfer), raw)
	assert.ErrorIs(t, err, ErrUnknownDefinition)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Queue(ctx, 1, computation.DefinitionOffset(computation.KindWrap), raw), ErrClosed)

	rec.mu.Lock()
	assert.Empty(t, rec.seen)
	rec.mu.Unlock()
}
