package computation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

func TestRequestCodec(t *testing.T) { // A
	wrap, err := BuildWrap(testOwner(1), 100, balance.PubKey{3}, balance.NewNonce(1<<40))
	require.NoError(t, err)
	transfer, err := BuildTransfer(testOwner(1), testBalance(1, 2, 3), testOwner(2), testBalance(4, 5, 6), 7)
	require.NoError(t, err)

	for _, req := range []Request{wrap, transfer} {
		raw, err := MarshalRequest(req)
		require.NoError(t, err)
		got, err := UnmarshalRequest(raw)
		require.NoError(t, err)
		assert.Equal(t, req, got, req.Kind.String())
	}
}

func TestUnmarshalRequestSkipsUnknownFields(t *testing.T) { // A
	req, err := BuildWrap(testOwner(1), 5, balance.PubKey{3}, balance.NewNonce(2))
	require.NoError(t, err)
	raw, err := MarshalRequest(req)
	require.NoError(t, err)

	raw = protowire.AppendTag(raw, 99, protowire.BytesType)
	raw = protowire.AppendBytes(raw, []byte("future"))

	got, err := UnmarshalRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestUnmarshalRequestRejectsGarbage(t *testing.T) { // A
	req, err := BuildWrap(testOwner(1), 5, balance.PubKey{3}, balance.NewNonce(2))
	require.NoError(t, err)
	raw, err := MarshalRequest(req)
	require.NoError(t, err)

	_, err = UnmarshalRequest(raw[:len(raw)-3])
	assert.Error(t, err)

	_, err = UnmarshalRequest([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)

	_, err = MarshalRequest(Request{Kind: KindWrap})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
