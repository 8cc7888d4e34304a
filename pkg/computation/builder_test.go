package computation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

func testOwner(b byte) balance.Owner { // A
	var o balance.Owner
	o[0] = b
	return o
}

func testBalance(ct, pk byte, nonce uint64) *balance.EncryptedBalance { // A
	b := &balance.EncryptedBalance{Nonce: balance.NewNonce(nonce)}
	b.Ciphertext[0] = ct
	b.EncryptionPubKey[0] = pk
	return b
}

func TestBuildWrap(t *testing.T) { // A
	pk := balance.PubKey{7}
	req, err := BuildWrap(testOwner(1), 100, pk, balance.NewNonce(9))
	require.NoError(t, err)

	assert.Equal(t, KindWrap, req.Kind)
	require.Len(t, req.Args, 3)
	assert.Equal(t, PlaintextU64(100), req.Args[WrapArgAmount])
	assert.Equal(t, ArcisPubkey(pk), req.Args[WrapArgPubKey])
	assert.True(t, req.Args[WrapArgNonce].U128.Equal(balance.NewNonce(9)))
	assert.Equal(t, []CallbackAccount{{Owner: testOwner(1), Writable: true}}, req.CallbackAccounts)
	assert.NoError(t, req.Validate())
}

func TestBuildWrapRejects(t *testing.T) { // A
	_, err := BuildWrap(testOwner(1), 0, balance.PubKey{7}, balance.NewNonce(0))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = BuildWrap(balance.Owner{}, 1, balance.PubKey{7}, balance.NewNonce(0))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = BuildWrap(testOwner(1), 1, balance.PubKey{}, balance.NewNonce(0))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBuildTransfer(t *testing.T) { // A
	s := testBalance(1, 2, 3)
	r := testBalance(4, 5, 6)
	req, err := BuildTransfer(testOwner(1), s, testOwner(2), r, 40)
	require.NoError(t, err)

	want := []Argument{
		ArcisPubkey(s.EncryptionPubKey),
		PlaintextU128(s.Nonce),
		EncryptedU64(s.Ciphertext),
		ArcisPubkey(r.EncryptionPubKey),
		PlaintextU128(r.Nonce),
		EncryptedU64(r.Ciphertext),
		PlaintextU64(40),
	}
	assert.Equal(t, want, req.Args)
	assert.Equal(t, []balance.Owner{testOwner(1), testOwner(2)}, req.WritableOwners())

	sn, rn, err := req.TransferInputNonces()
	require.NoError(t, err)
	assert.True(t, sn.Equal(balance.NewNonce(3)))
	assert.True(t, rn.Equal(balance.NewNonce(6)))
}

func TestBuildTransferRejects(t *testing.T) { // A
	s := testBalance(1, 2, 3)
	r := testBalance(4, 5, 6)
	cases := map[string]func() error{
		"zero amount": func() error {
			_, err := BuildTransfer(testOwner(1), s, testOwner(2), r, 0)
			return err
		},
		"missing sender": func() error {
			_, err := BuildTransfer(testOwner(1), nil, testOwner(2), r, 1)
			return err
		},
		"missing receiver": func() error {
			_, err := BuildTransfer(testOwner(1), s, testOwner(2), nil, 1)
			return err
		},
		"self transfer": func() error {
			_, err := BuildTransfer(testOwner(1), s, testOwner(1), s, 1)
			return err
		},
		"no pubkey": func() error {
			_, err := BuildTransfer(testOwner(1), &balance.EncryptedBalance{}, testOwner(2), r, 1)
			return err
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, fn(), ErrInvalidArgument)
		})
	}
}

func TestValidateShape(t *testing.T) { // A
	req, err := BuildWrap(testOwner(1), 1, balance.PubKey{1}, balance.NewNonce(0))
	require.NoError(t, err)

	req.Args[0], req.Args[1] = req.Args[1], req.Args[0]
	assert.ErrorIs(t, req.Validate(), ErrInvalidArgument)

	req.Kind = KindTransfer
	assert.ErrorIs(t, req.Validate(), ErrInvalidArgument)

	_, _, err = req.TransferInputNonces()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestValidateRejectsReadOnlyAccounts(t *testing.T) { // A
	wrap, err := BuildWrap(testOwner(1), 1, balance.PubKey{1}, balance.NewNonce(0))
	require.NoError(t, err)
	transfer, err := BuildTransfer(testOwner(1), testBalance(1, 1, 1), testOwner(2), testBalance(2, 2, 1), 1)
	require.NoError(t, err)

	cases := map[string]struct {
		req Request
		idx int
	}{
		"wrap owner":        {wrap, 0},
		"transfer sender":   {transfer, 0},
		"transfer receiver": {transfer, 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := tc.req
			req.CallbackAccounts = append([]CallbackAccount(nil), tc.req.CallbackAccounts...)
			req.CallbackAccounts[tc.idx].Writable = false

			assert.ErrorIs(t, req.Validate(), ErrInvalidArgument)
			_, err := MarshalRequest(req)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestDefinitionOffset(t *testing.T) { // A
	wrap := DefinitionOffset(KindWrap)
	transfer := DefinitionOffset(KindTransfer)
	assert.NotEqual(t, wrap, transfer)
	assert.Equal(t, wrap, DefinitionOffset(KindWrap))

	k, err := ParseKind("transfer")
	require.NoError(t, err)
	assert.Equal(t, KindTransfer, k)
	_, err = ParseKind("unwrap")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
