package computation

import (
	"fmt"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

// Argument positions. Both the cluster and settlement read arguments by these
// indices.
const (
	WrapArgAmount = iota
	WrapArgPubKey
	WrapArgNonce
	wrapArgCount
)

const (
	TransferArgSenderPubKey = iota
	TransferArgSenderNonce
	TransferArgSenderCiphertext
	TransferArgReceiverPubKey
	TransferArgReceiverNonce
	TransferArgReceiverCiphertext
	TransferArgAmount
	transferArgCount
)

// BuildWrap assembles the request that encrypts amount for owner under pubkey.
// The callback may write only the owner's balance.
func BuildWrap(
	owner balance.Owner,
	amount uint64,
	pubkey balance.PubKey,
	nonce balance.Nonce,
) (Request, error) { // AC
	if amount == 0 {
		return Request{}, fmt.Errorf("%w: wrap amount must be positive", ErrInvalidArgument)
	}
	if owner.IsZero() {
		return Request{}, fmt.Errorf("%w: missing owner", ErrInvalidArgument)
	}
	if pubkey.IsZero() {
		return Request{}, fmt.Errorf("%w: missing encryption pubkey", ErrInvalidArgument)
	}
	return Request{
		Kind: KindWrap,
		Args: []Argument{
			PlaintextU64(amount),
			ArcisPubkey(pubkey),
			PlaintextU128(nonce),
		},
		CallbackAccounts: []CallbackAccount{
			{Owner: owner, Writable: true},
		},
	}, nil
}

// BuildTransfer assembles the request that moves amount from sender to
// receiver. No funds check happens here; the circuit decides confidentially.
// Both balances must exist, so callers pass nil for an owner without a record.
func BuildTransfer(
	senderOwner balance.Owner,
	sender *balance.EncryptedBalance,
	receiverOwner balance.Owner,
	receiver *balance.EncryptedBalance,
	amount uint64,
) (Request, error) { // AC
	switch {
	case amount == 0:
		return Request{}, fmt.Errorf("%w: transfer amount must be positive", ErrInvalidArgument)
	case senderOwner.IsZero() || receiverOwner.IsZero():
		return Request{}, fmt.Errorf("%w: missing owner", ErrInvalidArgument)
	case senderOwner == receiverOwner:
		return Request{}, fmt.Errorf("%w: sender and receiver are the same owner", ErrInvalidArgument)
	case sender == nil:
		return Request{}, fmt.Errorf("%w: sender %s has no balance", ErrInvalidArgument, senderOwner)
	case receiver == nil:
		return Request{}, fmt.Errorf("%w: receiver %s has no balance", ErrInvalidArgument, receiverOwner)
	case sender.EncryptionPubKey.IsZero() || receiver.EncryptionPubKey.IsZero():
		return Request{}, fmt.Errorf("%w: balance without encryption pubkey", ErrInvalidArgument)
	}
	return Request{
		Kind: KindTransfer,
		Args: []Argument{
			ArcisPubkey(sender.EncryptionPubKey),
			PlaintextU128(sender.Nonce),
			EncryptedU64(sender.Ciphertext),
			ArcisPubkey(receiver.EncryptionPubKey),
			PlaintextU128(receiver.Nonce),
			EncryptedU64(receiver.Ciphertext),
			PlaintextU64(amount),
		},
		CallbackAccounts: []CallbackAccount{
			{Owner: senderOwner, Writable: true},
			{Owner: receiverOwner, Writable: true},
		},
	}, nil
}

var (
	wrapShape = []ArgumentType{ArgPlaintextU64, ArgArcisPubkey, ArgPlaintextU128}

	transferShape = []ArgumentType{
		ArgArcisPubkey, ArgPlaintextU128, ArgEncryptedU64,
		ArgArcisPubkey, ArgPlaintextU128, ArgEncryptedU64,
		ArgPlaintextU64,
	}
)

// Validate checks that r has the argument and account shape of its kind.
// Requests read back from storage or the wire pass through here.
func (r Request) Validate() error { // A
	var shape []ArgumentType
	var accounts int
	switch r.Kind {
	case KindWrap:
		shape, accounts = wrapShape, 1
	case KindTransfer:
		shape, accounts = transferShape, 2
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidArgument, r.Kind)
	}
	if len(r.Args) != len(shape) {
		return fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidArgument, r.Kind, len(shape), len(r.Args))
	}
	for i, want := range shape {
		if r.Args[i].Type != want {
			return fmt.Errorf("%w: %s argument %d is %s, want %s", ErrInvalidArgument, r.Kind, i, r.Args[i].Type, want)
		}
	}
	if len(r.CallbackAccounts) != accounts {
		return fmt.Errorf("%w: %s takes %d callback accounts, got %d", ErrInvalidArgument, r.Kind, accounts, len(r.CallbackAccounts))
	}
	for i, acc := range r.CallbackAccounts {
		if !acc.Writable {
			return fmt.Errorf("%w: %s callback account %d must be writable", ErrInvalidArgument, r.Kind, i)
		}
	}
	return nil
}

// TransferInputNonces returns the sender and receiver nonces the transfer was
// computed against.
func (r Request) TransferInputNonces() (sender, receiver balance.Nonce, err error) { // A
	if r.Kind != KindTransfer || len(r.Args) != transferArgCount {
		return sender, receiver, fmt.Errorf("%w: not a transfer request", ErrInvalidArgument)
	}
	return r.Args[TransferArgSenderNonce].U128, r.Args[TransferArgReceiverNonce].U128, nil
}
