// Package callback decodes the raw result bytes the computation cluster hands
// back for a finished computation.
//
// The byte layouts are a wire contract with the cluster and are reproduced
// bit-exactly:
//
//	wrap (80 bytes)
//	  [0:32)    encryption pubkey
//	  [32:48)   nonce, little-endian u128
//	  [48:80)   ciphertext
//
//	transfer (161 bytes)
//	  [0]       success flag, 0 or 1
//	  [1:33)    sender pubkey (unchanged, ignored)
//	  [33:49)   sender nonce, little-endian u128
//	  [49:81)   sender ciphertext
//	  [81:113)  receiver pubkey (unchanged, ignored)
//	  [113:129) receiver nonce, little-endian u128
//	  [129:161) receiver ciphertext
package callback

import (
	"fmt"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
	"github.com/i5heu/ouroboros-ledger/pkg/computation"
)

const (
	WrapPubKeyStart     = 0
	WrapNonceStart      = WrapPubKeyStart + balance.PubKeySize
	WrapCiphertextStart = WrapNonceStart + balance.NonceSize
	// WrapSize is the exact length of a wrap result.
	WrapSize = WrapCiphertextStart + balance.CiphertextSize
)

const (
	TransferFlag = 0

	// encSize is one encrypted output: pubkey, nonce, ciphertext.
	encSize = balance.PubKeySize + balance.NonceSize + balance.CiphertextSize

	TransferSenderStart           = TransferFlag + 1
	TransferSenderNonceStart      = TransferSenderStart + balance.PubKeySize
	TransferSenderCiphertextStart = TransferSenderNonceStart + balance.NonceSize

	TransferReceiverStart           = TransferSenderStart + encSize
	TransferReceiverNonceStart      = TransferReceiverStart + balance.PubKeySize
	TransferReceiverCiphertextStart = TransferReceiverNonceStart + balance.NonceSize

	// TransferSize is the exact length of a transfer result.
	TransferSize = TransferReceiverStart + encSize
)

const (
	flagFailure byte = 0
	flagSuccess byte = 1
)

// Result is the decoded output of one computation. It is either a WrapResult
// or a TransferResult.
type Result interface {
	Kind() computation.Kind
}

// WrapResult is always a valid balance: wrap has no arithmetic failure branch.
type WrapResult struct {
	EncryptionPubKey balance.PubKey
	Nonce            balance.Nonce
	Ciphertext       balance.Ciphertext
}

func (WrapResult) Kind() computation.Kind { return computation.KindWrap }

// Balance returns the result as a full record.
func (w WrapResult) Balance() balance.EncryptedBalance {
	return balance.EncryptedBalance{
		Ciphertext:       w.Ciphertext,
		Nonce:            w.Nonce,
		EncryptionPubKey: w.EncryptionPubKey,
	}
}

// EncryptedU64 is an updated balance without its (unchanged) pubkey.
type EncryptedU64 struct {
	Nonce      balance.Nonce
	Ciphertext balance.Ciphertext
}

// TransferResult reports whether the transfer went through. Sender and
// Receiver are only populated on success; Success=false means insufficient
// funds and no balance changed.
type TransferResult struct {
	Success  bool
	Sender   EncryptedU64
	Receiver EncryptedU64
}

func (TransferResult) Kind() computation.Kind { return computation.KindTransfer }

// Decode parses raw as the result of a computation of the given kind.
func Decode(kind computation.Kind, raw []byte) (Result, error) { // AC
	switch kind {
	case computation.KindWrap:
		return DecodeWrap(raw)
	case computation.KindTransfer:
		return DecodeTransfer(raw)
	default:
		return nil, fmt.Errorf("%w: unknown kind %s", computation.ErrMalformedCallback, kind)
	}
}

func DecodeWrap(raw []byte) (WrapResult, error) { // A
	var out WrapResult
	if len(raw) != WrapSize {
		return out, fmt.Errorf("%w: wrap result is %d bytes, want %d", computation.ErrMalformedCallback, len(raw), WrapSize)
	}
	copy(out.EncryptionPubKey[:], raw[WrapPubKeyStart:WrapNonceStart])
	nonce, err := balance.NonceFromLE(raw[WrapNonceStart:WrapCiphertextStart])
	if err != nil {
		return out, fmt.Errorf("%w: %v", computation.ErrMalformedCallback, err)
	}
	out.Nonce = nonce
	copy(out.Ciphertext[:], raw[WrapCiphertextStart:WrapSize])
	return out, nil
}

func DecodeTransfer(raw []byte) (TransferResult, error) { // A
	var out TransferResult
	if len(raw) != TransferSize {
		return out, fmt.Errorf("%w: transfer result is %d bytes, want %d", computation.ErrMalformedCallback, len(raw), TransferSize)
	}
	switch raw[TransferFlag] {
	case flagFailure:
		return out, nil
	case flagSuccess:
	default:
		return out, fmt.Errorf("%w: transfer flag %d", computation.ErrMalformedCallback, raw[TransferFlag])
	}

	sender, err := decodeEncrypted(raw[TransferSenderNonceStart:TransferReceiverStart])
	if err != nil {
		return out, err
	}
	receiver, err := decodeEncrypted(raw[TransferReceiverNonceStart:TransferSize])
	if err != nil {
		return out, err
	}
	return TransferResult{Success: true, Sender: sender, Receiver: receiver}, nil
}

// decodeEncrypted reads nonce | ciphertext.
func decodeEncrypted(b []byte) (EncryptedU64, error) {
	var out EncryptedU64
	nonce, err := balance.NonceFromLE(b[:balance.NonceSize])
	if err != nil {
		return out, fmt.Errorf("%w: %v", computation.ErrMalformedCallback, err)
	}
	out.Nonce = nonce
	copy(out.Ciphertext[:], b[balance.NonceSize:])
	return out, nil
}
