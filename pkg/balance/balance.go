// Package balance defines the encrypted balance record kept per owner and its
// fixed 80-byte persisted layout.
//
// A record holds a ciphertext that only the holder of the matching key share
// can read, the nonce it was encrypted under, and the x25519 public key of the
// owner. The three fields always travel together; see Record and Mutation
// handling in internal/balancestore.
package balance

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

const (
	// OwnerSize is the length of an owner identity.
	OwnerSize = 32
	// CiphertextSize is the length of an encrypted u64 balance.
	CiphertextSize = 32
	// PubKeySize is the length of an x25519 encryption public key.
	PubKeySize = 32
	// NonceSize is the length of a little-endian u128 nonce.
	NonceSize = 16
)

// Owner identifies the holder of an encrypted balance.
type Owner [OwnerSize]byte

// Ciphertext is an opaque encrypted integer balance.
type Ciphertext [CiphertextSize]byte

// PubKey is the public key a ciphertext is encrypted under.
type PubKey [PubKeySize]byte

func (o Owner) String() string { // H
	return hex.EncodeToString(o[:])
}

// Compare orders owners by their raw bytes. Multi-owner locking relies on
// this order.
func (o Owner) Compare(other Owner) int { // A
	return bytes.Compare(o[:], other[:])
}

// IsZero reports whether o is the all-zero identity, which is never a valid
// owner.
func (o Owner) IsZero() bool { // A
	return o == Owner{}
}

// OwnerFromHex parses a 64 character hex owner identity.
func OwnerFromHex(s string) (Owner, error) { // A
	var o Owner
	raw, err := hex.DecodeString(s)
	if err != nil {
		return o, fmt.Errorf("decode owner: %w", err)
	}
	if len(raw) != OwnerSize {
		return o, fmt.Errorf("owner must be %d bytes, got %d", OwnerSize, len(raw))
	}
	copy(o[:], raw)
	return o, nil
}

func (c Ciphertext) String() string { // A
	return hex.EncodeToString(c[:])
}

func (p PubKey) String() string { // A
	return hex.EncodeToString(p[:])
}

// IsZero reports whether the key is unset.
func (p PubKey) IsZero() bool { // A
	return p == PubKey{}
}

// EncryptedBalance is the ledger state of one owner.
type EncryptedBalance struct {
	Ciphertext       Ciphertext
	Nonce            Nonce
	EncryptionPubKey PubKey
}

// Equal compares all three fields.
func (b EncryptedBalance) Equal(other EncryptedBalance) bool { // A
	return b.Ciphertext == other.Ciphertext &&
		b.Nonce.Equal(other.Nonce) &&
		b.EncryptionPubKey == other.EncryptionPubKey
}
