package balance

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Nonce is an unsigned 128-bit encryption nonce. The zero value is a valid
// nonce of 0.
type Nonce struct {
	v uint256.Int
}

// NewNonce returns a nonce holding x.
func NewNonce(x uint64) Nonce { // A
	var n Nonce
	n.v.SetUint64(x)
	return n
}

// NonceFromLE decodes a 16 byte little-endian nonce.
func NonceFromLE(b []byte) (Nonce, error) { // A
	var n Nonce
	if len(b) != NonceSize {
		return n, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(b))
	}
	n.v[0] = binary.LittleEndian.Uint64(b[0:8])
	n.v[1] = binary.LittleEndian.Uint64(b[8:16])
	return n, nil
}

// NonceFromDecimal parses a base 10 nonce. Values above 2^128-1 are rejected.
func NonceFromDecimal(s string) (Nonce, error) { // A
	var n Nonce
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return n, fmt.Errorf("invalid nonce %q", s)
	}
	if b.BitLen() > 128 {
		return n, fmt.Errorf("nonce %q exceeds 128 bits", s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return n, fmt.Errorf("nonce %q exceeds 128 bits", s)
	}
	n.v = *v
	return n, nil
}

// LE returns the little-endian wire form.
func (n Nonce) LE() [NonceSize]byte { // A
	var out [NonceSize]byte
	binary.LittleEndian.PutUint64(out[0:8], n.v[0])
	binary.LittleEndian.PutUint64(out[8:16], n.v[1])
	return out
}

// Next returns n+1, wrapping at 2^128.
func (n Nonce) Next() Nonce { // A
	var out Nonce
	out.v.AddUint64(&n.v, 1)
	out.v[2], out.v[3] = 0, 0
	return out
}

// Lo returns the low 64 bits.
func (n Nonce) Lo() uint64 { return n.v[0] }

// Hi returns the high 64 bits.
func (n Nonce) Hi() uint64 { return n.v[1] }

// Equal reports whether both nonces hold the same value.
func (n Nonce) Equal(other Nonce) bool {
	return n.v.Eq(&other.v)
}

func (n Nonce) String() string {
	return n.v.ToBig().String()
}
