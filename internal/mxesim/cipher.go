package mxesim

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/curve25519"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

// ErrUndecryptable is returned when a ciphertext does not decrypt to a u64
// under the cipher's key and the given nonce.
var ErrUndecryptable = errors.New("mxesim: ciphertext does not decrypt")

// Cipher encrypts u64 values under an x25519 shared secret. A value is laid
// out little-endian in a 32 byte block and XORed with an XChaCha20 keystream
// derived from the secret and the 16 byte nonce; the zero padding doubles as a
// key check on decryption.
type Cipher struct {
	key [32]byte
}

// NewCipher derives the shared cipher between privateKey and peerPublic.
func NewCipher(privateKey, peerPublic []byte) (*Cipher, error) { // A
	shared, err := curve25519.X25519(privateKey, peerPublic)
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}
	return &Cipher{key: sha256.Sum256(shared)}, nil
}

func (c *Cipher) stream(nonce balance.Nonce) (*chacha20.Cipher, error) {
	var xnonce [chacha20.NonceSizeX]byte
	le := nonce.LE()
	copy(xnonce[:], le[:])
	return chacha20.NewUnauthenticatedCipher(c.key[:], xnonce[:])
}

// Encrypt returns the ciphertext of v under nonce.
func (c *Cipher) Encrypt(v uint64, nonce balance.Nonce) (balance.Ciphertext, error) { // A
	var block balance.Ciphertext
	binary.LittleEndian.PutUint64(block[:8], v)
	s, err := c.stream(nonce)
	if err != nil {
		return block, err
	}
	s.XORKeyStream(block[:], block[:])
	return block, nil
}

// Decrypt recovers the value encrypted under nonce.
func (c *Cipher) Decrypt(ct balance.Ciphertext, nonce balance.Nonce) (uint64, error) { // A
	s, err := c.stream(nonce)
	if err != nil {
		return 0, err
	}
	var block balance.Ciphertext
	s.XORKeyStream(block[:], ct[:])
	for _, b := range block[8:] {
		if b != 0 {
			return 0, ErrUndecryptable
		}
	}
	return binary.LittleEndian.Uint64(block[:8]), nil
}
