package mxesim

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

// Client is the owner side of the shared encryption: it holds an x25519 key
// pair and can read balances the cluster encrypted for it. Tests use it as the
// reference decryption oracle.
type Client struct {
	privateKey [32]byte
	publicKey  balance.PubKey
	cipher     *Cipher
}

// NewClient creates a client with a fresh key pair for the cluster whose
// public key is mxePublicKey. A nil reader means crypto/rand.
func NewClient(mxePublicKey balance.PubKey, r io.Reader) (*Client, error) { // A
	if r == nil {
		r = rand.Reader
	}
	c := &Client{}
	if _, err := io.ReadFull(r, c.privateKey[:]); err != nil {
		return nil, fmt.Errorf("generate client key: %w", err)
	}
	pub, err := curve25519.X25519(c.privateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive client pubkey: %w", err)
	}
	copy(c.publicKey[:], pub)
	c.cipher, err = NewCipher(c.privateKey[:], mxePublicKey[:])
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) PublicKey() balance.PubKey { return c.publicKey }

// Decrypt returns the plaintext value of b.
func (c *Client) Decrypt(b balance.EncryptedBalance) (uint64, error) { // A
	if b.EncryptionPubKey != c.publicKey {
		return 0, fmt.Errorf("balance is encrypted for %s, not %s", b.EncryptionPubKey, c.publicKey)
	}
	return c.cipher.Decrypt(b.Ciphertext, b.Nonce)
}

// Encrypt is used by tests that need to fabricate a balance.
func (c *Client) Encrypt(v uint64, nonce balance.Nonce) (balance.EncryptedBalance, error) { // A
	ct, err := c.cipher.Encrypt(v, nonce)
	if err != nil {
		return balance.EncryptedBalance{}, err
	}
	return balance.EncryptedBalance{Ciphertext: ct, Nonce: nonce, EncryptionPubKey: c.publicKey}, nil
}
