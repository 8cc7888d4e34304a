package balance

import "errors"

var (
	// ErrPubKeyImmutable rejects an update that would change the encryption
	// public key of an existing record.
	ErrPubKeyImmutable = errors.New("balance: encryption pubkey is immutable")

	// ErrStaleNonce rejects a ciphertext change that reuses the stored nonce.
	ErrStaleNonce = errors.New("balance: ciphertext changed without a fresh nonce")

	// ErrNotInitialized indicates the owner has no record yet.
	ErrNotInitialized = errors.New("balance: owner not initialized")

	// ErrCorruptRecord indicates stored bytes do not form a valid record.
	ErrCorruptRecord = errors.New("balance: corrupt record")
)
