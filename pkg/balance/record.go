package balance

import "fmt"

// Persisted record layout. The order is part of the storage format and must
// not change.
const (
	recordCiphertextStart = 0
	recordNonceStart      = recordCiphertextStart + CiphertextSize
	recordPubKeyStart     = recordNonceStart + NonceSize

	// RecordSize is the length of a marshaled EncryptedBalance.
	RecordSize = recordPubKeyStart + PubKeySize
)

// MarshalRecord encodes b as ciphertext | nonce (LE) | pubkey.
func MarshalRecord(b EncryptedBalance) []byte { // A
	out := make([]byte, RecordSize)
	copy(out[recordCiphertextStart:recordNonceStart], b.Ciphertext[:])
	nonce := b.Nonce.LE()
	copy(out[recordNonceStart:recordPubKeyStart], nonce[:])
	copy(out[recordPubKeyStart:RecordSize], b.EncryptionPubKey[:])
	return out
}

// UnmarshalRecord is the inverse of MarshalRecord.
func UnmarshalRecord(data []byte) (EncryptedBalance, error) { // A
	var b EncryptedBalance
	if len(data) != RecordSize {
		return b, fmt.Errorf("%w: record is %d bytes, want %d", ErrCorruptRecord, len(data), RecordSize)
	}
	copy(b.Ciphertext[:], data[recordCiphertextStart:recordNonceStart])
	nonce, err := NonceFromLE(data[recordNonceStart:recordPubKeyStart])
	if err != nil {
		return b, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	b.Nonce = nonce
	copy(b.EncryptionPubKey[:], data[recordPubKeyStart:RecordSize])
	return b, nil
}
