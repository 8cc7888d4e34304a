package callback

import "github.com/i5heu/ouroboros-ledger/pkg/balance"

// EncodeWrap produces the 80 byte wrap result layout.
func EncodeWrap(r WrapResult) []byte {
	out := make([]byte, WrapSize)
	copy(out[WrapPubKeyStart:WrapNonceStart], r.EncryptionPubKey[:])
	nonce := r.Nonce.LE()
	copy(out[WrapNonceStart:WrapCiphertextStart], nonce[:])
	copy(out[WrapCiphertextStart:WrapSize], r.Ciphertext[:])
	return out
}

// TransferOutput is the full circuit output of a transfer. Unlike
// TransferResult it carries the pubkey slots and is populated on failure too,
// which is what the cluster actually emits.
type TransferOutput struct {
	Success        bool
	SenderPubKey   balance.PubKey
	Sender         EncryptedU64
	ReceiverPubKey balance.PubKey
	Receiver       EncryptedU64
}

// EncodeTransfer produces the 161 byte transfer result layout.
func EncodeTransfer(o TransferOutput) []byte {
	out := make([]byte, TransferSize)
	if o.Success {
		out[TransferFlag] = flagSuccess
	}
	putEncrypted(out[TransferSenderStart:TransferReceiverStart], o.SenderPubKey, o.Sender)
	putEncrypted(out[TransferReceiverStart:TransferSize], o.ReceiverPubKey, o.Receiver)
	return out
}

func putEncrypted(dst []byte, pk balance.PubKey, e EncryptedU64) {
	copy(dst[:balance.PubKeySize], pk[:])
	nonce := e.Nonce.LE()
	copy(dst[balance.PubKeySize:balance.PubKeySize+balance.NonceSize], nonce[:])
	copy(dst[balance.PubKeySize+balance.NonceSize:], e.Ciphertext[:])
}
