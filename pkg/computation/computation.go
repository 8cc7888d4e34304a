// Package computation describes requests queued to the computation cluster:
// the computation kinds, their typed argument lists and the accounts a
// callback may write.
package computation

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

// Kind names a circuit known to the cluster.
type Kind uint8

const (
	KindWrap Kind = iota + 1
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindWrap:
		return "wrap"
	case KindTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k == KindWrap || k == KindTransfer
}

// ParseKind maps a circuit name to its Kind.
func ParseKind(name string) (Kind, error) { // A
	switch name {
	case "wrap":
		return KindWrap, nil
	case "transfer":
		return KindTransfer, nil
	default:
		return 0, fmt.Errorf("%w: unknown computation kind %q", ErrInvalidArgument, name)
	}
}

// DefinitionOffset is the identifier of the circuit definition registered with
// the cluster: the first four bytes of sha256(name), read little-endian.
func DefinitionOffset(k Kind) uint32 { // A
	sum := sha256.Sum256([]byte(k.String()))
	return binary.LittleEndian.Uint32(sum[:4])
}

// Kinds lists every supported kind in registration order.
func Kinds() []Kind { return []Kind{KindWrap, KindTransfer} }

// ArgumentType tags the variant held by an Argument.
type ArgumentType uint8

const (
	ArgPlaintextU64 ArgumentType = iota + 1
	ArgPlaintextU128
	ArgArcisPubkey
	ArgEncryptedU64
)

func (t ArgumentType) String() string {
	switch t {
	case ArgPlaintextU64:
		return "PlaintextU64"
	case ArgPlaintextU128:
		return "PlaintextU128"
	case ArgArcisPubkey:
		return "ArcisPubkey"
	case ArgEncryptedU64:
		return "EncryptedU64"
	default:
		return fmt.Sprintf("arg(%d)", uint8(t))
	}
}

// Argument is one typed circuit input. Only the field matching Type is
// meaningful.
type Argument struct {
	Type  ArgumentType
	U64   uint64
	U128  balance.Nonce
	Bytes [32]byte
}

func PlaintextU64(v uint64) Argument {
	return Argument{Type: ArgPlaintextU64, U64: v}
}

func PlaintextU128(n balance.Nonce) Argument {
	return Argument{Type: ArgPlaintextU128, U128: n}
}

func ArcisPubkey(pk balance.PubKey) Argument {
	return Argument{Type: ArgArcisPubkey, Bytes: pk}
}

func EncryptedU64(ct balance.Ciphertext) Argument {
	return Argument{Type: ArgEncryptedU64, Bytes: ct}
}

// CallbackAccount is an account the eventual callback may touch.
type CallbackAccount struct {
	Owner    balance.Owner
	Writable bool
}

// Request is a fully built computation ready for dispatch.
type Request struct {
	Kind             Kind
	Args             []Argument
	CallbackAccounts []CallbackAccount
}

// WritableOwners returns the owners the callback is allowed to mutate.
func (r Request) WritableOwners() []balance.Owner { // A
	out := make([]balance.Owner, 0, len(r.CallbackAccounts))
	for _, acc := range r.CallbackAccounts {
		if acc.Writable {
			out = append(out, acc.Owner)
		}
	}
	return out
}
