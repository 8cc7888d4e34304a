package computation

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

// Field numbers of the request wire format. The layout is protobuf compatible
// so a cluster written in any language can parse it with a generic decoder:
//
//	message Request         { uint32 kind = 1; repeated Argument args = 2; repeated CallbackAccount accounts = 3; }
//	message Argument        { uint32 type = 1; uint64 u64 = 2; bytes u128_le = 3; bytes data = 4; }
//	message CallbackAccount { bytes owner = 1; bool writable = 2; }
const (
	fieldRequestKind     protowire.Number = 1
	fieldRequestArgs     protowire.Number = 2
	fieldRequestAccounts protowire.Number = 3

	fieldArgType  protowire.Number = 1
	fieldArgU64   protowire.Number = 2
	fieldArgU128  protowire.Number = 3
	fieldArgBytes protowire.Number = 4

	fieldAccountOwner    protowire.Number = 1
	fieldAccountWritable protowire.Number = 2
)

// MarshalRequest encodes r for the cluster queue and the pending registry.
func MarshalRequest(r Request) ([]byte, error) { // A
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var b []byte
	b = protowire.AppendTag(b, fieldRequestKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Kind))
	for _, arg := range r.Args {
		b = protowire.AppendTag(b, fieldRequestArgs, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalArgument(arg))
	}
	for _, acc := range r.CallbackAccounts {
		b = protowire.AppendTag(b, fieldRequestAccounts, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalAccount(acc))
	}
	return b, nil
}

func marshalArgument(arg Argument) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldArgType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(arg.Type))
	switch arg.Type {
	case ArgPlaintextU64:
		b = protowire.AppendTag(b, fieldArgU64, protowire.VarintType)
		b = protowire.AppendVarint(b, arg.U64)
	case ArgPlaintextU128:
		le := arg.U128.LE()
		b = protowire.AppendTag(b, fieldArgU128, protowire.BytesType)
		b = protowire.AppendBytes(b, le[:])
	case ArgArcisPubkey, ArgEncryptedU64:
		b = protowire.AppendTag(b, fieldArgBytes, protowire.BytesType)
		b = protowire.AppendBytes(b, arg.Bytes[:])
	}
	return b
}

func marshalAccount(acc CallbackAccount) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldAccountOwner, protowire.BytesType)
	b = protowire.AppendBytes(b, acc.Owner[:])
	b = protowire.AppendTag(b, fieldAccountWritable, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(acc.Writable))
	return b
}

// UnmarshalRequest decodes and validates a request. Unknown fields are
// skipped.
func UnmarshalRequest(data []byte) (Request, error) { // A
	var r Request
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldRequestKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return n, nil
			}
			r.Kind = Kind(v)
			return n, nil
		case num == fieldRequestArgs && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			arg, err := unmarshalArgument(v)
			if err != nil {
				return 0, err
			}
			r.Args = append(r.Args, arg)
			return n, nil
		case num == fieldRequestAccounts && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			acc, err := unmarshalAccount(v)
			if err != nil {
				return 0, err
			}
			r.CallbackAccounts = append(r.CallbackAccounts, acc)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

func unmarshalArgument(data []byte) (Argument, error) {
	var arg Argument
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldArgType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			arg.Type = ArgumentType(v)
			return n, nil
		case num == fieldArgU64 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			arg.U64 = v
			return n, nil
		case num == fieldArgU128 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			nonce, err := balance.NonceFromLE(v)
			if err != nil {
				return 0, err
			}
			arg.U128 = nonce
			return n, nil
		case num == fieldArgBytes && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			if len(v) != len(arg.Bytes) {
				return 0, fmt.Errorf("argument data is %d bytes, want %d", len(v), len(arg.Bytes))
			}
			copy(arg.Bytes[:], v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return arg, err
}

func unmarshalAccount(data []byte) (CallbackAccount, error) {
	var acc CallbackAccount
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldAccountOwner && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			if len(v) != balance.OwnerSize {
				return 0, fmt.Errorf("owner is %d bytes, want %d", len(v), balance.OwnerSize)
			}
			copy(acc.Owner[:], v)
			return n, nil
		case num == fieldAccountWritable && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			acc.Writable = protowire.DecodeBool(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return acc, err
}

// consumeFields walks the top-level fields of a message. fn returns the number
// of bytes it consumed after the tag, or a negative protowire error code.
func consumeFields(
	data []byte,
	fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error),
) error { // A
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}
