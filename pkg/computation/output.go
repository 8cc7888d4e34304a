package computation

import "context"

// Output is what the cluster reports for a finished computation: either the
// raw result bytes or an abort.
type Output struct {
	Aborted bool
	Bytes   []byte
}

// Bytes wraps a raw result.
func Bytes(b []byte) Output { return Output{Bytes: b} }

// Aborted is the output of a computation the cluster refused or failed.
func Aborted() Output { return Output{Aborted: true} }

// ResultHandler receives exactly one callback per dispatched offset.
type ResultHandler func(ctx context.Context, offset uint64, kind Kind, out Output)
