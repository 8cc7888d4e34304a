package computation

import "errors"

var (
	// ErrInvalidArgument rejects bad caller input before anything is dispatched.
	ErrInvalidArgument = errors.New("ledger: invalid argument")

	// ErrDuplicateOffset indicates an offset was reused while its computation
	// is still pending. This is a caller bug.
	ErrDuplicateOffset = errors.New("ledger: duplicate computation offset")

	// ErrAccountBusy rejects a request whose writable accounts are already
	// referenced by a pending computation.
	ErrAccountBusy = errors.New("ledger: account has a pending computation")

	// ErrDispatch indicates the request never entered the cluster queue.
	ErrDispatch = errors.New("ledger: dispatch failed")

	// ErrAbortedComputation is the terminal failure reported when the cluster
	// refuses or fails a computation. It is not retried.
	ErrAbortedComputation = errors.New("ledger: computation aborted")

	// ErrMalformedCallback indicates a callback that could not be decoded or
	// does not match a pending computation.
	ErrMalformedCallback = errors.New("ledger: malformed callback")

	// ErrStaleComputation indicates a result computed on balances that have
	// since been replaced.
	ErrStaleComputation = errors.New("ledger: computation inputs are stale")
)
