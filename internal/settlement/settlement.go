// Package settlement applies decoded computation results to the balance
// store.
//
// A balance only moves from uninitialized to active; settlement never destroys
// state. Every path either commits its whole update or leaves the store
// exactly as it was.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/i5heu/ouroboros-ledger/internal/balancestore"
	"github.com/i5heu/ouroboros-ledger/internal/pending"
	"github.com/i5heu/ouroboros-ledger/pkg/balance"
	"github.com/i5heu/ouroboros-ledger/pkg/callback"
	"github.com/i5heu/ouroboros-ledger/pkg/computation"
)

const (
	logKeyOffset   = "offset"
	logKeyKind     = "kind"
	logKeyOutcome  = "outcome"
	logKeyOwner    = "owner"
	logKeyReceiver = "receiver"
)

// Outcome describes what a settlement did.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	// OutcomeCreated is a wrap that initialized a new balance.
	OutcomeCreated
	// OutcomeToppedUp is a wrap that replaced an existing balance.
	OutcomeToppedUp
	// OutcomeTransferred is a successful transfer.
	OutcomeTransferred
	// OutcomeInsufficientFunds is a transfer the circuit declined. It is a
	// normal completion and changes nothing.
	OutcomeInsufficientFunds
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeToppedUp:
		return "topped_up"
	case OutcomeTransferred:
		return "transferred"
	case OutcomeInsufficientFunds:
		return "insufficient_funds"
	default:
		return "none"
	}
}

type Settler struct {
	store *balancestore.Store
	log   *slog.Logger
}

func New(store *balancestore.Store, logger *slog.Logger) *Settler { // A
	if logger == nil {
		logger = slog.Default()
	}
	return &Settler{store: store, log: logger}
}

// Settle applies res, the decoded callback for entry.
func (s *Settler) Settle(
	ctx context.Context,
	entry pending.Entry,
	res callback.Result,
) (Outcome, error) { // AC
	req := entry.Request
	if res == nil || res.Kind() != req.Kind {
		return OutcomeNone, fmt.Errorf("%w: result does not match %s computation %d", computation.ErrMalformedCallback, req.Kind, entry.Offset)
	}
	if err := req.Validate(); err != nil {
		return OutcomeNone, err
	}

	var (
		outcome Outcome
		err     error
	)
	switch r := res.(type) {
	case callback.WrapResult:
		outcome, err = s.settleWrap(ctx, req, r)
	case callback.TransferResult:
		outcome, err = s.settleTransfer(ctx, req, r)
	default:
		err = fmt.Errorf("%w: unexpected result %T", computation.ErrMalformedCallback, res)
	}
	if err != nil {
		return OutcomeNone, err
	}

	s.log.InfoContext(ctx, "computation settled",
		logKeyOffset, entry.Offset,
		logKeyKind, req.Kind.String(),
		logKeyOutcome, outcome.String())
	return outcome, nil
}

func (s *Settler) settleWrap(
	ctx context.Context,
	req computation.Request,
	r callback.WrapResult,
) (Outcome, error) { // AC
	owner := req.CallbackAccounts[0].Owner
	if r.EncryptionPubKey != balance.PubKey(req.Args[computation.WrapArgPubKey].Bytes) {
		return OutcomeNone, fmt.Errorf("%w: wrap result for %s is encrypted under a different pubkey", computation.ErrMalformedCallback, owner)
	}

	_, existed, err := s.store.Get(ctx, owner)
	if err != nil {
		return OutcomeNone, err
	}
	if err := s.store.Upsert(ctx, owner, r.Balance()); err != nil {
		return OutcomeNone, fmt.Errorf("settle wrap for %s: %w", owner, err)
	}
	if existed {
		return OutcomeToppedUp, nil
	}
	return OutcomeCreated, nil
}

func (s *Settler) settleTransfer(
	ctx context.Context,
	req computation.Request,
	r callback.TransferResult,
) (Outcome, error) { // AC
	sender := req.CallbackAccounts[0].Owner
	receiver := req.CallbackAccounts[1].Owner
	if !r.Success {
		s.log.DebugContext(ctx, "transfer declined by circuit", logKeyOwner, sender.String(), logKeyReceiver, receiver.String())
		return OutcomeInsufficientFunds, nil
	}

	senderIn, receiverIn, err := req.TransferInputNonces()
	if err != nil {
		return OutcomeNone, err
	}
	err = s.store.Apply(ctx,
		balancestore.Mutation{
			Owner:       sender,
			Nonce:       r.Sender.Nonce,
			Ciphertext:  r.Sender.Ciphertext,
			ExpectNonce: &senderIn,
		},
		balancestore.Mutation{
			Owner:       receiver,
			Nonce:       r.Receiver.Nonce,
			Ciphertext:  r.Receiver.Ciphertext,
			ExpectNonce: &receiverIn,
		},
	)
	if errors.Is(err, balancestore.ErrNonceMismatch) {
		return OutcomeNone, fmt.Errorf("%w: %v", computation.ErrStaleComputation, err)
	}
	if err != nil {
		return OutcomeNone, fmt.Errorf("settle transfer %s -> %s: %w", sender, receiver, err)
	}
	return OutcomeTransferred, nil
}
