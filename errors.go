package ledger

import (
	"github.com/i5heu/ouroboros-ledger/internal/balancestore"
	"github.com/i5heu/ouroboros-ledger/internal/settlement"
	"github.com/i5heu/ouroboros-ledger/pkg/balance"
	"github.com/i5heu/ouroboros-ledger/pkg/computation"
)

var (
	ErrInvalidArgument    = computation.ErrInvalidArgument
	ErrDuplicateOffset    = computation.ErrDuplicateOffset
	ErrAccountBusy        = computation.ErrAccountBusy
	ErrDispatch           = computation.ErrDispatch
	ErrAbortedComputation = computation.ErrAbortedComputation
	ErrMalformedCallback  = computation.ErrMalformedCallback
	ErrStaleComputation   = computation.ErrStaleComputation

	ErrPubKeyImmutable = balance.ErrPubKeyImmutable
	ErrStaleNonce      = balance.ErrStaleNonce
	ErrNotInitialized  = balance.ErrNotInitialized
)

type (
	Outcome = settlement.Outcome
	Record  = balancestore.Record
)

const (
	OutcomeNone              = settlement.OutcomeNone
	OutcomeCreated           = settlement.OutcomeCreated
	OutcomeToppedUp          = settlement.OutcomeToppedUp
	OutcomeTransferred       = settlement.OutcomeTransferred
	OutcomeInsufficientFunds = settlement.OutcomeInsufficientFunds
)
