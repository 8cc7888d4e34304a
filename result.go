package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/i5heu/ouroboros-ledger/internal/metrics"
	"github.com/i5heu/ouroboros-ledger/internal/pending"
	"github.com/i5heu/ouroboros-ledger/pkg/callback"
	"github.com/i5heu/ouroboros-ledger/pkg/computation"
)

// OnResult settles the cluster's output for offset. The offset is consumed
// whatever happens: a callback is never retried and a second one for the same
// offset fails with ErrMalformedCallback. On any error the balance store is
// left unchanged and an escrowed wrap amount is refunded.
func (l *Ledger) OnResult(
	ctx context.Context,
	offset uint64,
	kind computation.Kind,
	out computation.Output,
) (Outcome, error) { // AC
	start := time.Now()
	outcome, err := l.settle(ctx, offset, kind, out)
	l.metrics.ObserveSettle(start)

	if err != nil {
		l.metrics.CallbackFailures.WithLabelValues(failureReason(err)).Inc()
		l.log.WarnContext(ctx, "callback not settled", logKeyOffset, offset, logKeyKind, kind.String(), logKeyError, err)
	} else {
		l.metrics.Settled.WithLabelValues(kind.String(), outcome.String()).Inc()
	}
	if l.config.OnSettled != nil {
		l.config.OnSettled(offset, kind, outcome, err)
	}
	return outcome, err
}

func (l *Ledger) handleResult(ctx context.Context, offset uint64, kind computation.Kind, out computation.Output) {
	_, _ = l.OnResult(ctx, offset, kind, out)
}

func (l *Ledger) settle(
	ctx context.Context,
	offset uint64,
	kind computation.Kind,
	out computation.Output,
) (Outcome, error) { // AC
	l.ops.RLock()
	defer l.ops.RUnlock()

	st, err := l.handle()
	if err != nil {
		return OutcomeNone, err
	}
	entry, err := st.pending.Take(offset)
	if errors.Is(err, pending.ErrUnknownOffset) {
		return OutcomeNone, fmt.Errorf("%w: %w", ErrMalformedCallback, err)
	}
	if err != nil {
		return OutcomeNone, err
	}
	l.metrics.Pending.Set(float64(st.pending.Len()))

	outcome, err := l.settleEntry(ctx, st, entry, kind, out)
	if err != nil {
		return OutcomeNone, errors.Join(err, l.refund(ctx, entry.Request))
	}
	return outcome, nil
}

func (l *Ledger) settleEntry(
	ctx context.Context,
	st *state,
	entry pending.Entry,
	kind computation.Kind,
	out computation.Output,
) (Outcome, error) {
	if kind != entry.Request.Kind {
		return OutcomeNone, fmt.Errorf("%w: %s callback for %s computation %d", ErrMalformedCallback, kind, entry.Request.Kind, entry.Offset)
	}
	if out.Aborted {
		return OutcomeNone, fmt.Errorf("%w: %s computation %d", ErrAbortedComputation, kind, entry.Offset)
	}
	res, err := callback.Decode(kind, out.Bytes)
	if err != nil {
		return OutcomeNone, err
	}
	return st.settler.Settle(ctx, entry, res)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrAbortedComputation):
		return metrics.ReasonAborted
	case errors.Is(err, ErrStaleComputation):
		return metrics.ReasonStale
	case errors.Is(err, ErrMalformedCallback):
		return metrics.ReasonMalformed
	default:
		return metrics.ReasonStore
	}
}
