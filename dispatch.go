package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
	"github.com/i5heu/ouroboros-ledger/pkg/computation"
)

// Wrap queues the computation that encrypts amount as owner's balance under
// pubkey. The balance appears when the callback for offset settles; Wrap
// itself never waits for it.
func (l *Ledger) Wrap(
	ctx context.Context,
	offset uint64,
	owner balance.Owner,
	amount uint64,
	pubkey balance.PubKey,
	nonce balance.Nonce,
) error { // AC
	if err := ctx.Err(); err != nil {
		return err
	}
	req, err := computation.BuildWrap(owner, amount, pubkey, nonce)
	if err != nil {
		return err
	}
	return l.dispatch(ctx, offset, req, func(ctx context.Context) error {
		if l.config.Custody == nil {
			return nil
		}
		return l.config.Custody.Escrow(ctx, owner, amount)
	})
}

// Transfer queues a confidential transfer of amount from sender to receiver.
// Both must already hold a balance. Whether the sender can afford it is only
// known once the callback settles.
func (l *Ledger) Transfer(
	ctx context.Context,
	offset uint64,
	sender balance.Owner,
	receiver balance.Owner,
	amount uint64,
) error { // AC
	if err := ctx.Err(); err != nil {
		return err
	}
	st, err := l.handle()
	if err != nil {
		return err
	}
	sb, err := l.lookup(ctx, st, sender)
	if err != nil {
		return err
	}
	rb, err := l.lookup(ctx, st, receiver)
	if err != nil {
		return err
	}
	req, err := computation.BuildTransfer(sender, sb, receiver, rb, amount)
	if err != nil {
		return err
	}
	return l.dispatch(ctx, offset, req, nil)
}

func (l *Ledger) lookup(ctx context.Context, st *state, owner balance.Owner) (*balance.EncryptedBalance, error) {
	b, ok, err := st.store.Get(ctx, owner)
	if err != nil || !ok {
		return nil, err
	}
	return &b, nil
}

// dispatch reserves offset, runs escrow and queues req. Any failure after the
// reservation undoes it, so a computation the cluster never accepted leaves no
// trace.
func (l *Ledger) dispatch(
	ctx context.Context,
	offset uint64,
	req computation.Request,
	escrow func(ctx context.Context) error,
) error { // AC
	raw, err := computation.MarshalRequest(req)
	if err != nil {
		return err
	}
	st, err := l.reserve(offset, req)
	if err != nil {
		return err
	}

	if escrow != nil {
		if err := escrow(ctx); err != nil {
			return errors.Join(fmt.Errorf("escrow for offset %d: %w", offset, err), st.pending.Release(offset))
		}
	}

	kind := req.Kind.String()
	if err := l.config.Cluster.Queue(ctx, offset, computation.DefinitionOffset(req.Kind), raw); err != nil {
		l.metrics.DispatchFailures.WithLabelValues(kind).Inc()
		undo := st.pending.Release(offset)
		if escrow != nil {
			undo = errors.Join(undo, l.refund(ctx, req))
		}
		l.log.WarnContext(ctx, "queue computation failed", logKeyOffset, offset, logKeyKind, kind, logKeyError, err)
		return errors.Join(fmt.Errorf("%w: %s at offset %d: %w", ErrDispatch, kind, offset, err), undo)
	}

	l.metrics.Dispatched.WithLabelValues(kind).Inc()
	l.metrics.Pending.Set(float64(st.pending.Len()))
	l.log.DebugContext(ctx, "computation queued", logKeyOffset, offset, logKeyKind, kind)
	return nil
}

// reserve records offset in the live pending registry. Once it holds an
// entry Restore refuses to run, so only the reservation itself needs ops.
func (l *Ledger) reserve(offset uint64, req computation.Request) (*state, error) {
	l.ops.RLock()
	defer l.ops.RUnlock()
	st, err := l.handle()
	if err != nil {
		return nil, err
	}
	if err := st.pending.Reserve(offset, req); err != nil {
		return nil, err
	}
	return st, nil
}

// refund returns the escrowed amount of a wrap request.
func (l *Ledger) refund(ctx context.Context, req computation.Request) error {
	if l.config.Custody == nil || req.Kind != computation.KindWrap {
		return nil
	}
	owner := req.CallbackAccounts[0].Owner
	amount := req.Args[computation.WrapArgAmount].U64
	if err := l.config.Custody.Refund(context.WithoutCancel(ctx), owner, amount); err != nil {
		return fmt.Errorf("refund %d to %s: %w", amount, owner, err)
	}
	return nil
}
