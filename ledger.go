// Package ledger keeps confidential token balances whose arithmetic runs on an
// external MPC cluster. The ledger never sees a plaintext balance: Wrap and
// Transfer queue computations over ciphertexts, and OnResult settles the
// encrypted results when the cluster calls back.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/i5heu/ouroboros-ledger/internal/backup"
	"github.com/i5heu/ouroboros-ledger/internal/balancestore"
	"github.com/i5heu/ouroboros-ledger/internal/kv"
	"github.com/i5heu/ouroboros-ledger/internal/metrics"
	"github.com/i5heu/ouroboros-ledger/internal/pending"
	"github.com/i5heu/ouroboros-ledger/internal/settlement"
	"github.com/i5heu/ouroboros-ledger/pkg/balance"
	"github.com/i5heu/ouroboros-ledger/pkg/computation"
)

const (
	logKeyOffset  = "offset"
	logKeyKind    = "kind"
	logKeyError   = "error"
	logKeyPath    = "path"
	logKeyPending = "pending"
	logKeySize    = "size"
	logKeyVersion = "version"
)

var (
	ErrNotStarted = errors.New("ledger: not started")
	ErrClosed     = errors.New("ledger: closed")
	// ErrRestorePending is returned by Restore while computations are in
	// flight.
	ErrRestorePending = errors.New("ledger: cannot restore with pending computations")
)

// Cluster is the MPC network computations are queued on. Results come back
// through the handler passed to Subscribe, once per queued offset, on any
// goroutine and in any order.
type Cluster interface {
	RegisterDefinition(ctx context.Context, kind computation.Kind, offset uint32) error
	Queue(ctx context.Context, offset uint64, definition uint32, raw []byte) error
	Subscribe(h computation.ResultHandler)
}

// Custody holds the plaintext tokens backing wrapped balances. Escrow runs
// when a wrap is dispatched and Refund when it fails to settle.
type Custody interface {
	Escrow(ctx context.Context, owner balance.Owner, amount uint64) error
	Refund(ctx context.Context, owner balance.Owner, amount uint64) error
}

// SettledFunc observes every callback the ledger handles, including failed
// ones.
type SettledFunc func(offset uint64, kind computation.Kind, outcome Outcome, err error)

type state struct {
	kv      *kv.KV
	store   *balancestore.Store
	pending *pending.Registry
	settler *settlement.Settler
	backup  *backup.Manager
}

type Ledger struct {
	log     *slog.Logger
	config  Config
	metrics *metrics.Metrics

	mu sync.RWMutex
	st *state

	// ops is shared by offset reservation and settlement. Restore takes it
	// exclusively because it swaps the pending registry.
	ops sync.RWMutex

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New validates conf and registers the ledger's metrics. It does no I/O; call
// Start before use.
func New(conf Config) (*Ledger, error) { // A
	if conf.Cluster == nil {
		return nil, errors.New("ledger: a cluster is required")
	}
	if len(conf.Paths) == 0 && !conf.InMemory {
		return nil, errors.New("ledger: at least one path must be provided in config")
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	m, err := metrics.New(conf.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return &Ledger{
		log:     conf.Logger,
		config:  conf,
		metrics: m,
	}, nil
}

// Start opens storage, registers both computation definitions with the
// cluster and subscribes OnResult. Only the first call has effect.
func (l *Ledger) Start(ctx context.Context) error { // AC
	var startErr error
	l.startOnce.Do(func() {
		kvConfig := kv.Config{
			Paths:         l.config.Paths,
			MinimumFreeGB: l.config.MinimumFreeGB,
			InMemory:      l.config.InMemory,
			Logger:        l.config.BadgerLogger,
		}
		if !l.config.InMemory {
			if err := os.MkdirAll(l.config.Paths[0], 0o700); err != nil {
				startErr = fmt.Errorf("mkdir %s: %w", l.config.Paths[0], err)
				return
			}
		}
		db, err := kv.Open(kvConfig)
		if err != nil {
			startErr = fmt.Errorf("init kv: %w", err)
			return
		}
		reg, err := pending.Open(db)
		if err != nil {
			startErr = errors.Join(fmt.Errorf("init pending registry: %w", err), db.Close())
			return
		}
		store := balancestore.New(db, l.log)

		for _, k := range computation.Kinds() {
			if err := l.config.Cluster.RegisterDefinition(ctx, k, computation.DefinitionOffset(k)); err != nil {
				startErr = errors.Join(fmt.Errorf("register %s definition: %w", k, err), db.Close())
				return
			}
		}

		l.mu.Lock()
		l.st = &state{
			kv:      db,
			store:   store,
			pending: reg,
			settler: settlement.New(store, l.log),
			backup:  backup.NewManager(db),
		}
		l.mu.Unlock()
		l.metrics.Pending.Set(float64(reg.Len()))
		l.started.Store(true)

		l.config.Cluster.Subscribe(l.handleResult)
		path := "memory"
		if !l.config.InMemory {
			path = l.config.Paths[0]
		}
		l.log.Info("ledger started", logKeyPath, path, logKeyPending, reg.Len())
	})
	return startErr
}

// Close releases storage. Callbacks arriving afterwards fail with ErrClosed.
// Close is idempotent.
func (l *Ledger) Close(ctx context.Context) error { // A
	var closeErr error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		st := l.st
		l.st = nil
		l.mu.Unlock()
		if st != nil {
			if err := st.kv.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close kv: %w", err))
			}
		}
		l.log.Info("ledger closed")
	})
	return closeErr
}

func (l *Ledger) handle() (*state, error) {
	if !l.started.Load() {
		return nil, ErrNotStarted
	}
	l.mu.RLock()
	st := l.st
	l.mu.RUnlock()
	if st == nil {
		return nil, ErrClosed
	}
	return st, nil
}

// Balance returns the owner's encrypted balance and whether it exists.
func (l *Ledger) Balance(ctx context.Context, owner balance.Owner) (balance.EncryptedBalance, bool, error) { // A
	if err := ctx.Err(); err != nil {
		return balance.EncryptedBalance{}, false, err
	}
	st, err := l.handle()
	if err != nil {
		return balance.EncryptedBalance{}, false, err
	}
	return st.store.Get(ctx, owner)
}

// Balances lists every initialized balance in owner order.
func (l *Ledger) Balances(ctx context.Context) ([]Record, error) { // A
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := l.handle()
	if err != nil {
		return nil, err
	}
	return st.store.List(ctx)
}

// Pending returns the number of computations awaiting their callback.
func (l *Ledger) Pending() int {
	st, err := l.handle()
	if err != nil {
		return 0
	}
	return st.pending.Len()
}

// Backup writes a compressed snapshot of all balances and pending
// computations to w.
func (l *Ledger) Backup(ctx context.Context, w io.Writer) error { // A
	st, err := l.handle()
	if err != nil {
		return err
	}
	if err := st.backup.BackupData(ctx, w); err != nil {
		return err
	}
	status := st.backup.GetBackupStatus()
	l.log.InfoContext(ctx, "backup written", logKeySize, status.LastBackupSize, logKeyVersion, status.Version)
	return nil
}

// Restore loads a snapshot written by Backup. The ledger must have no pending
// computations; pending entries in the snapshot become pending again.
func (l *Ledger) Restore(ctx context.Context, r io.Reader) error { // AC
	l.ops.Lock()
	defer l.ops.Unlock()

	st, err := l.handle()
	if err != nil {
		return err
	}
	if n := st.pending.Len(); n > 0 {
		return fmt.Errorf("%w: %d", ErrRestorePending, n)
	}
	if err := st.backup.RestoreData(ctx, r); err != nil {
		return err
	}
	reg, err := pending.Open(st.kv)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.st == st {
		next := *st
		next.pending = reg
		l.st = &next
	}
	l.mu.Unlock()
	l.metrics.Pending.Set(float64(reg.Len()))
	l.log.InfoContext(ctx, "backup restored", logKeyPending, reg.Len())
	return nil
}
