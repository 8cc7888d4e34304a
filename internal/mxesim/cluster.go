// Package mxesim is an in-process stand-in for the MPC cluster. It accepts
// queued computations, evaluates the wrap and transfer circuits on plaintext
// recovered with the cluster key, and reports results through the subscribed
// handler from worker goroutines, so callbacks arrive asynchronously and in
// any order.
package mxesim

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"

	"golang.org/x/crypto/curve25519"

	"github.com/i5heu/ouroboros-ledger/internal/workerpool"
	"github.com/i5heu/ouroboros-ledger/pkg/balance"
	"github.com/i5heu/ouroboros-ledger/pkg/callback"
	"github.com/i5heu/ouroboros-ledger/pkg/computation"
)

var (
	ErrUnreachable       = errors.New("mxesim: cluster unreachable")
	ErrUnknownDefinition = errors.New("mxesim: unknown computation definition")
	ErrNoSubscriber      = errors.New("mxesim: no result handler subscribed")
	ErrNotHeld           = errors.New("mxesim: offset is not held")
	ErrClosed            = errors.New("mxesim: cluster closed")
)

const (
	logKeyOffset = "offset"
	logKeyKind   = "kind"
	logKeyError  = "error"
)

type Config struct {
	Logger  *slog.Logger
	Workers int
	// Rand seeds the cluster key. Nil means crypto/rand.
	Rand io.Reader
}

type job struct {
	offset uint64
	kind   computation.Kind
	req    computation.Request
	ctx    context.Context
}

type Cluster struct {
	log        *slog.Logger
	privateKey [32]byte
	publicKey  balance.PubKey
	pool       *workerpool.WorkerPool

	mu          sync.Mutex
	definitions map[uint32]computation.Kind
	handler     computation.ResultHandler
	unreachable bool
	hold        bool
	held        map[uint64]job
	aborts      map[uint64]struct{}
	ciphers     map[balance.PubKey]*Cipher
	closed      bool

	inflight sync.WaitGroup
}

func New(cfg Config) (*Cluster, error) { // A
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	c := &Cluster{
		log:         cfg.Logger,
		pool:        workerpool.NewWorkerPool(workerpool.Config{WorkerCount: cfg.Workers}),
		definitions: make(map[uint32]computation.Kind),
		held:        make(map[uint64]job),
		aborts:      make(map[uint64]struct{}),
		ciphers:     make(map[balance.PubKey]*Cipher),
	}
	if _, err := io.ReadFull(cfg.Rand, c.privateKey[:]); err != nil {
		c.pool.Stop()
		return nil, fmt.Errorf("generate cluster key: %w", err)
	}
	pub, err := curve25519.X25519(c.privateKey[:], curve25519.Basepoint)
	if err != nil {
		c.pool.Stop()
		return nil, fmt.Errorf("derive cluster pubkey: %w", err)
	}
	copy(c.publicKey[:], pub)
	return c, nil
}

// PublicKey is the key owners combine with their own to share a cipher with
// the cluster.
func (c *Cluster) PublicKey() balance.PubKey { return c.publicKey }

// NewClient creates an owner key pair bound to this cluster.
func (c *Cluster) NewClient() (*Client, error) { return NewClient(c.publicKey, nil) }

// RegisterDefinition makes kind callable under the given definition offset.
func (c *Cluster) RegisterDefinition(ctx context.Context, kind computation.Kind, offset uint32) error { // A
	if err := ctx.Err(); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: kind %d", ErrUnknownDefinition, kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unreachable {
		return ErrUnreachable
	}
	c.definitions[offset] = kind
	return nil
}

// Subscribe installs the handler every result is delivered to. A later call
// replaces the previous handler.
func (c *Cluster) Subscribe(h computation.ResultHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Queue accepts a serialized request for execution. An error means the
// computation was not queued and no callback will follow.
func (c *Cluster) Queue(ctx context.Context, offset uint64, definition uint32, raw []byte) error { // AC
	if err := ctx.Err(); err != nil {
		return err
	}
	req, err := computation.UnmarshalRequest(raw)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.unreachable:
		c.mu.Unlock()
		return ErrUnreachable
	case c.handler == nil:
		c.mu.Unlock()
		return ErrNoSubscriber
	}
	kind, ok := c.definitions[definition]
	if !ok || kind != req.Kind {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d for %s", ErrUnknownDefinition, definition, req.Kind)
	}

	j := job{offset: offset, kind: kind, req: req, ctx: context.WithoutCancel(ctx)}
	if c.hold {
		c.held[offset] = j
		c.mu.Unlock()
		return nil
	}
	handler := c.handler
	c.mu.Unlock()
	return c.run(j, handler)
}

func (c *Cluster) run(j job, handler computation.ResultHandler) error {
	c.inflight.Add(1)
	err := c.pool.Submit(func() {
		defer c.inflight.Done()
		out := c.execute(j)
		handler(j.ctx, j.offset, j.kind, out)
	})
	if err != nil {
		c.inflight.Done()
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return nil
}

// SetReachable toggles whether Queue and RegisterDefinition accept work.
func (c *Cluster) SetReachable(reachable bool) {
	c.mu.Lock()
	c.unreachable = !reachable
	c.mu.Unlock()
}

// Abort makes the computation at offset report an abort instead of a result.
// It applies to queued or held computations that have not run yet.
func (c *Cluster) Abort(offset uint64) {
	c.mu.Lock()
	c.aborts[offset] = struct{}{}
	c.mu.Unlock()
}

// SetHold parks queued computations until Release is called.
func (c *Cluster) SetHold(hold bool) {
	c.mu.Lock()
	c.hold = hold
	c.mu.Unlock()
}

// Held lists the parked offsets in ascending order.
func (c *Cluster) Held() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	offsets := make([]uint64, 0, len(c.held))
	for o := range c.held {
		offsets = append(offsets, o)
	}
	slices.Sort(offsets)
	return offsets
}

// Release executes the given held computations in argument order, or all of
// them in offset order when none are named.
func (c *Cluster) Release(ctx context.Context, offsets ...uint64) error { // A
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(offsets) == 0 {
		offsets = c.Held()
	}
	c.mu.Lock()
	jobs := make([]job, 0, len(offsets))
	for _, o := range offsets {
		j, ok := c.held[o]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrNotHeld, o)
		}
		jobs = append(jobs, j)
	}
	for _, j := range jobs {
		delete(c.held, j.offset)
	}
	handler := c.handler
	c.mu.Unlock()

	for _, j := range jobs {
		if err := c.run(j, handler); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until every released computation has delivered its callback.
func (c *Cluster) Wait() { c.inflight.Wait() }

// Close drains running computations. Held computations are dropped.
func (c *Cluster) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.held = make(map[uint64]job)
	c.mu.Unlock()
	c.pool.Stop()
	return nil
}

func (c *Cluster) cipherFor(pk balance.PubKey) (*Cipher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ci, ok := c.ciphers[pk]; ok {
		return ci, nil
	}
	ci, err := NewCipher(c.privateKey[:], pk[:])
	if err != nil {
		return nil, err
	}
	c.ciphers[pk] = ci
	return ci, nil
}

func (c *Cluster) execute(j job) computation.Output {
	c.mu.Lock()
	_, abort := c.aborts[j.offset]
	delete(c.aborts, j.offset)
	c.mu.Unlock()
	if abort {
		c.log.Debug("computation aborted", logKeyOffset, j.offset, logKeyKind, j.kind)
		return computation.Aborted()
	}

	var (
		raw []byte
		err error
	)
	switch j.kind {
	case computation.KindWrap:
		raw, err = c.wrap(j.req)
	case computation.KindTransfer:
		raw, err = c.transfer(j.req)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownDefinition, j.kind)
	}
	if err != nil {
		c.log.Warn("computation failed", logKeyOffset, j.offset, logKeyKind, j.kind, logKeyError, err)
		return computation.Aborted()
	}
	return computation.Bytes(raw)
}

func (c *Cluster) wrap(req computation.Request) ([]byte, error) {
	amount := req.Args[computation.WrapArgAmount].U64
	pk := balance.PubKey(req.Args[computation.WrapArgPubKey].Bytes)
	nonce := req.Args[computation.WrapArgNonce].U128.Next()

	ci, err := c.cipherFor(pk)
	if err != nil {
		return nil, err
	}
	ct, err := ci.Encrypt(amount, nonce)
	if err != nil {
		return nil, err
	}
	return callback.EncodeWrap(callback.WrapResult{EncryptionPubKey: pk, Nonce: nonce, Ciphertext: ct}), nil
}

type side struct {
	pk     balance.PubKey
	nonce  balance.Nonce
	ct     balance.Ciphertext
	cipher *Cipher
	value  uint64
}

func (c *Cluster) readSide(req computation.Request, pkArg, nonceArg, ctArg int) (side, error) {
	s := side{
		pk:    balance.PubKey(req.Args[pkArg].Bytes),
		nonce: req.Args[nonceArg].U128,
		ct:    balance.Ciphertext(req.Args[ctArg].Bytes),
	}
	var err error
	if s.cipher, err = c.cipherFor(s.pk); err != nil {
		return s, err
	}
	s.value, err = s.cipher.Decrypt(s.ct, s.nonce)
	return s, err
}

func (s side) reencrypt(v uint64) (callback.EncryptedU64, error) {
	n := s.nonce.Next()
	ct, err := s.cipher.Encrypt(v, n)
	return callback.EncryptedU64{Nonce: n, Ciphertext: ct}, err
}

func (c *Cluster) transfer(req computation.Request) ([]byte, error) {
	sender, err := c.readSide(req,
		computation.TransferArgSenderPubKey, computation.TransferArgSenderNonce, computation.TransferArgSenderCiphertext)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	receiver, err := c.readSide(req,
		computation.TransferArgReceiverPubKey, computation.TransferArgReceiverNonce, computation.TransferArgReceiverCiphertext)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	amount := req.Args[computation.TransferArgAmount].U64

	ok := sender.value >= amount && receiver.value <= math.MaxUint64-amount
	sv, rv := sender.value, receiver.value
	if ok {
		sv, rv = sv-amount, rv+amount
	}

	out := callback.TransferOutput{Success: ok, SenderPubKey: sender.pk, ReceiverPubKey: receiver.pk}
	if out.Sender, err = sender.reencrypt(sv); err != nil {
		return nil, err
	}
	if out.Receiver, err = receiver.reencrypt(rv); err != nil {
		return nil, err
	}
	return callback.EncodeTransfer(out), nil
}
