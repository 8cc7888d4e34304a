package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	ledger "github.com/i5heu/ouroboros-ledger"
	"github.com/i5heu/ouroboros-ledger/internal/config"
	"github.com/i5heu/ouroboros-ledger/internal/logging"
	"github.com/i5heu/ouroboros-ledger/internal/mxesim"
	"github.com/i5heu/ouroboros-ledger/internal/workerpool"
	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

const (
	logKeyConfig  = "config"
	logKeyDataDir = "dataDir"
	logKeyOwner   = "owner"
	logKeyBalance = "balance"
	logKeyNonce   = "nonce"
	logKeyEscrow  = "escrow"
	logKeyAddr    = "addr"
	logKeySignal  = "signal"
	logKeyError   = "error"
)

func main() { // A
	flags := parseFlags()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	flags.apply(&cfg)

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(logging.Options{Level: level, NoColor: cfg.NoColor})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.InfoContext(ctx, "received shutdown signal", logKeySignal, sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, flags.owners, logger); err != nil {
		logger.ErrorContext(context.Background(), "ledgerd error", logKeyError, err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath  string
	dataDir     string
	inMemory    bool
	debug       bool
	metricsAddr string
	owners      int
}

func parseFlags() cliFlags { // A
	f := cliFlags{}
	flag.StringVar(&f.configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&f.dataDir, "data", "", "Data directory (overrides config)")
	flag.BoolVar(&f.inMemory, "memory", false, "Keep all state in memory")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&f.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address and keep running")
	flag.IntVar(&f.owners, "owners", 8, "Number of demo accounts")
	flag.Parse()
	return f
}

func (f cliFlags) apply(cfg *config.Config) {
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.inMemory {
		cfg.InMemory = true
	}
	if f.debug {
		cfg.LogLevel = "debug"
	}
	if f.metricsAddr != "" {
		cfg.MetricsAddr = f.metricsAddr
	}
}

// vault is the demo's custody: it only counts escrowed plaintext tokens.
type vault struct {
	mu   sync.Mutex
	held map[balance.Owner]uint64
}

func (v *vault) Escrow(_ context.Context, owner balance.Owner, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.held[owner] += amount
	return nil
}

func (v *vault) Refund(_ context.Context, owner balance.Owner, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.held[owner] < amount {
		return fmt.Errorf("refund %d exceeds escrow %d", amount, v.held[owner])
	}
	v.held[owner] -= amount
	return nil
}

func (v *vault) total() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	var sum uint64
	for _, n := range v.held {
		sum += n
	}
	return sum
}

type account struct {
	owner  balance.Owner
	client *mxesim.Client
}

// run wires a ledger to the simulated cluster and plays a wrap and transfer
// round over the demo accounts.
func run(
	ctx context.Context,
	cfg config.Config,
	owners int,
	logger *slog.Logger,
) error { // AC
	if owners < 2 {
		return errors.New("at least two owners are needed")
	}

	cluster, err := mxesim.New(mxesim.Config{Logger: logger, Workers: cfg.Workers})
	if err != nil {
		return err
	}
	defer cluster.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	badgerLog := logrus.New()
	badgerLog.SetLevel(logrus.WarnLevel)
	if cfg.LogLevel == "debug" {
		badgerLog.SetLevel(logrus.InfoLevel)
	}

	custody := &vault{held: make(map[balance.Owner]uint64)}
	l, err := ledger.New(ledger.Config{
		Paths:         []string{cfg.DataDir},
		InMemory:      cfg.InMemory,
		MinimumFreeGB: cfg.MinimumFreeGB,
		Logger:        logger,
		BadgerLogger:  badgerLog,
		Registerer:    reg,
		Cluster:       cluster,
		Custody:       custody,
	})
	if err != nil {
		return err
	}
	if err := l.Start(ctx); err != nil {
		return err
	}
	defer l.Close(context.Background())
	logger.InfoContext(ctx, "ledgerd started", logKeyDataDir, cfg.DataDir, logKeyConfig, fmt.Sprintf("%+v", cfg))

	accounts := make([]account, owners)
	for i := range accounts {
		c, err := cluster.NewClient()
		if err != nil {
			return err
		}
		accounts[i] = account{owner: demoOwner(i), client: c}
	}

	// offsets are unique per run so a persisted ledger never sees a reused
	// pending offset
	base := uint64(time.Now().UnixNano())
	if err := wrapAll(ctx, l, cfg.Workers, accounts, base); err != nil {
		return err
	}
	cluster.Wait()

	offset := base + uint64(owners)
	for i := 0; i+1 < len(accounts); i += 2 {
		from, to := accounts[i], accounts[i+1]
		if err := l.Transfer(ctx, offset, from.owner, to.owner, uint64(50*(i+1))); err != nil {
			return err
		}
		offset++
	}
	cluster.Wait()

	for _, a := range accounts {
		b, ok, err := l.Balance(ctx, a.owner)
		if err != nil {
			return err
		}
		if !ok {
			logger.WarnContext(ctx, "account has no balance", logKeyOwner, a.owner.String())
			continue
		}
		v, err := a.client.Decrypt(b)
		if err != nil {
			// balances persisted by an earlier run belong to that run's keys
			logger.WarnContext(ctx, "balance not readable with this run's key", logKeyOwner, a.owner.String(), logKeyError, err)
			continue
		}
		logger.InfoContext(ctx, "balance", logKeyOwner, a.owner.String(), logKeyBalance, v, logKeyNonce, b.Nonce.String())
	}
	logger.InfoContext(ctx, "custody", logKeyEscrow, custody.total())

	if cfg.MetricsAddr == "" {
		return nil
	}
	return serveMetrics(ctx, cfg.MetricsAddr, reg, logger)
}

// wrapAll wraps 100 tokens for every account concurrently.
func wrapAll(
	ctx context.Context,
	l *ledger.Ledger,
	workers int,
	accounts []account,
	base uint64,
) error { // A
	wp := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: workers})
	defer wp.Stop()
	room := workerpool.NewRoom[error](wp, len(accounts))
	for i, a := range accounts {
		offset := base + uint64(i)
		a := a
		err := room.NewTaskWaitForFreeSlot(func() error {
			return l.Wrap(ctx, offset, a.owner, 100, a.client.PublicKey(), balance.NewNonce(0))
		})
		if err != nil {
			return err
		}
	}
	return errors.Join(room.Collect()...)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error { // A
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.InfoContext(ctx, "serving metrics", logKeyAddr, addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func demoOwner(i int) balance.Owner {
	var o balance.Owner
	copy(o[:], fmt.Sprintf("demo-owner-%04d", i))
	return o
}

var _ ledger.Cluster = (*mxesim.Cluster)(nil)
