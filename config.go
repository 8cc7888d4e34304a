package ledger

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-ledger/internal/logging"
)

type Config struct {
	// Paths contains data directories. Only Paths[0] is used.
	Paths []string
	// InMemory keeps all state in memory. Paths is ignored.
	InMemory bool
	// MinimumFreeGB is a free-space threshold checked when opening on disk.
	MinimumFreeGB uint
	// Logger is an optional structured logger. If nil, a stderr logger is used.
	Logger *slog.Logger
	// BadgerLogger receives the storage engine's own messages.
	BadgerLogger *logrus.Logger
	// Registerer receives the ledger metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	Cluster Cluster
	// Custody is optional. Without it wraps move no plaintext tokens.
	Custody Custody
	// OnSettled is called after every handled callback.
	OnSettled SettledFunc
}

func defaultLogger() *slog.Logger { // A
	return logging.New(logging.Options{Level: slog.LevelInfo})
}
