// Package backup streams a consistent copy of the ledger's storage, balances
// and pending computations alike, as a zstd compressed badger backup.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/i5heu/ouroboros-ledger/internal/kv"
)

var ErrInProgress = errors.New("backup: another backup or restore is running")

// Status describes the last completed backup.
type Status struct {
	LastBackup time.Time
	// LastBackupSize is the compressed size in bytes.
	LastBackupSize int64
	// Version is the storage version the backup is consistent at.
	Version    uint64
	InProgress bool
}

type Manager struct {
	kv *kv.KV

	mu     sync.Mutex
	status Status
}

func NewManager(db *kv.KV) *Manager {
	return &Manager{kv: db}
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.InProgress {
		return ErrInProgress
	}
	m.status.InProgress = true
	return nil
}

func (m *Manager) end() {
	m.mu.Lock()
	m.status.InProgress = false
	m.mu.Unlock()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// BackupData writes a full backup to w.
func (m *Manager) BackupData(ctx context.Context, w io.Writer) error { // A
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.begin(); err != nil {
		return err
	}
	defer m.end()

	cw := &countingWriter{w: w}
	enc, err := zstd.NewWriter(cw)
	if err != nil {
		return fmt.Errorf("failed to create Zstd writer: %w", err)
	}
	version, err := m.kv.Backup(enc, 0)
	if err != nil {
		enc.Close()
		return fmt.Errorf("backup: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush Zstd writer: %w", err)
	}

	m.mu.Lock()
	m.status.LastBackup = time.Now()
	m.status.LastBackupSize = cw.n
	m.status.Version = version
	m.mu.Unlock()
	return nil
}

// RestoreData loads a backup written by BackupData.
func (m *Manager) RestoreData(ctx context.Context, r io.Reader) error { // A
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.begin(); err != nil {
		return err
	}
	defer m.end()

	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create Zstd reader: %w", err)
	}
	defer dec.Close()
	if err := m.kv.Load(dec); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

func (m *Manager) GetBackupStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
