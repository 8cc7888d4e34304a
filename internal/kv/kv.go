// Package kv wraps the badger database shared by the balance store and the
// pending computation registry.
package kv

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("kv: key not found")

type Config struct {
	Paths         []string // only the first path is used
	MinimumFreeGB uint
	InMemory      bool
	// Logger receives badger's internal messages. If nil, warnings and errors
	// go to a default logrus logger.
	Logger *logrus.Logger
}

type KV struct {
	config       Config
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
	closed       atomic.Bool
}

func Open(config Config) (*KV, error) { // AC
	if config.Logger == nil {
		config.Logger = logrus.New()
		config.Logger.SetLevel(logrus.WarnLevel)
	}

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for kv: %w", err)
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Paths[0])
		opts.ValueLogFileSize = 1024 * 1024 * 100 // 100MB value log files
		opts.SyncWrites = true
	}
	opts.Logger = config.Logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &KV{
		config:   config,
		badgerDB: db,
	}, nil
}

// View runs fn in a read-only transaction.
func (k *KV) View(fn func(txn *badger.Txn) error) error { // A
	atomic.AddUint64(&k.readCounter, 1)
	return k.badgerDB.View(fn)
}

// Update runs fn in a read-write transaction. Either every write in fn becomes
// visible or none does.
func (k *KV) Update(fn func(txn *badger.Txn) error) error { // A
	atomic.AddUint64(&k.writeCounter, 1)
	return k.badgerDB.Update(fn)
}

// Get reads a single key, returning ErrNotFound if absent.
func (k *KV) Get(key []byte) ([]byte, error) { // AC
	var value []byte
	err := k.View(func(txn *badger.Txn) error {
		v, err := GetTxn(txn, key)
		value = v
		return err
	})
	return value, err
}

// GetTxn reads key inside an existing transaction.
func GetTxn(txn *badger.Txn, key []byte) ([]byte, error) { // A
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// GetItemsWithPrefix returns all keys and values with the given prefix.
func (k *KV) GetItemsWithPrefix(prefix []byte) ([][2][]byte, error) { // H
	var keysAndValues [][2][]byte
	err := k.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keysAndValues = append(keysAndValues, [2][]byte{key, v})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keysAndValues, nil
}

// Backup streams every key written after version since to w and returns the
// version the stream is consistent at.
func (k *KV) Backup(w io.Writer, since uint64) (uint64, error) { // A
	atomic.AddUint64(&k.readCounter, 1)
	return k.badgerDB.Backup(w, since)
}

// Load applies a stream produced by Backup.
func (k *KV) Load(r io.Reader) error { // A
	atomic.AddUint64(&k.writeCounter, 1)
	return k.badgerDB.Load(r, 256)
}

// Counters returns the number of read and write transactions since Open.
func (k *KV) Counters() (reads, writes uint64) { // A
	return atomic.LoadUint64(&k.readCounter), atomic.LoadUint64(&k.writeCounter)
}

// Close syncs and compacts the value log before closing. It is safe to call
// more than once.
func (k *KV) Close() error { // AC
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs error
	if !k.config.InMemory {
		if err := k.clean(); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if err := k.badgerDB.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("close badger: %w", err))
	}
	return errs
}

func (k *KV) clean() error {
	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	err = k.badgerDB.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}
	return nil
}
