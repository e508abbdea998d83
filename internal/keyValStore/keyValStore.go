package keyValStore

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrKeyNotFound is returned by Read when the key is absent.
var ErrKeyNotFound = errors.New("key not found")

const maxTxnRetries = 64

type StoreConfig struct {
	Paths            []string // absolute path at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config       StoreConfig
	log          *logrus.Logger
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
}

// Stats counts reads and writes since the store was opened.
type Stats struct {
	Reads  uint64
	Writes uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %s: %w", config.Paths[0], err)
	}

	err = displayDiskUsage(log, config.Paths)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &KeyValStore{
		config:   config,
		log:      log,
		badgerDB: db,
	}, nil
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	atomic.AddUint64(&k.writeCounter, 1)

	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
	if err != nil {
		return fmt.Errorf("error writing key %q: %w", key, err)
	}
	return nil
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	atomic.AddUint64(&k.readCounter, 1)
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading key %q: %w", key, err)
	}
	return value, nil
}

// Txn is a read-write view handed to Update callbacks.
type Txn struct {
	k   *KeyValStore
	txn *badger.Txn
}

// Get returns the value of key and whether it exists.
func (t *Txn) Get(key []byte) ([]byte, bool, error) {
	atomic.AddUint64(&t.k.readCounter, 1)
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *Txn) Set(key, value []byte) error {
	atomic.AddUint64(&t.k.writeCounter, 1)
	return t.txn.Set(key, value)
}

// Update runs fn in a serializable read-write transaction. Transactions that
// lose a conflict against a concurrent writer are re-run.
func (k *KeyValStore) Update(fn func(txn *Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = k.badgerDB.Update(func(txn *badger.Txn) error {
			return fn(&Txn{k: k, txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		k.log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
		}).Debug("transaction conflict, retrying")
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxTxnRetries, err)
}

// will return all keys and values with the given prefix
func (k *KeyValStore) GetItemsWithPrefix(prefix []byte) ([][][]byte, error) {
	var keysAndValues [][][]byte
	atomic.AddUint64(&k.readCounter, 1)
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keysAndValues = append(keysAndValues, [][]byte{k, v})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating prefix %q: %w", prefix, err)
	}
	return keysAndValues, nil
}

func (k *KeyValStore) Stats() Stats {
	return Stats{
		Reads:  atomic.LoadUint64(&k.readCounter),
		Writes: atomic.LoadUint64(&k.writeCounter),
	}
}

func (k *KeyValStore) Close() error {
	stats := k.Stats()
	k.log.WithFields(logrus.Fields{
		"path":   k.config.Paths[0],
		"reads":  stats.Reads,
		"writes": stats.Writes,
	}).Debug("closing key value store")

	cleanErr := k.Clean()
	return errors.Join(cleanErr, k.badgerDB.Close())
}

func (k *KeyValStore) Clean() error {
	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = k.badgerDB.Flatten(runtime.NumCPU()) // The parameter is the number of concurrent compactions
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	k.log.Debug("DB Flattened")

	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}
