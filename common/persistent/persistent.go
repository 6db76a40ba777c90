// Package persistent provides a CBOR-encoded key/value store backed by
// BadgerDB, partitioned into per-service namespaces.
package persistent

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/delegation-marketplace/stx-delegator/common/cbor"
	"github.com/delegation-marketplace/stx-delegator/common/logging"
)

const (
	dbName = "persistent-store.badger.db"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

// ErrNotFound is the error returned when no value is stored under a key.
var ErrNotFound = errors.New("persistent: key not found in database")

// CommonStore is the interface to the common persistent store.
type CommonStore struct {
	db *badger.DB
	gc *gcWorker
}

// Close closes the database handle.
func (cs *CommonStore) Close() {
	cs.gc.Close()
	_ = cs.db.Close()
}

// GetServiceStore returns a handle to a per-service bucket.
func (cs *CommonStore) GetServiceStore(name string) (*ServiceStore, error) {
	if name == "" || strings.Contains(name, ".") {
		return nil, fmt.Errorf("persistent: invalid service name: '%s'", name)
	}

	return &ServiceStore{
		store:  cs,
		prefix: []byte(name + "."),
	}, nil
}

// NewCommonStore opens the common persistent store in the provided data
// directory. An empty data directory yields an in-memory store.
func NewCommonStore(dataDir string) (*CommonStore, error) {
	logger := logging.GetLogger("common/persistent")

	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(dataDir, dbName)).WithSyncWrites(true)
	}
	opts = opts.WithLogger(newLogAdapter(logger))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("persistent: failed to open database: %w", err)
	}

	return &CommonStore{
		db: db,
		gc: newGCWorker(logger, db),
	}, nil
}

// ServiceStore is a storage wrapper that automatically prefixes keys
// with the service name.
type ServiceStore struct {
	store  *CommonStore
	prefix []byte
}

func (ss *ServiceStore) dbKey(key []byte) []byte {
	return append(append([]byte{}, ss.prefix...), key...)
}

// GetCBOR is a helper for retrieving CBOR-serialized values.
func (ss *ServiceStore) GetCBOR(key []byte, value interface{}) error {
	return ss.store.db.View(func(tx *badger.Txn) error {
		item, txErr := tx.Get(ss.dbKey(key))
		switch txErr {
		case nil:
		case badger.ErrKeyNotFound:
			return ErrNotFound
		default:
			return txErr
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, value)
		})
	})
}

// PutCBOR is a helper for storing CBOR-serialized values.
func (ss *ServiceStore) PutCBOR(key []byte, value interface{}) error {
	return ss.store.db.Update(func(tx *badger.Txn) error {
		return tx.Set(ss.dbKey(key), cbor.Marshal(value))
	})
}

// Delete removes the specified key from the service store.
func (ss *ServiceStore) Delete(key []byte) error {
	return ss.store.db.Update(func(tx *badger.Txn) error {
		return tx.Delete(ss.dbKey(key))
	})
}

type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, a ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, a...)))
}

func (l *badgerLogger) Warningf(format string, a ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, a...)))
}

func (l *badgerLogger) Infof(format string, a ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, a...)))
}

func (l *badgerLogger) Debugf(format string, a ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, a...)))
}

func newLogAdapter(logger *logging.Logger) badger.Logger {
	return &badgerLogger{
		logger: logger,
	}
}

// gcWorker periodically runs the BadgerDB value log GC.
type gcWorker struct {
	logger *logging.Logger

	db *badger.DB

	closeOnce sync.Once
	closeCh   chan struct{}
	closedCh  chan struct{}
}

func (gc *gcWorker) Close() {
	gc.closeOnce.Do(func() {
		close(gc.closeCh)
		<-gc.closedCh
	})
}

func (gc *gcWorker) worker() {
	defer close(gc.closedCh)

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gc.closeCh:
			return
		case <-ticker.C:
		}

		var err error
		for err == nil {
			err = gc.db.RunValueLogGC(gcDiscardRatio)
		}
		switch err {
		case badger.ErrNoRewrite, badger.ErrGCInMemoryMode:
		default:
			gc.logger.Error("failed to GC value log",
				"err", err,
			)
		}
	}
}

func newGCWorker(logger *logging.Logger, db *badger.DB) *gcWorker {
	gc := &gcWorker{
		logger:   logger,
		db:       db,
		closeCh:  make(chan struct{}),
		closedCh: make(chan struct{}),
	}

	go gc.worker()

	return gc
}
