package store

import (
	"os"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	badgerGCThreshold   = int64(1 << 30) // 1GB of reclaimable value-log space
	badgerGCTickerEvery = time.Minute
)

// badgerDB is the second Store backend, selected by store.type = "badger".
// Adapted from klaytn's storage/database.badgerDB: same directory
// bootstrap and periodic value-log GC loop, generalized from a blockchain
// state DB to our small JSON-record keyspace.
type badgerDB struct {
	fn       string
	db       *badger.DB
	gcTicker *time.Ticker
	stopGC   chan struct{}
	log      *zap.Logger
}

// OpenBadgerDB opens (or creates) a badger-backed Store at dir.
func OpenBadgerDB(dir string, log *zap.Logger) (Store, error) {
	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return nil, errors.Errorf("store: %s is not a directory", dir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "store: creating badger dir %s", dir)
		}
	} else {
		return nil, errors.Wrapf(err, "store: statting badger dir %s", dir)
	}

	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "store: opening badger db at %s", dir)
	}

	bg := &badgerDB{
		fn:       dir,
		db:       db,
		gcTicker: time.NewTicker(badgerGCTickerEvery),
		stopGC:   make(chan struct{}),
		log:      log,
	}
	go bg.runValueLogGC()
	log.Info("opened badger store", zap.String("dir", dir))
	return bg, nil
}

func (bg *badgerDB) runValueLogGC() {
	_, lastSize := bg.db.Size()
	for {
		select {
		case <-bg.stopGC:
			return
		case <-bg.gcTicker.C:
			_, currSize := bg.db.Size()
			if currSize-lastSize < badgerGCThreshold {
				continue
			}
			if err := bg.db.RunValueLogGC(0.5); err != nil {
				bg.log.Warn("badger value log gc failed", zap.Error(err))
				continue
			}
			_, lastSize = bg.db.Size()
		}
	}
}

func (bg *badgerDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := bg.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func (bg *badgerDB) Has(key []byte) (bool, error) {
	_, err := bg.Get(key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (bg *badgerDB) Put(key, value []byte) error {
	return bg.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (bg *badgerDB) Delete(key []byte) error {
	return bg.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (bg *badgerDB) NewIteratorWithPrefix(prefix []byte) Iterator {
	txn := bg.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	it.Seek(prefix)
	return &badgerIterator{txn: txn, it: it, prefix: append([]byte(nil), prefix...), started: false}
}

type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	started bool
	err     error
}

func (i *badgerIterator) Next() bool {
	if !i.started {
		i.started = true
	} else {
		i.it.Next()
	}
	if !i.it.ValidForPrefix(i.prefix) {
		return false
	}
	return true
}

func (i *badgerIterator) Key() []byte { return append([]byte(nil), i.it.Item().Key()...) }

func (i *badgerIterator) Value() []byte {
	v, err := i.it.Item().ValueCopy(nil)
	if err != nil {
		i.err = err
	}
	return v
}

func (i *badgerIterator) Release() {
	i.it.Close()
	i.txn.Discard()
}

func (i *badgerIterator) Error() error { return i.err }

func (bg *badgerDB) NewBatch() Batch { return &badgerBatch{db: bg.db} }

type badgerBatch struct {
	db      *badger.DB
	entries []badgerBatchEntry
	size    int
}

type badgerBatchEntry struct {
	key     []byte
	value   []byte
	deleted bool
}

func (b *badgerBatch) Put(key, value []byte) error {
	b.entries = append(b.entries, badgerBatchEntry{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	b.size += len(key) + len(value)
	return nil
}

func (b *badgerBatch) Delete(key []byte) error {
	b.entries = append(b.entries, badgerBatchEntry{key: append([]byte(nil), key...), deleted: true})
	b.size += len(key)
	return nil
}

func (b *badgerBatch) Write() error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, e := range b.entries {
			if e.deleted {
				if err := txn.Delete(e.key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(e.key, e.value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *badgerBatch) Reset() {
	b.entries = b.entries[:0]
	b.size = 0
}

func (b *badgerBatch) ValueSize() int { return b.size }

func (bg *badgerDB) Close() error {
	close(bg.stopGC)
	bg.gcTicker.Stop()
	err := bg.db.Close()
	if err != nil {
		bg.log.Error("failed to close badger store", zap.Error(err))
	} else {
		bg.log.Info("closed badger store")
	}
	return err
}
