package store

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

// levelDB is the default durable Store backend, adapted from klaytn's
// storage/database.levelDB: same bloom filter + write buffer sizing, same
// corruption-recovery path on open.
type levelDB struct {
	fn string
	db *leveldb.DB

	log *zap.Logger
}

func levelDBOptions(cacheSizeMB, numHandles int) *opt.Options {
	return &opt.Options{
		OpenFilesCacheCapacity: numHandles,
		BlockCacheCapacity:     cacheSizeMB / 2 * opt.MiB,
		WriteBuffer:            cacheSizeMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
}

// OpenLevelDB opens (or creates) a leveldb-backed Store at dir, recovering
// from corruption if necessary — same recovery path as leveldb_database.go.
func OpenLevelDB(dir string, cacheSizeMB, numHandles int, log *zap.Logger) (Store, error) {
	if cacheSizeMB < 16 {
		cacheSizeMB = 16
	}
	if numHandles < 16 {
		numHandles = 16
	}
	db, err := leveldb.OpenFile(dir, levelDBOptions(cacheSizeMB, numHandles))
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	log.Info("opened leveldb store", zap.String("dir", dir))
	return &levelDB{fn: dir, db: db, log: log}, nil
}

func (d *levelDB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (d *levelDB) Has(key []byte) (bool, error) { return d.db.Has(key, nil) }

func (d *levelDB) Put(key, value []byte) error { return d.db.Put(key, value, nil) }

func (d *levelDB) Delete(key []byte) error { return d.db.Delete(key, nil) }

func (d *levelDB) NewIteratorWithPrefix(prefix []byte) Iterator {
	return &levelDBIterator{it: d.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (d *levelDB) NewBatch() Batch { return &levelDBBatch{db: d.db, b: new(leveldb.Batch)} }

func (d *levelDB) Close() error {
	err := d.db.Close()
	if err != nil {
		d.log.Error("failed to close leveldb store", zap.Error(err))
	} else {
		d.log.Info("closed leveldb store")
	}
	return err
}

type levelDBIterator struct {
	it iterator.Iterator
}

func (i *levelDBIterator) Next() bool    { return i.it.Next() }
func (i *levelDBIterator) Key() []byte   { return append([]byte(nil), i.it.Key()...) }
func (i *levelDBIterator) Value() []byte { return append([]byte(nil), i.it.Value()...) }
func (i *levelDBIterator) Release()      { i.it.Release() }
func (i *levelDBIterator) Error() error  { return i.it.Error() }

type levelDBBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *levelDBBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *levelDBBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *levelDBBatch) Write() error { return b.db.Write(b.b, nil) }

func (b *levelDBBatch) Reset() {
	b.b.Reset()
	b.size = 0
}

func (b *levelDBBatch) ValueSize() int { return b.size }
