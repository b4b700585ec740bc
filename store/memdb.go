package store

import (
	"sort"
	"sync"
)

// MemDatabase is an in-memory Store used by component tests and by
// dev_mode runs that don't need durability across restarts. Modeled on
// klaytn's storage/database.MemDatabase.
type MemDatabase struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDatabase() *MemDatabase {
	return &MemDatabase{data: make(map[string][]byte)}
}

func (m *MemDatabase) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemDatabase) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *MemDatabase) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *MemDatabase) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemDatabase) NewIteratorWithPrefix(prefix []byte) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := string(prefix)
	keys := make([]string, 0)
	for k := range m.data {
		if len(k) >= len(p) && k[:len(p)] == p {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]kv, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, kv{key: []byte(k), value: append([]byte(nil), m.data[k]...)})
	}
	return &memIterator{pairs: pairs, idx: -1}
}

type kv struct {
	key   []byte
	value []byte
}

type memIterator struct {
	pairs []kv
	idx   int
}

func (it *memIterator) Next() bool {
	it.idx++
	return it.idx < len(it.pairs)
}

func (it *memIterator) Key() []byte   { return it.pairs[it.idx].key }
func (it *memIterator) Value() []byte { return it.pairs[it.idx].value }
func (it *memIterator) Release()      {}
func (it *memIterator) Error() error  { return nil }

func (m *MemDatabase) NewBatch() Batch { return &memBatch{db: m} }

type memBatch struct {
	db      *MemDatabase
	entries []kv
	deletes [][]byte
	size    int
}

func (b *memBatch) Put(key, value []byte) error {
	b.entries = append(b.entries, kv{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	b.size += len(key) + len(value)
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.deletes = append(b.deletes, append([]byte(nil), key...))
	b.size += len(key)
	return nil
}

func (b *memBatch) Write() error {
	for _, e := range b.entries {
		if err := b.db.Put(e.key, e.value); err != nil {
			return err
		}
	}
	for _, k := range b.deletes {
		if err := b.db.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (b *memBatch) Reset() {
	b.entries = b.entries[:0]
	b.deletes = b.deletes[:0]
	b.size = 0
}

func (b *memBatch) ValueSize() int { return b.size }

func (m *MemDatabase) Close() error { return nil }
