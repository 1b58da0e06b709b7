package docstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore — in-memory реализация Store для тестов и инструментов.
// Семантика версий совпадает с BadgerStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]memEntry
}

type memEntry struct {
	data    []byte
	version uint64
}

// NewMemoryStore создаёт пустое хранилище документов в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]memEntry)}
}

// memTx буферизует записи до Commit.
type memTx struct {
	store  *MemoryStore
	writes []memWrite
	staged map[string]memEntry // Незакоммиченное состояние поверх хранилища
	aborts []func()
	done   bool
}

type memWrite struct {
	id       string
	data     []byte
	expected uint64
}

// Begin открывает транзакцию.
func (ms *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{store: ms, staged: make(map[string]memEntry)}, nil
}

// Get читает документ из закоммиченного состояния.
func (ms *MemoryStore) Get(ctx context.Context, id string) ([]byte, uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, false, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	e, ok := ms.docs[id]
	if !ok {
		return nil, 0, false, nil
	}
	return append([]byte{}, e.data...), e.version, true, nil
}

// Put буферизует запись в транзакции с проверкой версии.
func (ms *MemoryStore) Put(ctx context.Context, tx Tx, id string, data []byte, expectedVersion uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	mt, ok := tx.(*memTx)
	if !ok {
		return 0, fmt.Errorf("несовместимая транзакция: %T", tx)
	}

	// Версия с учётом незакоммиченных записей этой же транзакции
	var current uint64
	if staged, ok := mt.staged[id]; ok {
		current = staged.version
	} else {
		ms.mu.RLock()
		current = ms.docs[id].version
		ms.mu.RUnlock()
	}

	if current != expectedVersion {
		return 0, fmt.Errorf("%w: %s (stored=%d expected=%d)", ErrVersionConflict, id, current, expectedVersion)
	}

	next := memEntry{data: append([]byte{}, data...), version: current + 1}
	mt.staged[id] = next
	mt.writes = append(mt.writes, memWrite{id: id, data: next.data, expected: expectedVersion})
	return next.version, nil
}

// Close очищает хранилище.
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.docs = make(map[string]memEntry)
	return nil
}

// Commit применяет буферизованные записи атомарно, повторно проверяя версии.
// При конфликте выполняются abort-хуки: побочные эффекты транзакции
// откатываются. Хуки зовутся уже после отпускания мьютекса хранилища:
// они берут блокировки вызывающего, под которыми хранилище тоже зовётся.
func (mt *memTx) Commit() error {
	if mt.done {
		return fmt.Errorf("транзакция уже завершена")
	}
	mt.done = true

	err := mt.commitWrites()
	if err != nil {
		mt.runAborts()
		return err
	}
	mt.aborts = nil
	return nil
}

func (mt *memTx) commitWrites() error {
	mt.store.mu.Lock()
	defer mt.store.mu.Unlock()

	// Повторная проверка версий против закоммиченного состояния:
	// вторая запись того же id внутри транзакции проверяется по первой.
	applied := make(map[string]uint64)
	for _, w := range mt.writes {
		current := mt.store.docs[w.id].version
		if v, ok := applied[w.id]; ok {
			current = v
		}
		if current != w.expected {
			return fmt.Errorf("%w: %s (stored=%d expected=%d)", ErrVersionConflict, w.id, current, w.expected)
		}
		applied[w.id] = current + 1
	}

	for _, w := range mt.writes {
		mt.store.docs[w.id] = memEntry{data: w.data, version: mt.store.docs[w.id].version + 1}
	}
	return nil
}

// Discard отбрасывает транзакцию и откатывает её побочные эффекты.
// После успешного Commit — no-op (обычный паттерн defer tx.Discard()).
func (mt *memTx) Discard() {
	if mt.done {
		return
	}
	mt.done = true
	mt.writes = nil
	mt.staged = nil
	mt.runAborts()
}

// OnAbort регистрирует откат, выполняемый при Discard или неуспешном Commit.
func (mt *memTx) OnAbort(fn func()) {
	mt.aborts = append(mt.aborts, fn)
}

// runAborts выполняет хуки отката в обратном порядке регистрации.
func (mt *memTx) runAborts() {
	for i := len(mt.aborts) - 1; i >= 0; i-- {
		mt.aborts[i]()
	}
	mt.aborts = nil
}
