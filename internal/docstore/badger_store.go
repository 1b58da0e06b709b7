package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// envelope — служебная обёртка документа в BadgerDB: версия + полезная нагрузка.
type envelope struct {
	Version uint64          `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// BadgerStore хранит документы в BadgerDB.
type BadgerStore struct {
	db      *badger.DB
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerStore открывает (или создаёт) хранилище документов.
func NewBadgerStore(dataPath string) (*BadgerStore, error) {
	dbPath := filepath.Join(dataPath, "documents")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{db: db, isReady: true}, nil
}

type badgerTx struct {
	txn    *badger.Txn
	aborts []func()
	done   bool
}

// Commit фиксирует транзакцию; при ошибке BadgerDB выполняет abort-хуки.
func (t *badgerTx) Commit() error {
	if t.done {
		return fmt.Errorf("транзакция уже завершена")
	}
	t.done = true
	if err := t.txn.Commit(); err != nil {
		t.runAborts()
		return err
	}
	t.aborts = nil
	return nil
}

// Discard отбрасывает транзакцию и откатывает её побочные эффекты.
// После успешного Commit — no-op.
func (t *badgerTx) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.txn.Discard()
	t.runAborts()
}

// OnAbort регистрирует откат, выполняемый при Discard или неуспешном Commit.
func (t *badgerTx) OnAbort(fn func()) {
	t.aborts = append(t.aborts, fn)
}

func (t *badgerTx) runAborts() {
	for i := len(t.aborts) - 1; i >= 0; i-- {
		t.aborts[i]()
	}
	t.aborts = nil
}

// Begin открывает read-write транзакцию BadgerDB.
func (bs *BadgerStore) Begin(ctx context.Context) (Tx, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &badgerTx{txn: bs.db.NewTransaction(true)}, nil
}

// Get читает документ вне транзакций.
func (bs *BadgerStore) Get(ctx context.Context, id string) ([]byte, uint64, bool, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, 0, false, fmt.Errorf("хранилище не готово")
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, false, err
	}

	var raw []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, false, fmt.Errorf("повреждённый документ %s: %w", id, err)
	}
	return env.Payload, env.Version, true, nil
}

// Put записывает документ внутри транзакции с проверкой версии.
func (bs *BadgerStore) Put(ctx context.Context, tx Tx, id string, data []byte, expectedVersion uint64) (uint64, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return 0, fmt.Errorf("хранилище не готово")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	bt, ok := tx.(*badgerTx)
	if !ok {
		return 0, fmt.Errorf("несовместимая транзакция: %T", tx)
	}

	// Проверяем версию внутри транзакции
	var current uint64
	item, err := bt.txn.Get([]byte(id))
	switch err {
	case nil:
		var env envelope
		if verr := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); verr != nil {
			return 0, fmt.Errorf("повреждённый документ %s: %w", id, verr)
		}
		current = env.Version
	case badger.ErrKeyNotFound:
		current = 0
	default:
		return 0, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	if current != expectedVersion {
		return 0, fmt.Errorf("%w: %s (stored=%d expected=%d)", ErrVersionConflict, id, current, expectedVersion)
	}

	env := envelope{Version: current + 1, Payload: data}
	raw, err := json.Marshal(&env)
	if err != nil {
		return 0, fmt.Errorf("ошибка сериализации документа %s: %w", id, err)
	}

	if err := bt.txn.Set([]byte(id), raw); err != nil {
		return 0, fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return env.Version, nil
}

// Close закрывает хранилище.
func (bs *BadgerStore) Close() error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if !bs.isReady {
		return nil
	}
	bs.isReady = false
	return bs.db.Close()
}
