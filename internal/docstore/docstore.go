// Package docstore реализует транзакционное хранилище документов правок.
// Документы адресуются строковыми id и версионируются монотонным счётчиком
// для оптимистичного контроля конкуренции.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Ошибки хранилища документов. Сообщения проходят к вызывающему без обёртки.
var (
	ErrNotFound        = errors.New("Document not found")
	ErrAlreadyExists   = errors.New("Document already exists")
	ErrVersionConflict = errors.New("Document version conflict")
)

// Tx — транзакция хранилища. Все записи внутри одной транзакции
// применяются атомарно при Commit.
type Tx interface {
	Commit() error
	Discard()

	// OnAbort регистрирует откат побочных эффектов транзакции.
	// Хуки выполняются в обратном порядке при Discard или неуспешном
	// Commit; успешный Commit их отбрасывает.
	OnAbort(fn func())
}

// Store — низкоуровневый интерфейс хранилища: байты + версии.
// Типизированный доступ — через дженерик-функции Rent/Create/Persist.
type Store interface {
	// Begin открывает транзакцию записи.
	Begin(ctx context.Context) (Tx, error)

	// Get возвращает данные и версию документа; ok=false, если документа нет.
	Get(ctx context.Context, id string) (data []byte, version uint64, ok bool, err error)

	// Put записывает документ в транзакции. expectedVersion — версия,
	// которую вызывающий читал последней (0 для нового документа);
	// при расхождении возвращается ErrVersionConflict.
	Put(ctx context.Context, tx Tx, id string, data []byte, expectedVersion uint64) (newVersion uint64, err error)

	// Close закрывает хранилище.
	Close() error
}

// Rental — арендованный документ: десериализованное содержимое
// плюс версия, с которой он был прочитан.
type Rental[T any] struct {
	ID      string
	Doc     T
	version uint64
}

// Version возвращает версию, с которой документ был прочитан или сохранён.
func (r *Rental[T]) Version() uint64 { return r.version }

// Rent загружает документ и возвращает аренду.
// Возвращает ErrNotFound, если документа нет.
func Rent[T any](ctx context.Context, s Store, id string) (*Rental[T], error) {
	data, version, ok, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	r := &Rental[T]{ID: id, version: version}
	if err := json.Unmarshal(data, &r.Doc); err != nil {
		return nil, fmt.Errorf("ошибка десериализации документа %s: %w", id, err)
	}
	return r, nil
}

// Create создаёт новый документ в транзакции.
// Возвращает ErrAlreadyExists, если документ уже существует.
func Create[T any](ctx context.Context, s Store, tx Tx, id string, doc T) (*Rental[T], error) {
	if _, _, ok, err := s.Get(ctx, id); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации документа %s: %w", id, err)
	}

	version, err := s.Put(ctx, tx, id, data, 0)
	if err != nil {
		return nil, err
	}
	return &Rental[T]{ID: id, Doc: doc, version: version}, nil
}

// Persist сохраняет арендованный документ в транзакции
// с оптимистичной проверкой версии. Версия аренды продвигается сразу,
// чтобы повторный Persist в той же транзакции прошёл проверку, и
// откатывается, если транзакция не закоммитилась.
func Persist[T any](ctx context.Context, s Store, tx Tx, r *Rental[T]) error {
	data, err := json.Marshal(r.Doc)
	if err != nil {
		return fmt.Errorf("ошибка сериализации документа %s: %w", r.ID, err)
	}

	version, err := s.Put(ctx, tx, r.ID, data, r.version)
	if err != nil {
		return err
	}
	prev := r.version
	r.version = version
	tx.OnAbort(func() { r.version = prev })
	return nil
}

// RentOrCreate возвращает существующий документ или создаёт новый из seed.
func RentOrCreate[T any](ctx context.Context, s Store, tx Tx, id string, seed T) (*Rental[T], error) {
	r, err := Rent[T](ctx, s, id)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return Create(ctx, s, tx, id, seed)
}
