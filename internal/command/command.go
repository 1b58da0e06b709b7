// Package command реализует обратимые команды редактора поверх движка
// слияния: каждая команда применяется в транзакции и возвращает свою
// обратную, из которых стек собирает undo/redo.
package command

import (
	"context"
	"errors"
	"sync"

	"github.com/dereth/landedit/internal/docstore"
	"github.com/dereth/landedit/internal/logging"
	"github.com/dereth/landedit/internal/terrain"
)

// ErrNothingToUndo — история undo пуста.
var ErrNothingToUndo = errors.New("Nothing to undo")

// ErrNothingToRedo — история redo пуста.
var ErrNothingToRedo = errors.New("Nothing to redo")

// Command — обратимая операция над документом. Apply выполняет её
// в рамках переданной транзакции и возвращает обратную команду.
type Command interface {
	Name() string
	Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error)
}

// Stack — стек undo/redo. Каждая команда применяется и коммитится
// атомарно; новая команда усекает хвост redo.
type Stack struct {
	mu    sync.Mutex
	doc   *terrain.Document
	store docstore.Store
	undo  []Command
	redo  []Command
	limit int
	log   *logging.Logger
}

// NewStack создаёт стек с ограничением глубины истории.
func NewStack(doc *terrain.Document, store docstore.Store, limit int) *Stack {
	if limit <= 0 {
		limit = 256
	}
	return &Stack{
		doc:   doc,
		store: store,
		limit: limit,
		log:   logging.GetTerrainLogger(),
	}
}

// Do применяет команду, коммитит её и кладёт обратную в историю undo.
// Хвост redo усекается: ветвление истории не поддерживается.
func (s *Stack) Do(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inverse, err := s.apply(ctx, cmd)
	if err != nil {
		return err
	}

	s.undo = append(s.undo, inverse)
	if len(s.undo) > s.limit {
		s.undo = s.undo[len(s.undo)-s.limit:]
	}
	s.redo = s.redo[:0]
	s.log.Debug("Команда %s применена (undo: %d)", cmd.Name(), len(s.undo))
	return nil
}

// Undo откатывает последнюю команду.
func (s *Stack) Undo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.undo) == 0 {
		return ErrNothingToUndo
	}
	cmd := s.undo[len(s.undo)-1]

	inverse, err := s.apply(ctx, cmd)
	if err != nil {
		return err
	}
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, inverse)
	return nil
}

// Redo повторяет последнюю откаченную команду.
func (s *Stack) Redo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.redo) == 0 {
		return ErrNothingToRedo
	}
	cmd := s.redo[len(s.redo)-1]

	inverse, err := s.apply(ctx, cmd)
	if err != nil {
		return err
	}
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, inverse)
	return nil
}

// apply выполняет команду в свежей транзакции и коммитит её.
func (s *Stack) apply(ctx context.Context, cmd Command) (Command, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Discard()

	inverse, err := cmd.Apply(ctx, s.doc, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inverse, nil
}

// CanUndo сообщает, есть ли что откатывать.
func (s *Stack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo) > 0
}

// CanRedo сообщает, есть ли что повторять.
func (s *Stack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo) > 0
}

// Clear сбрасывает обе истории.
func (s *Stack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = s.undo[:0]
	s.redo = s.redo[:0]
}
