// Package archive реализует хранилище игровых архивов: key-value блобы,
// адресуемые 32-битными числовыми идентификаторами файлов внутри региона.
package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

// Store абстрагирует доступ к файлам архива региона.
// Отсутствие файла — не ошибка: возвращается ok=false.
type Store interface {
	// TryGetFileBytes возвращает содержимое файла или ok=false, если файла нет.
	TryGetFileBytes(ctx context.Context, regionID, fileID uint32) ([]byte, bool, error)

	// PutFileBytes записывает содержимое файла (перезаписывает существующее).
	PutFileBytes(ctx context.Context, regionID, fileID uint32, data []byte) error

	// Close закрывает хранилище.
	Close() error
}

// fileKey формирует ключ BadgerDB для файла архива.
func fileKey(regionID, fileID uint32) []byte {
	return []byte(fmt.Sprintf("file:%08x:%08x", regionID, fileID))
}

// BadgerStore хранит блобы архива в BadgerDB со сжатием zstd.
// Чтения безопасны для конкурентного доступа.
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerStore открывает (или создаёт) архив в указанном каталоге.
func NewBadgerStore(dataPath string) (*BadgerStore, error) {
	dbPath := filepath.Join(dataPath, "archive")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		enc:     enc,
		dec:     dec,
		isReady: true,
	}, nil
}

// TryGetFileBytes читает и распаковывает блоб из BadgerDB.
func (bs *BadgerStore) TryGetFileBytes(ctx context.Context, regionID, fileID uint32) ([]byte, bool, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, false, fmt.Errorf("хранилище не готово")
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var compressed []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(regionID, fileID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			compressed = append([]byte{}, val...)
			return nil
		})
	})

	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	data, err := bs.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка распаковки файла %08x: %w", fileID, err)
	}
	return data, true, nil
}

// PutFileBytes сжимает и записывает блоб в BadgerDB.
func (bs *BadgerStore) PutFileBytes(ctx context.Context, regionID, fileID uint32, data []byte) error {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	compressed := bs.enc.EncodeAll(data, nil)

	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fileKey(regionID, fileID), compressed)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// Close закрывает хранилище.
func (bs *BadgerStore) Close() error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if !bs.isReady {
		return nil
	}
	bs.isReady = false
	bs.enc.Close()
	bs.dec.Close()
	return bs.db.Close()
}

// MemoryStore хранит блобы в памяти. Используется в тестах и генераторе регионов.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[uint64][]byte
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[uint64][]byte)}
}

func memKey(regionID, fileID uint32) uint64 {
	return uint64(regionID)<<32 | uint64(fileID)
}

// TryGetFileBytes возвращает копию блоба или ok=false.
func (ms *MemoryStore) TryGetFileBytes(ctx context.Context, regionID, fileID uint32) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	data, ok := ms.files[memKey(regionID, fileID)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, data...), true, nil
}

// PutFileBytes сохраняет копию блоба.
func (ms *MemoryStore) PutFileBytes(ctx context.Context, regionID, fileID uint32, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.files[memKey(regionID, fileID)] = append([]byte{}, data...)
	return nil
}

// Close не делает ничего для in-memory хранилища.
func (ms *MemoryStore) Close() error { return nil }
