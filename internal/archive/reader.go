package archive

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// Reader даёт типизированный доступ к записям архива поверх Store
// и кеширует распакованные записи: при повторных загрузках чанков
// один и тот же лэндблок не декодируется дважды.
type Reader struct {
	store Store
	cache *ristretto.Cache[uint64, any]
}

// ReaderConfig настраивает кеш записей.
type ReaderConfig struct {
	CacheEntries int64 // Ожидаемое число записей в кеше
	CacheMaxCost int64 // Бюджет кеша в байтах
}

// NewReader создаёт Reader с ristretto-кешем распакованных записей.
func NewReader(store Store, cfg ReaderConfig) (*Reader, error) {
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = 4096
	}
	if cfg.CacheMaxCost <= 0 {
		cfg.CacheMaxCost = 64 << 20
	}

	cache, err := ristretto.NewCache(&ristretto.Config[uint64, any]{
		NumCounters: cfg.CacheEntries * 10,
		MaxCost:     cfg.CacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto cache: %w", err)
	}

	return &Reader{store: store, cache: cache}, nil
}

// Store возвращает нижележащее хранилище.
func (r *Reader) Store() Store { return r.store }

// Close освобождает кеш. Нижележащий Store не закрывается.
func (r *Reader) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}

// Region читает дескриптор региона. ok=false, если файла нет.
func (r *Reader) Region(ctx context.Context, regionID uint32) (*RegionRecord, bool, error) {
	data, ok, err := r.store.TryGetFileBytes(ctx, regionID, RegionDescriptorFileID)
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := DecodeRegion(data)
	if err != nil {
		return nil, false, fmt.Errorf("region %d: %w", regionID, err)
	}
	return rec, true, nil
}

// Landblock читает terrain-запись лэндблока через кеш.
func (r *Reader) Landblock(ctx context.Context, regionID uint32, landblockID uint16) (*LandblockRecord, bool, error) {
	key := cacheKey(regionID, LandblockTerrainFileID(landblockID))
	if v, hit := r.cache.Get(key); hit {
		if rec, ok := v.(*LandblockRecord); ok {
			return rec, true, nil
		}
	}

	data, ok, err := r.store.TryGetFileBytes(ctx, regionID, LandblockTerrainFileID(landblockID))
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := DecodeLandblock(data)
	if err != nil {
		return nil, false, fmt.Errorf("landblock %04x: %w", landblockID, err)
	}

	r.cache.Set(key, rec, int64(len(data)))
	return rec, true, nil
}

// LandblockInfo читает info-запись лэндблока (объекты базового архива) через кеш.
func (r *Reader) LandblockInfo(ctx context.Context, regionID uint32, landblockID uint16) (*LandblockInfoRecord, bool, error) {
	key := cacheKey(regionID, LandblockInfoFileID(landblockID))
	if v, hit := r.cache.Get(key); hit {
		if rec, ok := v.(*LandblockInfoRecord); ok {
			return rec, true, nil
		}
	}

	data, ok, err := r.store.TryGetFileBytes(ctx, regionID, LandblockInfoFileID(landblockID))
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := DecodeLandblockInfo(data)
	if err != nil {
		return nil, false, fmt.Errorf("landblock info %04x: %w", landblockID, err)
	}

	r.cache.Set(key, rec, int64(len(data)))
	return rec, true, nil
}

// PutLandblock записывает terrain-запись и инвалидирует кеш.
func (r *Reader) PutLandblock(ctx context.Context, regionID uint32, rec *LandblockRecord) error {
	data := EncodeLandblock(rec)
	if err := r.store.PutFileBytes(ctx, regionID, LandblockTerrainFileID(rec.LandblockID), data); err != nil {
		return err
	}
	r.cache.Del(cacheKey(regionID, LandblockTerrainFileID(rec.LandblockID)))
	return nil
}

func cacheKey(regionID, fileID uint32) uint64 {
	return uint64(regionID)<<32 | uint64(fileID)
}
