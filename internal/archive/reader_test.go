package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryStoreRoundTrip запись и чтение блобов
func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.TryGetFileBytes(ctx, 1, 42)
	require.NoError(t, err)
	assert.False(t, ok, "отсутствие файла — не ошибка")

	require.NoError(t, store.PutFileBytes(ctx, 1, 42, []byte("payload")))
	data, ok, err := store.TryGetFileBytes(ctx, 1, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)

	// Файлы разных регионов не пересекаются
	_, ok, err = store.TryGetFileBytes(ctx, 2, 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestReaderDecodesRecords Reader разбирает записи через кодек
func TestReaderDecodesRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	region := &RegionRecord{
		Version:                1,
		LandblockCellLength:    8,
		LandblockVerticeLength: 9,
		MapWidthInLandblocks:   16,
		CellSize:               24.0,
	}
	require.NoError(t, store.PutFileBytes(ctx, 1, RegionDescriptorFileID, EncodeRegion(region)))

	lb := &LandblockRecord{LandblockID: 0x0101}
	lb.Entries[0] = 0xDEAD
	require.NoError(t, store.PutFileBytes(ctx, 1, LandblockTerrainFileID(0x0101), EncodeLandblock(lb)))

	reader, err := NewReader(store, ReaderConfig{})
	require.NoError(t, err)
	defer reader.Close()

	got, ok, err := reader.Region(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, region, got)

	rec, ok, err := reader.Landblock(ctx, 1, 0x0101)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0xDEAD), rec.Entries[0])

	// Отсутствующий лэндблок
	_, ok, err = reader.Landblock(ctx, 1, 0x0202)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestReaderPutInvalidatesCache запись лэндблока видна следующему чтению
func TestReaderPutInvalidatesCache(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	lb := &LandblockRecord{LandblockID: 5}
	lb.Entries[0] = 1
	require.NoError(t, store.PutFileBytes(ctx, 1, LandblockTerrainFileID(5), EncodeLandblock(lb)))

	reader, err := NewReader(store, ReaderConfig{})
	require.NoError(t, err)
	defer reader.Close()

	rec, ok, err := reader.Landblock(ctx, 1, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), rec.Entries[0])

	rec.Entries[0] = 2
	require.NoError(t, reader.PutLandblock(ctx, 1, rec))

	got, ok, err := reader.Landblock(ctx, 1, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(2), got.Entries[0])
}
