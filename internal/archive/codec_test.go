package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegionCodec дескриптор региона переживает кодирование
func TestRegionCodec(t *testing.T) {
	rec := &RegionRecord{
		Version:                3,
		LandblockCellLength:    8,
		LandblockVerticeLength: 9,
		MapWidthInLandblocks:   254,
		CellSize:               24.0,
	}
	for i := range rec.HeightTable {
		rec.HeightTable[i] = float32(i) * 2
	}

	got, err := DecodeRegion(EncodeRegion(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

// TestRegionCodecValidation битые дескрипторы отклоняются
func TestRegionCodecValidation(t *testing.T) {
	_, err := DecodeRegion([]byte("XXXX0000"))
	assert.ErrorIs(t, err, ErrInvalidMagic)

	_, err = DecodeRegion([]byte("LREG"))
	assert.ErrorIs(t, err, ErrTruncatedData)

	// Вершин должно быть на одну больше, чем ячеек
	bad := &RegionRecord{LandblockCellLength: 8, LandblockVerticeLength: 8, MapWidthInLandblocks: 16}
	_, err = DecodeRegion(EncodeRegion(bad))
	assert.Error(t, err)

	// Нулевая ширина карты
	bad = &RegionRecord{LandblockCellLength: 8, LandblockVerticeLength: 9}
	_, err = DecodeRegion(EncodeRegion(bad))
	assert.Error(t, err)
}

// TestLandblockCodec terrain-запись лэндблока
func TestLandblockCodec(t *testing.T) {
	rec := &LandblockRecord{LandblockID: 0x1234}
	for i := range rec.Entries {
		rec.Entries[i] = uint32(i) * 31
	}

	got, err := DecodeLandblock(EncodeLandblock(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = DecodeLandblock([]byte("LBIN"))
	assert.ErrorIs(t, err, ErrInvalidMagic)

	data := EncodeLandblock(rec)
	_, err = DecodeLandblock(data[:len(data)-4])
	assert.ErrorIs(t, err, ErrTruncatedData)
}

// TestLandblockInfoCodec info-запись с объектами
func TestLandblockInfoCodec(t *testing.T) {
	rec := &LandblockInfoRecord{
		LandblockID: 0x0102,
		Objects: []ObjectRecord{
			{SetupID: 0x02000001, Position: [7]float32{1, 2, 3, 0, 0, 0, 1}, InstanceID: 0x1000000000000001},
			{SetupID: 0x02000002, Position: [7]float32{4, 5, 6, 0, 0, 0, 1}, InstanceID: 0x1000000000000002},
		},
	}

	got, err := DecodeLandblockInfo(EncodeLandblockInfo(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// Пустая запись тоже валидна
	empty := &LandblockInfoRecord{LandblockID: 7}
	got, err = DecodeLandblockInfo(EncodeLandblockInfo(empty))
	require.NoError(t, err)
	assert.Empty(t, got.Objects)
	assert.Equal(t, uint16(7), got.LandblockID)
}

// TestFileIDs идентификаторы файлов внутри региона
func TestFileIDs(t *testing.T) {
	assert.Equal(t, uint32(0x1234FFFF), LandblockTerrainFileID(0x1234))
	assert.Equal(t, uint32(0x1234FFFE), LandblockInfoFileID(0x1234))
	assert.Equal(t, uint32(0x13000000), RegionDescriptorFileID)
}
