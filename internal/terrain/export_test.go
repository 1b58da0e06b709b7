package terrain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dereth/landedit/internal/archive"
	"github.com/dereth/landedit/internal/docstore"
)

// TestSaveToDatsWritesOnlyDirty экспорт перезаписывает только лэндблоки,
// где слитое значение отличается от архивного
func TestSaveToDatsWritesOnlyDirty(t *testing.T) {
	d, docs, reader := newTestDocument(t)
	addTestLayer(t, d, docs, "l1")
	ctx := context.Background()

	// Вершина внутри лэндблока (1,1): затронут ровно один лэндблок
	global := 12*129 + 12
	inTx(t, docs, func(tx docstore.Tx) error {
		_, err := d.SetVertex(ctx, tx, "l1", global, TerrainEntry(0).WithHeight(250))
		return err
	})

	written, err := d.SaveToDats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	rec, ok, err := reader.Landblock(ctx, testRegionID, uint16(NewLandblockID(1, 1)))
	require.NoError(t, err)
	require.True(t, ok)

	// Вершина (12,12) глобально — локальная (4,4) лэндблока (1,1)
	e := UnpackEntry(rec.Entries[4*9+4])
	h, _ := e.Height()
	assert.Equal(t, uint8(250), h, "высота выжжена в архив")
	tt, _ := e.TextureType()
	assert.Equal(t, uint8(baseTexture), tt, "текстура не тронута")

	// Соседняя вершина того же лэндблока осталась базовой
	e = UnpackEntry(rec.Entries[4*9+5])
	h, _ = e.Height()
	assert.Equal(t, uint8(baseHeight), h)

	// Повторный экспорт без новых правок ничего не пишет
	written, err = d.SaveToDats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, written, "слитое уже совпадает с архивом")
}

// TestSaveToDatsBoundaryVertex вершина на стыке лэндблоков попадает
// во все их записи
func TestSaveToDatsBoundaryVertex(t *testing.T) {
	d, docs, _ := newTestDocument(t)
	addTestLayer(t, d, docs, "l1")
	ctx := context.Background()

	// Стык четырёх лэндблоков (gx=gy=8)
	inTx(t, docs, func(tx docstore.Tx) error {
		_, err := d.SetVertex(ctx, tx, "l1", 8*129+8, TerrainEntry(0).WithHeight(1))
		return err
	})

	written, err := d.SaveToDats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, written, "все четыре лэндблока переписаны")
}

// TestSaveToDatsHonorsExportFlag слой вне экспорта не выжигается
func TestSaveToDatsHonorsExportFlag(t *testing.T) {
	d, docs, _ := newTestDocument(t)
	addTestLayer(t, d, docs, "l1")
	ctx := context.Background()

	inTx(t, docs, func(tx docstore.Tx) error {
		_, err := d.SetVertex(ctx, tx, "l1", 20*129+20, TerrainEntry(0).WithHeight(5))
		return err
	})
	inTx(t, docs, func(tx docstore.Tx) error {
		_, _, err := d.SetItemExported(ctx, tx, "l1", false)
		return err
	})

	written, err := d.SaveToDats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, written)

	// Скрытый слой тоже не участвует, даже если экспортируемый
	inTx(t, docs, func(tx docstore.Tx) error {
		_, _, err := d.SetItemExported(ctx, tx, "l1", true)
		return err
	})
	_, _, err = d.SetItemVisible(ctx, "l1", false)
	require.NoError(t, err)

	written, err = d.SaveToDats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, written)
}

// TestSaveToDatsLoadsUnloadedChunks правки из выгруженного документа
// подхватываются при экспорте свежим экземпляром
func TestSaveToDatsLoadsUnloadedChunks(t *testing.T) {
	blobs := archive.NewMemoryStore()
	seedArchive(t, blobs)
	reader, err := archive.NewReader(blobs, archive.ReaderConfig{})
	require.NoError(t, err)
	docs := docstore.NewMemoryStore()
	ctx := context.Background()

	d1 := New(testRegionID, reader, docs, nil)
	require.NoError(t, d1.InitializeForEditing(ctx))
	addTestLayer(t, d1, docs, "l1")
	inTx(t, docs, func(tx docstore.Tx) error {
		_, err := d1.SetVertex(ctx, tx, "l1", 90*129+90, TerrainEntry(0).WithHeight(9))
		return err
	})

	d2 := New(testRegionID, reader, docs, nil)
	require.NoError(t, d2.InitializeForUpdating(ctx))
	assert.Equal(t, 0, d2.LoadedChunkCount())

	written, err := d2.SaveToDats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)
}
