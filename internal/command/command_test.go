package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dereth/landedit/internal/archive"
	"github.com/dereth/landedit/internal/docstore"
	"github.com/dereth/landedit/internal/terrain"
)

const (
	testRegionID = 1
	baseHeight   = 100
)

// newTestStack собирает документ и стек поверх in-memory хранилищ.
func newTestStack(t *testing.T) (*Stack, *terrain.Document) {
	t.Helper()
	ctx := context.Background()

	blobs := archive.NewMemoryStore()
	region := &archive.RegionRecord{
		Version:                1,
		LandblockCellLength:    8,
		LandblockVerticeLength: 9,
		MapWidthInLandblocks:   16,
		CellSize:               24.0,
	}
	require.NoError(t, blobs.PutFileBytes(ctx, testRegionID, archive.RegionDescriptorFileID, archive.EncodeRegion(region)))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			lb := terrain.NewLandblockID(uint8(x), uint8(y))
			rec := &archive.LandblockRecord{LandblockID: uint16(lb)}
			for i := range rec.Entries {
				rec.Entries[i] = terrain.FullEntry(baseHeight, 5, 0, 0, 0).Pack()
			}
			require.NoError(t, blobs.PutFileBytes(ctx, testRegionID,
				archive.LandblockTerrainFileID(uint16(lb)), archive.EncodeLandblock(rec)))
		}
	}

	reader, err := archive.NewReader(blobs, archive.ReaderConfig{})
	require.NoError(t, err)

	docs := docstore.NewMemoryStore()
	doc := terrain.New(testRegionID, reader, docs, nil)
	require.NoError(t, doc.InitializeForEditing(ctx))

	stack := NewStack(doc, docs, 16)
	require.NoError(t, stack.Do(ctx, &AddLayer{LayerID: "l1", LayerName: "L1", Index: -1}))
	return stack, doc
}

func mergedHeight(t *testing.T, doc *terrain.Document, global int) uint8 {
	t.Helper()
	e, err := doc.GetCachedEntry(context.Background(), global)
	require.NoError(t, err)
	h, _ := e.Height()
	return h
}

// TestUndoRedoTerrainUpdate правка вершины откатывается и повторяется
func TestUndoRedoTerrainUpdate(t *testing.T) {
	stack, doc := newTestStack(t)
	ctx := context.Background()
	global := 10*129 + 10

	require.NoError(t, stack.Do(ctx, &TerrainUpdate{
		LayerID: "l1", Vertex: global,
		Entry: terrain.TerrainEntry(0).WithHeight(200),
	}))
	assert.Equal(t, uint8(200), mergedHeight(t, doc, global))
	assert.True(t, stack.CanUndo())

	require.NoError(t, stack.Undo(ctx))
	assert.Equal(t, uint8(baseHeight), mergedHeight(t, doc, global), "откат вернул базу")
	assert.True(t, stack.CanRedo())

	require.NoError(t, stack.Redo(ctx))
	assert.Equal(t, uint8(200), mergedHeight(t, doc, global))
}

// TestUndoRestoresPreviousOverride откат второй правки возвращает первую
func TestUndoRestoresPreviousOverride(t *testing.T) {
	stack, doc := newTestStack(t)
	ctx := context.Background()
	global := 20*129 + 20

	require.NoError(t, stack.Do(ctx, &TerrainUpdate{LayerID: "l1", Vertex: global, Entry: terrain.TerrainEntry(0).WithHeight(50)}))
	require.NoError(t, stack.Do(ctx, &TerrainUpdate{LayerID: "l1", Vertex: global, Entry: terrain.TerrainEntry(0).WithHeight(60)}))

	require.NoError(t, stack.Undo(ctx))
	assert.Equal(t, uint8(50), mergedHeight(t, doc, global))
	require.NoError(t, stack.Undo(ctx))
	assert.Equal(t, uint8(baseHeight), mergedHeight(t, doc, global))
}

// TestDoTruncatesRedo новая команда обрезает хвост redo
func TestDoTruncatesRedo(t *testing.T) {
	stack, _ := newTestStack(t)
	ctx := context.Background()
	global := 30*129 + 30

	require.NoError(t, stack.Do(ctx, &TerrainUpdate{LayerID: "l1", Vertex: global, Entry: terrain.TerrainEntry(0).WithHeight(1)}))
	require.NoError(t, stack.Undo(ctx))
	require.True(t, stack.CanRedo())

	require.NoError(t, stack.Do(ctx, &TerrainUpdate{LayerID: "l1", Vertex: global, Entry: terrain.TerrainEntry(0).WithHeight(2)}))
	assert.False(t, stack.CanRedo(), "ветвление истории не поддерживается")
}

// TestUndoRedoEmpty пустые истории возвращают сигнальные ошибки
func TestUndoRedoEmpty(t *testing.T) {
	stack, _ := newTestStack(t)
	stack.Clear()

	assert.ErrorIs(t, stack.Undo(context.Background()), ErrNothingToUndo)
	assert.ErrorIs(t, stack.Redo(context.Background()), ErrNothingToRedo)
}

// TestUndoRemoveLayerRestoresEdits откат удаления слоя возвращает
// слой вместе с правками
func TestUndoRemoveLayerRestoresEdits(t *testing.T) {
	stack, doc := newTestStack(t)
	ctx := context.Background()
	global := 40*129 + 40

	require.NoError(t, stack.Do(ctx, &TerrainUpdate{LayerID: "l1", Vertex: global, Entry: terrain.TerrainEntry(0).WithHeight(77)}))
	require.NoError(t, stack.Do(ctx, &RemoveItem{ItemID: "l1"}))
	assert.Equal(t, uint8(baseHeight), mergedHeight(t, doc, global))

	require.NoError(t, stack.Undo(ctx))
	assert.Equal(t, []string{terrain.BaseLayerID, "l1"}, doc.LayerIDs())
	assert.Equal(t, uint8(77), mergedHeight(t, doc, global), "правки вернулись")
}

// TestReorderInverse обратная перестановка восстанавливает порядок
func TestReorderInverse(t *testing.T) {
	stack, doc := newTestStack(t)
	ctx := context.Background()

	require.NoError(t, stack.Do(ctx, &AddLayer{LayerID: "l2", LayerName: "L2", Index: -1}))
	require.NoError(t, stack.Do(ctx, &ReorderItem{ItemID: "l2", NewIndex: 1}))
	assert.Equal(t, []string{terrain.BaseLayerID, "l2", "l1"}, doc.LayerIDs())

	require.NoError(t, stack.Undo(ctx))
	assert.Equal(t, []string{terrain.BaseLayerID, "l1", "l2"}, doc.LayerIDs())
}

// TestFailedCommandLeavesHistory ошибочная команда не попадает в историю
func TestFailedCommandLeavesHistory(t *testing.T) {
	stack, _ := newTestStack(t)
	ctx := context.Background()

	before := len(stack.undo)
	err := stack.Do(ctx, &TerrainUpdate{LayerID: "nope", Vertex: 0, Entry: terrain.TerrainEntry(0).WithHeight(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, terrain.ErrLayerNotFound)
	assert.Len(t, stack.undo, before, "ошибочная команда не добавлена в историю")
}

// TestUndoDeleteInheritedObject откат удаления унаследованного объекта
// снимает тумбстон
func TestUndoDeleteInheritedObject(t *testing.T) {
	stack, doc := newTestStack(t)
	ctx := context.Background()

	lb := terrain.NewLandblockID(2, 2)
	obj := terrain.StaticObject{
		SetupID:    0x02000001,
		InstanceID: terrain.MakeInstanceID(terrain.InstanceTypeStatic, lb, 1),
	}
	require.NoError(t, stack.Do(ctx, &AddStaticObject{LayerID: "l1", Landblock: lb, Object: obj}))

	// l2 выше l1 наследует объект и удаляет его тумбстоном
	require.NoError(t, stack.Do(ctx, &AddLayer{LayerID: "l2", LayerName: "L2", Index: -1}))
	require.NoError(t, stack.Do(ctx, &DeleteStaticObject{LayerID: "l2", Landblock: lb, InstanceID: obj.InstanceID}))

	objs, err := doc.LandblockStaticObjects(ctx, lb)
	require.NoError(t, err)
	assert.Empty(t, objs)

	require.NoError(t, stack.Undo(ctx))
	objs, err = doc.LandblockStaticObjects(ctx, lb)
	require.NoError(t, err)
	assert.Len(t, objs, 1, "откат снял тумбстон")
}
