package terrain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dereth/landedit/internal/docstore"
)

// TestInstanceIDEncoding кодировка instance id: тип, лэндблок, номер
func TestInstanceIDEncoding(t *testing.T) {
	lb := NewLandblockID(0xAB, 0xCD)
	id := MakeInstanceID(InstanceTypeBuilding, lb, 12345)

	assert.Equal(t, InstanceTypeBuilding, InstanceType(id))
	assert.Equal(t, lb, InstanceLandblock(id))
	assert.Equal(t, uint64(12345), id&InstanceSequenceMask)

	// Переполнение номера обрезается по маске, не задевая лэндблок
	big := MakeInstanceID(InstanceTypeStatic, lb, InstanceSequenceMask+7)
	assert.Equal(t, lb, InstanceLandblock(big))
	assert.Equal(t, uint64(6), big&InstanceSequenceMask)
}

// TestStaticObjectLifecycle добавление, слитый список, удаление своего объекта
func TestStaticObjectLifecycle(t *testing.T) {
	d, docs, _ := newTestDocument(t)
	addTestLayer(t, d, docs, "l1")
	ctx := context.Background()

	lb := NewLandblockID(1, 1)
	obj := StaticObject{
		SetupID:    0x02000010,
		Position:   [7]float32{5, 5, 0, 0, 0, 0, 1},
		InstanceID: MakeInstanceID(InstanceTypeStatic, lb, 1),
	}

	inTx(t, docs, func(tx docstore.Tx) error {
		_, err := d.AddStaticObject(ctx, tx, "l1", lb, obj)
		return err
	})

	objs, err := d.LandblockStaticObjects(ctx, lb)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, obj.InstanceID, objs[0].InstanceID)
	assert.Equal(t, "l1", objs[0].LayerID, "владелец проставлен")

	// Удаление собственного объекта возвращает его для undo
	var removed *StaticObject
	inTx(t, docs, func(tx docstore.Tx) error {
		var err error
		removed, _, err = d.DeleteStaticObject(ctx, tx, "l1", lb, obj.InstanceID)
		return err
	})
	require.NotNil(t, removed)
	assert.Equal(t, obj.SetupID, removed.SetupID)

	objs, err = d.LandblockStaticObjects(ctx, lb)
	require.NoError(t, err)
	assert.Empty(t, objs)
}

// TestTombstoneHidesBaseObject удаление унаследованного объекта —
// тумбстон; данные базового архива не трогаются
func TestTombstoneHidesBaseObject(t *testing.T) {
	d, docs, reader := newTestDocument(t)
	addTestLayer(t, d, docs, "l1")
	ctx := context.Background()

	lb := NewLandblockID(0, 0) // Базовый объект заселён seedArchive

	objs, err := d.LandblockStaticObjects(ctx, lb)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, baseInstanceID, objs[0].InstanceID)

	var removed *StaticObject
	inTx(t, docs, func(tx docstore.Tx) error {
		var err error
		removed, _, err = d.DeleteStaticObject(ctx, tx, "l1", lb, baseInstanceID)
		return err
	})
	assert.Nil(t, removed, "слой не владел объектом — только тумбстон")

	objs, err = d.LandblockStaticObjects(ctx, lb)
	require.NoError(t, err)
	assert.Empty(t, objs, "тумбстон скрывает базовый объект")

	// Архив не изменился
	info, ok, err := reader.LandblockInfo(ctx, testRegionID, uint16(lb))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, info.Objects, 1)

	// Снятие тумбстона возвращает объект
	inTx(t, docs, func(tx docstore.Tx) error {
		_, err := d.RestoreStaticObject(ctx, tx, "l1", lb, baseInstanceID)
		return err
	})
	objs, err = d.LandblockStaticObjects(ctx, lb)
	require.NoError(t, err)
	assert.Len(t, objs, 1)
}

// TestTombstoneScopedToLayer тумбстон действует только в своём слое:
// скрытие слоя возвращает объект
func TestTombstoneScopedToLayer(t *testing.T) {
	d, docs, _ := newTestDocument(t)
	addTestLayer(t, d, docs, "l1")
	ctx := context.Background()

	lb := NewLandblockID(0, 0)
	inTx(t, docs, func(tx docstore.Tx) error {
		_, _, err := d.DeleteStaticObject(ctx, tx, "l1", lb, baseInstanceID)
		return err
	})

	_, _, err := d.SetItemVisible(ctx, "l1", false)
	require.NoError(t, err)

	objs, err := d.LandblockStaticObjects(ctx, lb)
	require.NoError(t, err)
	assert.Len(t, objs, 1, "тумбстон невидимого слоя не применяется")
}

// TestMoveStaticObject перемещение между лэндблоками разных чанков
func TestMoveStaticObject(t *testing.T) {
	d, docs, _ := newTestDocument(t)
	addTestLayer(t, d, docs, "l1")
	ctx := context.Background()

	oldLb := NewLandblockID(7, 7) // Чанк (0,0)
	newLb := NewLandblockID(8, 7) // Чанк (1,0)
	obj := StaticObject{
		SetupID:    0x02000020,
		InstanceID: MakeInstanceID(InstanceTypeStatic, oldLb, 2),
	}

	inTx(t, docs, func(tx docstore.Tx) error {
		_, err := d.AddStaticObject(ctx, tx, "l1", oldLb, obj)
		return err
	})
	inTx(t, docs, func(tx docstore.Tx) error {
		moved := obj
		moved.Position = [7]float32{1, 2, 3, 0, 0, 0, 1}
		_, err := d.UpdateStaticObject(ctx, tx, "l1", oldLb, newLb, moved)
		return err
	})

	objs, err := d.LandblockStaticObjects(ctx, oldLb)
	require.NoError(t, err)
	assert.Empty(t, objs, "на старом месте объекта нет")

	objs, err = d.LandblockStaticObjects(ctx, newLb)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, obj.InstanceID, objs[0].InstanceID)
	assert.Equal(t, float32(3), objs[0].Position[2])
}

// TestLaterLayerWinsOnSameInstance поздний слой вытесняет одноимённый id
func TestLaterLayerWinsOnSameInstance(t *testing.T) {
	d, docs, _ := newTestDocument(t)
	addTestLayer(t, d, docs, "l1")
	addTestLayer(t, d, docs, "l2")
	ctx := context.Background()

	lb := NewLandblockID(3, 3)
	id := MakeInstanceID(InstanceTypeStatic, lb, 3)

	inTx(t, docs, func(tx docstore.Tx) error {
		if _, err := d.AddStaticObject(ctx, tx, "l1", lb, StaticObject{SetupID: 1, InstanceID: id}); err != nil {
			return err
		}
		_, err := d.AddStaticObject(ctx, tx, "l2", lb, StaticObject{SetupID: 2, InstanceID: id})
		return err
	})

	objs, err := d.LandblockStaticObjects(ctx, lb)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, uint32(2), objs[0].SetupID)
	assert.Equal(t, "l2", objs[0].LayerID)
}

// TestAddBuildingAndCell здания и ячейки интерьера персистятся в правках
func TestAddBuildingAndCell(t *testing.T) {
	d, docs, _ := newTestDocument(t)
	addTestLayer(t, d, docs, "l1")
	ctx := context.Background()

	lb := NewLandblockID(4, 4)
	b := BuildingObject{
		StaticObject: StaticObject{SetupID: 0x01000001, InstanceID: MakeInstanceID(InstanceTypeBuilding, lb, 1)},
		NumFloors:    2,
	}
	cellID := uint32(MakeInstanceID(InstanceTypeCell, lb, 1))

	inTx(t, docs, func(tx docstore.Tx) error {
		if _, err := d.AddBuilding(ctx, tx, "l1", lb, b); err != nil {
			return err
		}
		_, err := d.SetCell(ctx, tx, "l1", lb, cellID, Cell{CellID: cellID, EnvironmentID: 7})
		return err
	})

	layer, ok := d.FindLayer("l1")
	require.True(t, ok)
	edits := layer.Chunks[lb.Chunk()]
	require.NotNil(t, edits)
	assert.Len(t, edits.Buildings[lb], 1)
	assert.Equal(t, uint32(7), edits.Cells[cellID].EnvironmentID)
}
