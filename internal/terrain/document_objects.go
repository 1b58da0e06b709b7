package terrain

import (
	"context"
	"fmt"

	"github.com/dereth/landedit/internal/docstore"
)

// Операции над статическими объектами. Владение объектом принадлежит
// слою, в чьи правки он записан; объекты нижних слоёв и базового архива
// скрываются тумбстонами, их данные не трогаются.

// AddStaticObject добавляет объект в слой на лэндблоке lb.
// Повторное добавление ранее затумбстоненного id снимает тумбстон.
func (d *Document) AddStaticObject(ctx context.Context, tx docstore.Tx, layerID string, lb LandblockID, obj StaticObject) (uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, err
	}

	chunkID := lb.Chunk()
	if _, err := d.ensureChunk(ctx, chunkID); err != nil {
		return 0, err
	}

	d.mu.Lock()
	layer := findLayer(d.root, layerID)
	if layer == nil {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
	}
	if layer.IsBase {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrBaseLayerImmutable, layerID)
	}

	edits := layer.edits(chunkID, true)
	edits.RemoveTombstone(obj.InstanceID)
	obj.LayerID = layerID
	edits.ExteriorStaticObjects[lb] = append(edits.ExteriorStaticObjects[lb], obj)
	edits.Version++
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	if err := d.persistChunk(ctx, tx, chunkID); err != nil {
		return 0, err
	}
	d.notifyLandblocks(ctx, []LandblockID{lb})
	return version, nil
}

// DeleteStaticObject удаляет объект из слоя: собственный объект слоя
// изымается из списка, унаследованный снизу — скрывается тумбстоном.
// Возвращает изъятый объект (nil, если слой им не владел).
func (d *Document) DeleteStaticObject(ctx context.Context, tx docstore.Tx, layerID string, lb LandblockID, instanceID uint64) (*StaticObject, uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return nil, 0, err
	}

	chunkID := lb.Chunk()
	if _, err := d.ensureChunk(ctx, chunkID); err != nil {
		return nil, 0, err
	}

	d.mu.Lock()
	layer := findLayer(d.root, layerID)
	if layer == nil {
		d.mu.Unlock()
		return nil, 0, fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
	}
	if layer.IsBase {
		d.mu.Unlock()
		return nil, 0, fmt.Errorf("%w: %s", ErrBaseLayerImmutable, layerID)
	}

	edits := layer.edits(chunkID, true)
	removed := removeInstance(edits.ExteriorStaticObjects, lb, instanceID)
	edits.AddTombstone(instanceID)
	edits.Version++
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	if err := d.persistChunk(ctx, tx, chunkID); err != nil {
		return nil, 0, err
	}
	d.notifyLandblocks(ctx, []LandblockID{lb})
	return removed, version, nil
}

// RestoreStaticObject снимает тумбстон с instance id, возвращая видимость
// объекту нижнего слоя или базового архива. Обратная операция к удалению
// унаследованного объекта.
func (d *Document) RestoreStaticObject(ctx context.Context, tx docstore.Tx, layerID string, lb LandblockID, instanceID uint64) (uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, err
	}

	chunkID := lb.Chunk()
	if _, err := d.ensureChunk(ctx, chunkID); err != nil {
		return 0, err
	}

	d.mu.Lock()
	layer := findLayer(d.root, layerID)
	if layer == nil {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
	}

	edits := layer.edits(chunkID, false)
	if edits == nil || !edits.HasTombstone(instanceID) {
		d.mu.Unlock()
		return d.Version(), nil
	}
	edits.RemoveTombstone(instanceID)
	edits.Version++
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	if err := d.persistChunk(ctx, tx, chunkID); err != nil {
		return 0, err
	}
	d.notifyLandblocks(ctx, []LandblockID{lb})
	return version, nil
}

// UpdateStaticObject перемещает объект между лэндблоками (возможно,
// через границу чанков): изымает его по старому адресу, добавляет новый
// экземпляр по новому и тумбстонит id в обоих наборах правок, чтобы
// объект нижнего слоя не проявился на старом месте.
func (d *Document) UpdateStaticObject(ctx context.Context, tx docstore.Tx, layerID string, oldLb, newLb LandblockID, obj StaticObject) (uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, err
	}

	oldChunk := oldLb.Chunk()
	newChunk := newLb.Chunk()
	if _, err := d.ensureChunk(ctx, oldChunk); err != nil {
		return 0, err
	}
	if oldChunk != newChunk {
		if _, err := d.ensureChunk(ctx, newChunk); err != nil {
			return 0, err
		}
	}

	d.mu.Lock()
	layer := findLayer(d.root, layerID)
	if layer == nil {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
	}
	if layer.IsBase {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrBaseLayerImmutable, layerID)
	}

	oldEdits := layer.edits(oldChunk, true)
	removeInstance(oldEdits.ExteriorStaticObjects, oldLb, obj.InstanceID)
	oldEdits.AddTombstone(obj.InstanceID)
	oldEdits.Version++

	newEdits := layer.edits(newChunk, true)
	newEdits.AddTombstone(obj.InstanceID)
	obj.LayerID = layerID
	newEdits.ExteriorStaticObjects[newLb] = append(newEdits.ExteriorStaticObjects[newLb], obj)
	newEdits.Version++

	version := d.bumpVersionLocked()
	d.mu.Unlock()

	if err := d.persistChunk(ctx, tx, oldChunk); err != nil {
		return 0, err
	}
	if oldChunk != newChunk {
		if err := d.persistChunk(ctx, tx, newChunk); err != nil {
			return 0, err
		}
	}
	d.notifyLandblocks(ctx, []LandblockID{oldLb, newLb})
	return version, nil
}

// LandblockStaticObjects возвращает слитый список объектов лэндблока:
// объекты базового архива, к которым слои в порядке слияния применяют
// тумбстоны и добавления. Невидимые слои пропускаются; поздний слой
// с тем же instance id вытесняет ранний.
func (d *Document) LandblockStaticObjects(ctx context.Context, lb LandblockID) ([]StaticObject, error) {
	if err := d.ensureInitialized(); err != nil {
		return nil, err
	}

	chunk, err := d.ensureChunk(ctx, lb.Chunk())
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	result := append([]StaticObject(nil), chunk.BaseObjects[lb]...)
	walkLayers(d.root, func(l *Layer) {
		if l.IsBase || !isChainVisible(d.root, l.ID) {
			return
		}
		edits, ok := l.Chunks[chunk.ID]
		if !ok {
			return
		}
		// Сначала тумбстоны, затем добавления: слой, заново добавивший
		// удалённый id, снимает собственный тумбстон при добавлении
		if len(edits.DeletedInstanceIDs) > 0 {
			kept := result[:0]
			for _, obj := range result {
				if !edits.HasTombstone(obj.InstanceID) {
					kept = append(kept, obj)
				}
			}
			result = kept
		}
		for _, obj := range edits.ExteriorStaticObjects[lb] {
			kept := result[:0]
			for _, existing := range result {
				if existing.InstanceID != obj.InstanceID {
					kept = append(kept, existing)
				}
			}
			result = append(kept, obj)
		}
	})
	return result, nil
}

// AddBuilding добавляет здание (объект с интерьером) в слой.
func (d *Document) AddBuilding(ctx context.Context, tx docstore.Tx, layerID string, lb LandblockID, b BuildingObject) (uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, err
	}

	chunkID := lb.Chunk()
	if _, err := d.ensureChunk(ctx, chunkID); err != nil {
		return 0, err
	}

	d.mu.Lock()
	layer := findLayer(d.root, layerID)
	if layer == nil {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
	}
	if layer.IsBase {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrBaseLayerImmutable, layerID)
	}

	edits := layer.edits(chunkID, true)
	edits.RemoveTombstone(b.InstanceID)
	b.LayerID = layerID
	edits.Buildings[lb] = append(edits.Buildings[lb], b)
	edits.Version++
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	if err := d.persistChunk(ctx, tx, chunkID); err != nil {
		return 0, err
	}
	d.notifyLandblocks(ctx, []LandblockID{lb})
	return version, nil
}

// SetCell записывает ячейку интерьера в слой. Ключ — instance id ячейки.
func (d *Document) SetCell(ctx context.Context, tx docstore.Tx, layerID string, lb LandblockID, cellID uint32, cell Cell) (uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, err
	}

	chunkID := lb.Chunk()
	if _, err := d.ensureChunk(ctx, chunkID); err != nil {
		return 0, err
	}

	d.mu.Lock()
	layer := findLayer(d.root, layerID)
	if layer == nil {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
	}
	if layer.IsBase {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrBaseLayerImmutable, layerID)
	}

	edits := layer.edits(chunkID, true)
	edits.Cells[cellID] = cell
	edits.Version++
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	if err := d.persistChunk(ctx, tx, chunkID); err != nil {
		return 0, err
	}
	d.notifyLandblocks(ctx, []LandblockID{lb})
	return version, nil
}

// removeInstance изымает объект по instance id из списка лэндблока.
func removeInstance(m map[LandblockID][]StaticObject, lb LandblockID, instanceID uint64) *StaticObject {
	objs := m[lb]
	for i, obj := range objs {
		if obj.InstanceID == instanceID {
			removed := obj
			m[lb] = append(objs[:i], objs[i+1:]...)
			if len(m[lb]) == 0 {
				delete(m, lb)
			}
			return &removed
		}
	}
	return nil
}
