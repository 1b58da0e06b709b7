package terrain

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dereth/landedit/internal/docstore"
)

// Операции над деревом слоёв. Каждая мутация возвращает новую версию
// документа; персист идёт в транзакции вызывающего — командный слой
// решает, когда коммитить.

// insertChildLocked вставляет узел в группу с учётом резервирования
// позиции 0 корня под базовый слой. Индекс вне диапазона прижимается
// к границам. Требует d.mu.
func (d *Document) insertChildLocked(group *LayerGroup, node LayerNode, index int) {
	if index < 0 || index > len(group.Children) {
		index = len(group.Children)
	}
	if containsBaseLayer(node) && group == d.root {
		index = 0
	} else if index == 0 && group == d.root && len(group.Children) > 0 && containsBaseLayer(group.Children[0]) {
		index = 1
	}

	group.Children = append(group.Children, nil)
	copy(group.Children[index+1:], group.Children[index:])
	group.Children[index] = node
}

// registerSubtreeLocked регистрирует id узлов поддерева, проверяя дубликаты. Требует d.mu.
func (d *Document) registerSubtreeLocked(node LayerNode) error {
	var dup string
	walkNodes(node, func(n LayerNode) {
		if _, ok := d.ids[n.NodeID()]; ok && dup == "" {
			dup = n.NodeID()
		}
	})
	if dup != "" {
		return fmt.Errorf("%w: %s", ErrDuplicateID, dup)
	}
	walkNodes(node, func(n LayerNode) {
		d.ids[n.NodeID()] = struct{}{}
	})
	return nil
}

// unregisterSubtreeLocked снимает регистрацию id поддерева. Требует d.mu.
func (d *Document) unregisterSubtreeLocked(node LayerNode) {
	walkNodes(node, func(n LayerNode) {
		delete(d.ids, n.NodeID())
	})
}

// AddLayer добавляет слой в группу по пути groupPath на позицию index.
// Базовый слой допустим только один и всегда занимает позицию 0 корня.
func (d *Document) AddLayer(ctx context.Context, tx docstore.Tx, groupPath []string, layerID, name string, isBase bool, index int) (uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	group, err := findParentGroup(d.root, groupPath)
	if err != nil {
		d.mu.Unlock()
		return 0, err
	}
	if _, ok := d.ids[layerID]; ok {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrDuplicateID, layerID)
	}
	if isBase && containsBaseLayer(d.root) {
		d.mu.Unlock()
		return 0, ErrBaseLayerExists
	}

	layer := NewLayer(layerID, name, isBase)
	d.insertChildLocked(group, layer, index)
	d.ids[layerID] = struct{}{}
	if _, ok := d.layerDocs[layerID]; !ok {
		d.layerDocs[layerID] = LayerDocumentID(uuid.NewString())
	}
	docID := d.layerDocs[layerID]
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	if d.rootRental != nil {
		if _, err := docstore.RentOrCreate(ctx, d.store, tx, docID, layerDocument{
			LayerID:    layerID,
			Name:       name,
			IsBase:     isBase,
			IsExported: true,
		}); err != nil {
			return 0, err
		}
		if err := d.persistRoot(ctx, tx); err != nil {
			return 0, err
		}
	}

	d.notifyTreeChanged(ctx, layerID)
	return version, nil
}

// AddGroup добавляет группу слоёв в группу по пути groupPath.
func (d *Document) AddGroup(ctx context.Context, tx docstore.Tx, groupPath []string, groupID, name string, index int) (uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	parent, err := findParentGroup(d.root, groupPath)
	if err != nil {
		d.mu.Unlock()
		return 0, err
	}
	if _, ok := d.ids[groupID]; ok {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrDuplicateID, groupID)
	}

	group := NewLayerGroup(groupID, name)
	d.insertChildLocked(parent, group, index)
	d.ids[groupID] = struct{}{}
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	if err := d.persistRoot(ctx, tx); err != nil {
		return 0, err
	}
	d.notifyTreeChanged(ctx, groupID)
	return version, nil
}

// RemovedItem — результат удаления узла: сам узел и его позиция
// в родительской группе, достаточные для обратной вставки.
type RemovedItem struct {
	Node    LayerNode
	Index   int
	Version uint64
}

// RemoveItem удаляет слой или группу из группы groupPath.
// Узел, содержащий базовый слой, удалить нельзя. Правки удалённых слоёв
// в загруженных чанках отцепляются, затронутые чанки пересчитываются.
func (d *Document) RemoveItem(ctx context.Context, tx docstore.Tx, groupPath []string, itemID string) (RemovedItem, error) {
	if err := d.ensureInitialized(); err != nil {
		return RemovedItem{}, err
	}

	d.mu.Lock()
	group, err := findParentGroup(d.root, groupPath)
	if err != nil {
		d.mu.Unlock()
		return RemovedItem{}, err
	}

	index := -1
	for i, child := range group.Children {
		if child.NodeID() == itemID {
			index = i
			break
		}
	}
	if index < 0 {
		d.mu.Unlock()
		return RemovedItem{}, fmt.Errorf("%w: %s", ErrLayerNotFound, itemID)
	}

	node := group.Children[index]
	if containsBaseLayer(node) {
		d.mu.Unlock()
		return RemovedItem{}, ErrRemoveBaseLayer
	}

	group.Children = append(group.Children[:index], group.Children[index+1:]...)
	d.unregisterSubtreeLocked(node)

	affected := subtreeChunksLocked(node)
	lbs := d.editsLandblocksLocked(affected, node)
	d.recalcChunksLocked(affected)
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	// Документы затронутых чанков пересохраняются без правок
	// удалённого поддерева
	for id := range affected {
		if err := d.persistChunk(ctx, tx, id); err != nil {
			return RemovedItem{}, err
		}
	}
	if err := d.persistRoot(ctx, tx); err != nil {
		return RemovedItem{}, err
	}

	d.notifyTreeChanged(ctx, itemID)
	d.notifyLandblocks(ctx, lbs)
	return RemovedItem{Node: node, Index: index, Version: version}, nil
}

// InsertItem вставляет ранее удалённый узел обратно (обратная операция
// к RemoveItem): правки слоёв поддерева снова участвуют в слиянии.
func (d *Document) InsertItem(ctx context.Context, tx docstore.Tx, groupPath []string, node LayerNode, index int) (uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	group, err := findParentGroup(d.root, groupPath)
	if err != nil {
		d.mu.Unlock()
		return 0, err
	}
	if containsBaseLayer(node) && containsBaseLayer(d.root) {
		d.mu.Unlock()
		return 0, ErrBaseLayerExists
	}
	if err := d.registerSubtreeLocked(node); err != nil {
		d.mu.Unlock()
		return 0, err
	}

	d.insertChildLocked(group, node, index)

	affected := subtreeChunksLocked(node)
	lbs := d.editsLandblocksLocked(affected, node)
	d.recalcChunksLocked(affected)
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	for id := range affected {
		if err := d.persistChunk(ctx, tx, id); err != nil {
			return 0, err
		}
	}
	if err := d.persistRoot(ctx, tx); err != nil {
		return 0, err
	}

	d.notifyTreeChanged(ctx, node.NodeID())
	d.notifyLandblocks(ctx, lbs)
	return version, nil
}

// ReorderItem перемещает узел внутри его группы на позицию newIndex.
// Возвращает прежний индекс для обратной операции.
func (d *Document) ReorderItem(ctx context.Context, tx docstore.Tx, groupPath []string, itemID string, newIndex int) (int, uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, 0, err
	}

	d.mu.Lock()
	group, err := findParentGroup(d.root, groupPath)
	if err != nil {
		d.mu.Unlock()
		return 0, 0, err
	}

	oldIndex := -1
	for i, child := range group.Children {
		if child.NodeID() == itemID {
			oldIndex = i
			break
		}
	}
	if oldIndex < 0 {
		d.mu.Unlock()
		return 0, 0, fmt.Errorf("%w: %s", ErrLayerNotFound, itemID)
	}
	if newIndex < 0 || newIndex >= len(group.Children) {
		d.mu.Unlock()
		return 0, 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, newIndex)
	}

	node := group.Children[oldIndex]
	if containsBaseLayer(node) && oldIndex == 0 && group == d.root {
		d.mu.Unlock()
		return 0, 0, ErrReorderBaseLayer
	}
	if newIndex == 0 && group == d.root && len(group.Children) > 0 && containsBaseLayer(group.Children[0]) {
		d.mu.Unlock()
		return 0, 0, ErrDisplaceBaseLayer
	}

	if newIndex != oldIndex {
		group.Children = append(group.Children[:oldIndex], group.Children[oldIndex+1:]...)
		group.Children = append(group.Children, nil)
		copy(group.Children[newIndex+1:], group.Children[newIndex:])
		group.Children[newIndex] = node

		// Порядок слоёв меняет результат слияния
		affected := subtreeChunksLocked(node)
		lbs := d.editsLandblocksLocked(affected, node)
		d.recalcChunksLocked(affected)
		defer d.notifyLandblocks(ctx, lbs)
	}
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	if err := d.persistRoot(ctx, tx); err != nil {
		return 0, 0, err
	}
	d.notifyTreeChanged(ctx, itemID)
	return oldIndex, version, nil
}

// SetItemVisible переключает транзиентную видимость узла. Флаг
// не персистится; пересчитываются чанки с правками поддерева.
// Возвращает прежнее значение собственного флага узла.
func (d *Document) SetItemVisible(ctx context.Context, itemID string, visible bool) (bool, uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return false, 0, err
	}

	d.mu.Lock()
	_, _, node := findParent(d.root, itemID)
	if node == nil {
		d.mu.Unlock()
		return false, 0, fmt.Errorf("%w: %s", ErrLayerNotFound, itemID)
	}
	var prev bool
	switch n := node.(type) {
	case *Layer:
		prev, n.IsVisible = n.IsVisible, visible
	case *LayerGroup:
		prev, n.IsVisible = n.IsVisible, visible
	}

	affected := subtreeChunksLocked(node)
	lbs := d.editsLandblocksLocked(affected, node)
	d.recalcChunksLocked(affected)
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	d.notifyLandblocks(ctx, lbs)
	return prev, version, nil
}

// SetItemExported переключает персистентный флаг участия узла в экспорте.
// Возвращает прежнее значение собственного флага узла.
func (d *Document) SetItemExported(ctx context.Context, tx docstore.Tx, itemID string, exported bool) (bool, uint64, error) {
	if err := d.ensureInitialized(); err != nil {
		return false, 0, err
	}

	d.mu.Lock()
	_, _, node := findParent(d.root, itemID)
	if node == nil {
		d.mu.Unlock()
		return false, 0, fmt.Errorf("%w: %s", ErrLayerNotFound, itemID)
	}
	var prev bool
	switch n := node.(type) {
	case *Layer:
		prev, n.IsExported = n.IsExported, exported
	case *LayerGroup:
		prev, n.IsExported = n.IsExported, exported
	}
	version := d.bumpVersionLocked()
	d.mu.Unlock()

	if err := d.persistRoot(ctx, tx); err != nil {
		return false, 0, err
	}
	d.notifyTreeChanged(ctx, itemID)
	return prev, version, nil
}

// IsItemVisible сообщает эффективную видимость узла: флаг узла
// в конъюнкции с флагами всех предков.
func (d *Document) IsItemVisible(itemID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return isChainVisible(d.root, itemID)
}

// IsItemExported сообщает эффективное участие узла в экспорте.
func (d *Document) IsItemExported(itemID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return isChainExported(d.root, itemID)
}

// FindLayer возвращает слой по id.
func (d *Document) FindLayer(itemID string) (*Layer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l := findLayer(d.root, itemID)
	return l, l != nil
}

// LayerIDs возвращает id слоёв в порядке слияния.
func (d *Document) LayerIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	walkLayers(d.root, func(l *Layer) { out = append(out, l.ID) })
	return out
}
