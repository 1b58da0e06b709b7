package command

import (
	"context"

	"github.com/dereth/landedit/internal/docstore"
	"github.com/dereth/landedit/internal/terrain"
)

// TerrainUpdate записывает переопределение вершины в слой.
type TerrainUpdate struct {
	LayerID string
	Vertex  int // Глобальный индекс вершины
	Entry   terrain.TerrainEntry
}

func (c *TerrainUpdate) Name() string { return "TerrainUpdate" }

func (c *TerrainUpdate) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	edit, err := doc.SetVertex(ctx, tx, c.LayerID, c.Vertex, c.Entry)
	if err != nil {
		return nil, err
	}
	if edit.HadPrev {
		return &TerrainUpdate{LayerID: c.LayerID, Vertex: c.Vertex, Entry: edit.Prev}, nil
	}
	return &TerrainRemove{LayerID: c.LayerID, Vertex: c.Vertex}, nil
}

// TerrainRemove удаляет переопределение вершины из слоя.
type TerrainRemove struct {
	LayerID string
	Vertex  int
}

func (c *TerrainRemove) Name() string { return "TerrainRemove" }

func (c *TerrainRemove) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	edit, err := doc.RemoveVertex(ctx, tx, c.LayerID, c.Vertex)
	if err != nil {
		return nil, err
	}
	if edit.HadPrev {
		return &TerrainUpdate{LayerID: c.LayerID, Vertex: c.Vertex, Entry: edit.Prev}, nil
	}
	// Переопределения не было: обратная команда — такой же no-op
	return &TerrainRemove{LayerID: c.LayerID, Vertex: c.Vertex}, nil
}

// AddStaticObject добавляет статический объект в слой.
type AddStaticObject struct {
	LayerID   string
	Landblock terrain.LandblockID
	Object    terrain.StaticObject
}

func (c *AddStaticObject) Name() string { return "AddStaticObject" }

func (c *AddStaticObject) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	if _, err := doc.AddStaticObject(ctx, tx, c.LayerID, c.Landblock, c.Object); err != nil {
		return nil, err
	}
	return &DeleteStaticObject{LayerID: c.LayerID, Landblock: c.Landblock, InstanceID: c.Object.InstanceID}, nil
}

// DeleteStaticObject удаляет объект из слоя. Унаследованный снизу объект
// скрывается тумбстоном; обратная команда тогда снимает тумбстон.
type DeleteStaticObject struct {
	LayerID    string
	Landblock  terrain.LandblockID
	InstanceID uint64
}

func (c *DeleteStaticObject) Name() string { return "DeleteStaticObject" }

func (c *DeleteStaticObject) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	removed, _, err := doc.DeleteStaticObject(ctx, tx, c.LayerID, c.Landblock, c.InstanceID)
	if err != nil {
		return nil, err
	}
	if removed != nil {
		return &AddStaticObject{LayerID: c.LayerID, Landblock: c.Landblock, Object: *removed}, nil
	}
	return &RestoreStaticObject{LayerID: c.LayerID, Landblock: c.Landblock, InstanceID: c.InstanceID}, nil
}

// RestoreStaticObject снимает тумбстон с унаследованного объекта.
type RestoreStaticObject struct {
	LayerID    string
	Landblock  terrain.LandblockID
	InstanceID uint64
}

func (c *RestoreStaticObject) Name() string { return "RestoreStaticObject" }

func (c *RestoreStaticObject) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	if _, err := doc.RestoreStaticObject(ctx, tx, c.LayerID, c.Landblock, c.InstanceID); err != nil {
		return nil, err
	}
	return &DeleteStaticObject{LayerID: c.LayerID, Landblock: c.Landblock, InstanceID: c.InstanceID}, nil
}

// UpdateStaticObject перемещает объект слоя на новый лэндблок.
type UpdateStaticObject struct {
	LayerID      string
	OldLandblock terrain.LandblockID
	NewLandblock terrain.LandblockID
	OldObject    terrain.StaticObject
	Object       terrain.StaticObject
}

func (c *UpdateStaticObject) Name() string { return "UpdateStaticObject" }

func (c *UpdateStaticObject) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	if _, err := doc.UpdateStaticObject(ctx, tx, c.LayerID, c.OldLandblock, c.NewLandblock, c.Object); err != nil {
		return nil, err
	}
	return &UpdateStaticObject{
		LayerID:      c.LayerID,
		OldLandblock: c.NewLandblock,
		NewLandblock: c.OldLandblock,
		OldObject:    c.Object,
		Object:       c.OldObject,
	}, nil
}

// AddLayer добавляет слой в группу.
type AddLayer struct {
	GroupPath []string
	LayerID   string
	LayerName string
	IsBase    bool
	Index     int
}

func (c *AddLayer) Name() string { return "AddLayer" }

func (c *AddLayer) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	if _, err := doc.AddLayer(ctx, tx, c.GroupPath, c.LayerID, c.LayerName, c.IsBase, c.Index); err != nil {
		return nil, err
	}
	return &RemoveItem{GroupPath: c.GroupPath, ItemID: c.LayerID}, nil
}

// AddGroup добавляет группу слоёв.
type AddGroup struct {
	GroupPath []string
	GroupID   string
	GroupName string
	Index     int
}

func (c *AddGroup) Name() string { return "AddGroup" }

func (c *AddGroup) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	if _, err := doc.AddGroup(ctx, tx, c.GroupPath, c.GroupID, c.GroupName, c.Index); err != nil {
		return nil, err
	}
	return &RemoveItem{GroupPath: c.GroupPath, ItemID: c.GroupID}, nil
}

// RemoveItem удаляет слой или группу; обратная команда вставляет
// удалённый узел на прежнюю позицию вместе с его правками.
type RemoveItem struct {
	GroupPath []string
	ItemID    string
}

func (c *RemoveItem) Name() string { return "RemoveItem" }

func (c *RemoveItem) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	removed, err := doc.RemoveItem(ctx, tx, c.GroupPath, c.ItemID)
	if err != nil {
		return nil, err
	}
	return &InsertItem{GroupPath: c.GroupPath, Node: removed.Node, Index: removed.Index}, nil
}

// InsertItem вставляет ранее удалённый узел обратно.
type InsertItem struct {
	GroupPath []string
	Node      terrain.LayerNode
	Index     int
}

func (c *InsertItem) Name() string { return "InsertItem" }

func (c *InsertItem) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	if _, err := doc.InsertItem(ctx, tx, c.GroupPath, c.Node, c.Index); err != nil {
		return nil, err
	}
	return &RemoveItem{GroupPath: c.GroupPath, ItemID: c.Node.NodeID()}, nil
}

// ReorderItem перемещает узел внутри группы.
type ReorderItem struct {
	GroupPath []string
	ItemID    string
	NewIndex  int
}

func (c *ReorderItem) Name() string { return "ReorderItem" }

func (c *ReorderItem) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	oldIndex, _, err := doc.ReorderItem(ctx, tx, c.GroupPath, c.ItemID, c.NewIndex)
	if err != nil {
		return nil, err
	}
	return &ReorderItem{GroupPath: c.GroupPath, ItemID: c.ItemID, NewIndex: oldIndex}, nil
}

// SetItemVisible переключает видимость узла. Флаг транзиентный,
// но команда обратима, чтобы undo восстанавливал вид сцены.
type SetItemVisible struct {
	ItemID  string
	Visible bool
}

func (c *SetItemVisible) Name() string { return "SetItemVisible" }

func (c *SetItemVisible) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	prev, _, err := doc.SetItemVisible(ctx, c.ItemID, c.Visible)
	if err != nil {
		return nil, err
	}
	return &SetItemVisible{ItemID: c.ItemID, Visible: prev}, nil
}

// SetItemExported переключает участие узла в экспорте.
type SetItemExported struct {
	ItemID   string
	Exported bool
}

func (c *SetItemExported) Name() string { return "SetItemExported" }

func (c *SetItemExported) Apply(ctx context.Context, doc *terrain.Document, tx docstore.Tx) (Command, error) {
	prev, _, err := doc.SetItemExported(ctx, tx, c.ItemID, c.Exported)
	if err != nil {
		return nil, err
	}
	return &SetItemExported{ItemID: c.ItemID, Exported: prev}, nil
}
