package terrain

import (
	"fmt"
)

// LayerNode — узел дерева слоёв: слой или группа (закрытая сумма).
// Порядок в списках детей задаёт порядок композитинга: поздние узлы
// перекрывают ранние.
type LayerNode interface {
	NodeID() string
	NodeName() string

	// isLayerNode закрывает сумму для внешних реализаций.
	isLayerNode()
}

// Layer — именованный разреженный слой правок.
type Layer struct {
	ID         string
	Name       string
	IsBase     bool // Единственный слой архивных данных; позиция 0, неудаляем
	IsExported bool
	IsVisible  bool // Транзиентный флаг, не персистится

	// Chunks — разреженные правки по загруженным чанкам.
	Chunks map[ChunkID]*ChunkEdits
}

// LayerGroup — упорядоченная группа узлов (слоёв и групп).
type LayerGroup struct {
	ID         string
	Name       string
	IsExported bool
	IsVisible  bool // Транзиентный флаг, не персистится

	Children []LayerNode
}

func (l *Layer) NodeID() string        { return l.ID }
func (l *Layer) NodeName() string      { return l.Name }
func (l *Layer) isLayerNode()          {}
func (g *LayerGroup) NodeID() string   { return g.ID }
func (g *LayerGroup) NodeName() string { return g.Name }
func (g *LayerGroup) isLayerNode()     {}

// NewLayer создаёт видимый слой без правок.
func NewLayer(id, name string, isBase bool) *Layer {
	return &Layer{
		ID:         id,
		Name:       name,
		IsBase:     isBase,
		IsExported: true,
		IsVisible:  true,
		Chunks:     make(map[ChunkID]*ChunkEdits),
	}
}

// NewLayerGroup создаёт видимую пустую группу.
func NewLayerGroup(id, name string) *LayerGroup {
	return &LayerGroup{
		ID:         id,
		Name:       name,
		IsExported: true,
		IsVisible:  true,
	}
}

// edits возвращает правки слоя для чанка, создавая их при need=true.
func (l *Layer) edits(chunk ChunkID, need bool) *ChunkEdits {
	if e, ok := l.Chunks[chunk]; ok {
		return e
	}
	if !need {
		return nil
	}
	e := NewChunkEdits()
	l.Chunks[chunk] = e
	return e
}

// findParentGroup разрешает путь из id групп от корня к целевой группе.
// Пустой путь — сам корень. Несуществующий сегмент — ErrGroupNotFound.
func findParentGroup(root *LayerGroup, groupPath []string) (*LayerGroup, error) {
	current := root
	for _, segment := range groupPath {
		var next *LayerGroup
		for _, child := range current.Children {
			if g, ok := child.(*LayerGroup); ok && g.ID == segment {
				next = g
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, segment)
		}
		current = next
	}
	return current, nil
}

// findParent ищет родителя узла линейным обходом дерева.
// Возвращает родителя, индекс узла в списке детей и сам узел.
// Деревья маленькие (десятки узлов), линейный обход достаточен.
func findParent(root *LayerGroup, id string) (*LayerGroup, int, LayerNode) {
	for i, child := range root.Children {
		if child.NodeID() == id {
			return root, i, child
		}
		if g, ok := child.(*LayerGroup); ok {
			if parent, idx, node := findParent(g, id); node != nil {
				return parent, idx, node
			}
		}
	}
	return nil, -1, nil
}

// findLayer ищет слой по id во всём дереве.
func findLayer(root *LayerGroup, id string) *Layer {
	_, _, node := findParent(root, id)
	if l, ok := node.(*Layer); ok {
		return l
	}
	return nil
}

// walkLayers обходит слои в порядке композитинга (document order).
func walkLayers(root *LayerGroup, fn func(*Layer)) {
	for _, child := range root.Children {
		switch n := child.(type) {
		case *Layer:
			fn(n)
		case *LayerGroup:
			walkLayers(n, fn)
		}
	}
}

// walkNodes обходит все узлы поддерева, включая сам узел.
func walkNodes(node LayerNode, fn func(LayerNode)) {
	fn(node)
	if g, ok := node.(*LayerGroup); ok {
		for _, child := range g.Children {
			walkNodes(child, fn)
		}
	}
}

// isChainVisible вычисляет эффективную видимость узла: AND по цепочке
// предков от корня. Узел вне дерева считается невидимым.
func isChainVisible(root *LayerGroup, id string) bool {
	visible, found := chainFlag(root, id, func(n LayerNode) bool {
		switch v := n.(type) {
		case *Layer:
			return v.IsVisible
		case *LayerGroup:
			return v.IsVisible
		}
		return false
	})
	return found && visible
}

// isChainExported вычисляет эффективный флаг экспорта узла.
func isChainExported(root *LayerGroup, id string) bool {
	exported, found := chainFlag(root, id, func(n LayerNode) bool {
		switch v := n.(type) {
		case *Layer:
			return v.IsExported
		case *LayerGroup:
			return v.IsExported
		}
		return false
	})
	return found && exported
}

// chainFlag ищет узел и возвращает AND флага по цепочке предков.
func chainFlag(group *LayerGroup, id string, flag func(LayerNode) bool) (bool, bool) {
	for _, child := range group.Children {
		if child.NodeID() == id {
			return flag(child), true
		}
		if g, ok := child.(*LayerGroup); ok {
			if v, found := chainFlag(g, id, flag); found {
				return v && flag(g), true
			}
		}
	}
	return false, false
}

// containsBaseLayer сообщает, есть ли в поддереве базовый слой.
func containsBaseLayer(node LayerNode) bool {
	found := false
	walkNodes(node, func(n LayerNode) {
		if l, ok := n.(*Layer); ok && l.IsBase {
			found = true
		}
	})
	return found
}

// layerTreeNode — персистируемый скелет дерева слоёв (JSON в корневом документе).
type layerTreeNode struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	IsGroup    bool            `json:"is_group,omitempty"`
	IsBase     bool            `json:"is_base,omitempty"`
	IsExported bool            `json:"is_exported"`
	Children   []layerTreeNode `json:"children,omitempty"`
}

// treeToSkeleton сериализует поддерево в персистируемую форму.
func treeToSkeleton(node LayerNode) layerTreeNode {
	switch n := node.(type) {
	case *Layer:
		return layerTreeNode{ID: n.ID, Name: n.Name, IsBase: n.IsBase, IsExported: n.IsExported}
	case *LayerGroup:
		out := layerTreeNode{ID: n.ID, Name: n.Name, IsGroup: true, IsExported: n.IsExported}
		for _, child := range n.Children {
			out.Children = append(out.Children, treeToSkeleton(child))
		}
		return out
	}
	return layerTreeNode{}
}

// skeletonToTree восстанавливает поддерево из персистируемой формы.
// Слои создаются видимыми: видимость транзиентна.
func skeletonToTree(skel layerTreeNode) LayerNode {
	if skel.IsGroup {
		g := NewLayerGroup(skel.ID, skel.Name)
		g.IsExported = skel.IsExported
		for _, child := range skel.Children {
			g.Children = append(g.Children, skeletonToTree(child))
		}
		return g
	}
	l := NewLayer(skel.ID, skel.Name, skel.IsBase)
	l.IsExported = skel.IsExported
	return l
}
