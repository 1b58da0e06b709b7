package terrain

import (
	"sync/atomic"
)

// ChunkEdits — персистируемые правки одного слоя внутри одного чанка.
// Хранятся разреженно; тумбстоны скрывают объекты нижних слоёв
// и базового архива, не трогая их данные.
type ChunkEdits struct {
	Vertices              map[int]TerrainEntry             `json:"vertices,omitempty"`
	ExteriorStaticObjects map[LandblockID][]StaticObject   `json:"exterior_static_objects,omitempty"`
	Buildings             map[LandblockID][]BuildingObject `json:"buildings,omitempty"`
	Cells                 map[uint32]Cell                  `json:"cells,omitempty"`
	DeletedInstanceIDs    []uint64                         `json:"deleted_instance_ids,omitempty"`
	Version               uint64                           `json:"version"`
}

// NewChunkEdits создаёт пустые правки.
func NewChunkEdits() *ChunkEdits {
	return &ChunkEdits{
		Vertices:              make(map[int]TerrainEntry),
		ExteriorStaticObjects: make(map[LandblockID][]StaticObject),
		Buildings:             make(map[LandblockID][]BuildingObject),
		Cells:                 make(map[uint32]Cell),
	}
}

// normalize восстанавливает nil-карты после десериализации.
func (e *ChunkEdits) normalize() {
	if e.Vertices == nil {
		e.Vertices = make(map[int]TerrainEntry)
	}
	if e.ExteriorStaticObjects == nil {
		e.ExteriorStaticObjects = make(map[LandblockID][]StaticObject)
	}
	if e.Buildings == nil {
		e.Buildings = make(map[LandblockID][]BuildingObject)
	}
	if e.Cells == nil {
		e.Cells = make(map[uint32]Cell)
	}
}

// Clone возвращает глубокую копию правок. Снимок для сериализации:
// не разделяет карты и слайсы с живым состоянием слоя.
func (e *ChunkEdits) Clone() *ChunkEdits {
	out := &ChunkEdits{
		Vertices:              make(map[int]TerrainEntry, len(e.Vertices)),
		ExteriorStaticObjects: make(map[LandblockID][]StaticObject, len(e.ExteriorStaticObjects)),
		Buildings:             make(map[LandblockID][]BuildingObject, len(e.Buildings)),
		Cells:                 make(map[uint32]Cell, len(e.Cells)),
		Version:               e.Version,
	}
	for local, entry := range e.Vertices {
		out.Vertices[local] = entry
	}
	for lb, objs := range e.ExteriorStaticObjects {
		out.ExteriorStaticObjects[lb] = append([]StaticObject(nil), objs...)
	}
	for lb, objs := range e.Buildings {
		out.Buildings[lb] = append([]BuildingObject(nil), objs...)
	}
	for id, cell := range e.Cells {
		out.Cells[id] = cell
	}
	if len(e.DeletedInstanceIDs) > 0 {
		out.DeletedInstanceIDs = append([]uint64(nil), e.DeletedInstanceIDs...)
	}
	return out
}

// IsEmpty сообщает, что правки не содержат данных.
func (e *ChunkEdits) IsEmpty() bool {
	return len(e.Vertices) == 0 &&
		len(e.ExteriorStaticObjects) == 0 &&
		len(e.Buildings) == 0 &&
		len(e.Cells) == 0 &&
		len(e.DeletedInstanceIDs) == 0
}

// HasTombstone проверяет наличие тумбстона для instance id.
func (e *ChunkEdits) HasTombstone(instanceID uint64) bool {
	for _, id := range e.DeletedInstanceIDs {
		if id == instanceID {
			return true
		}
	}
	return false
}

// AddTombstone добавляет тумбстон, если его ещё нет.
func (e *ChunkEdits) AddTombstone(instanceID uint64) {
	if !e.HasTombstone(instanceID) {
		e.DeletedInstanceIDs = append(e.DeletedInstanceIDs, instanceID)
	}
}

// RemoveTombstone убирает тумбстон (redo добавления после undo удаления).
func (e *ChunkEdits) RemoveTombstone(instanceID uint64) {
	for i, id := range e.DeletedInstanceIDs {
		if id == instanceID {
			e.DeletedInstanceIDs = append(e.DeletedInstanceIDs[:i], e.DeletedInstanceIDs[i+1:]...)
			return
		}
	}
}

// ChunkDocument — персистируемый документ чанка: правки всех слоёв.
// Идентификатор: LandscapeChunkDocument_{regionId}_{chunkX}_{chunkY}.
type ChunkDocument struct {
	RegionID uint32                 `json:"region_id"`
	ChunkX   uint8                  `json:"chunk_x"`
	ChunkY   uint8                  `json:"chunk_y"`
	Layers   map[string]*ChunkEdits `json:"layers,omitempty"`
	Version  uint64                 `json:"version"`
}

// mergedSnapshot — неизменяемый результат слияния чанка.
// Читатели держат ссылку на конкретный снимок; пересчёт публикует
// новый массив целиком, никогда не меняя живой.
type mergedSnapshot struct {
	generation uint64
	entries    []TerrainEntry // len == ChunkVertexCount
}

// Chunk — пространственный тайл 65×65 вершин: базовые данные архива
// плюс снимок результата слияния слоёв.
type Chunk struct {
	ID ChunkID

	// BaseEntries — снимок базового архива; после загрузки не мутирует.
	BaseEntries []TerrainEntry

	// BaseObjects — статические объекты базового архива по лэндблокам.
	BaseObjects map[LandblockID][]StaticObject

	merged atomic.Pointer[mergedSnapshot]
}

// NewChunk создаёт чанк с базовыми данными.
// base должен иметь длину ChunkVertexCount.
func NewChunk(id ChunkID, base []TerrainEntry, baseObjects map[LandblockID][]StaticObject) *Chunk {
	if baseObjects == nil {
		baseObjects = make(map[LandblockID][]StaticObject)
	}
	c := &Chunk{
		ID:          id,
		BaseEntries: base,
		BaseObjects: baseObjects,
	}
	// До первого пересчёта снимок совпадает с базой
	c.merged.Store(&mergedSnapshot{generation: 0, entries: base})
	return c
}

// Merged возвращает текущий снимок слияния. Массив неизменяем.
func (c *Chunk) Merged() []TerrainEntry {
	return c.merged.Load().entries
}

// MergedGeneration возвращает поколение текущего снимка.
func (c *Chunk) MergedGeneration() uint64 {
	return c.merged.Load().generation
}

// publishMerged атомарно публикует новый снимок слияния.
func (c *Chunk) publishMerged(entries []TerrainEntry) {
	prev := c.merged.Load()
	c.merged.Store(&mergedSnapshot{generation: prev.generation + 1, entries: entries})
}
