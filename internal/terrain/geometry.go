package terrain

import (
	"fmt"

	"github.com/dereth/landedit/internal/archive"
)

// Пространственные константы движка. Чанк агрегирует 8×8 лэндблоков;
// соседние чанки разделяют один ряд вершин на каждой границе.
const (
	// LandblocksPerChunk — лэндблоков на сторону чанка.
	LandblocksPerChunk = 8

	// ChunkVertexStride — вершин на сторону чанка (8×8 + общая вершина).
	ChunkVertexStride = 65

	// ChunkVertexCount — вершин в чанке.
	ChunkVertexCount = ChunkVertexStride * ChunkVertexStride

	// chunkCellSpan — ячеек вершинной сетки на сторону чанка.
	chunkCellSpan = ChunkVertexStride - 1
)

// LandblockID — 16-битный идентификатор лэндблока: (x<<8 | y).
type LandblockID uint16

// NewLandblockID собирает идентификатор из координат.
func NewLandblockID(x, y uint8) LandblockID {
	return LandblockID(uint16(x)<<8 | uint16(y))
}

// X возвращает координату x лэндблока.
func (id LandblockID) X() uint8 { return uint8(id >> 8) }

// Y возвращает координату y лэндблока.
func (id LandblockID) Y() uint8 { return uint8(id) }

// Chunk возвращает идентификатор чанка, содержащего лэндблок.
func (id LandblockID) Chunk() ChunkID {
	return NewChunkID(id.X()/LandblocksPerChunk, id.Y()/LandblocksPerChunk)
}

func (id LandblockID) String() string {
	return fmt.Sprintf("%04X", uint16(id))
}

// ChunkID — 16-битный идентификатор чанка: (chunkX<<8 | chunkY).
type ChunkID uint16

// NewChunkID собирает идентификатор из координат чанка.
func NewChunkID(x, y uint8) ChunkID {
	return ChunkID(uint16(x)<<8 | uint16(y))
}

// X возвращает координату x чанка.
func (id ChunkID) X() uint8 { return uint8(id >> 8) }

// Y возвращает координату y чанка.
func (id ChunkID) Y() uint8 { return uint8(id) }

func (id ChunkID) String() string {
	return fmt.Sprintf("%04X", uint16(id))
}

// Region — геометрия региона, прочитанная из дескриптора архива.
// Неизменяема в течение жизни документа.
type Region struct {
	ID                     uint32
	LandblockCellLength    int // Ячеек на сторону лэндблока (8)
	LandblockVerticeLength int // Вершин на сторону лэндблока (9)
	MapWidthInLandblocks   int
	CellSize               float32
	HeightTable            [archive.HeightTableSize]float32
}

// NewRegion строит геометрию из записи архива.
func NewRegion(regionID uint32, rec *archive.RegionRecord) *Region {
	r := &Region{
		ID:                     regionID,
		LandblockCellLength:    int(rec.LandblockCellLength),
		LandblockVerticeLength: int(rec.LandblockVerticeLength),
		MapWidthInLandblocks:   int(rec.MapWidthInLandblocks),
		CellSize:               rec.CellSize,
	}
	r.HeightTable = rec.HeightTable
	return r
}

// MapWidthInVertices возвращает ширину карты в вершинах.
func (r *Region) MapWidthInVertices() int {
	return r.MapWidthInLandblocks*r.LandblockCellLength + 1
}

// MapWidthInChunks возвращает ширину карты в чанках (последний может быть неполным).
func (r *Region) MapWidthInChunks() int {
	return (r.MapWidthInLandblocks + LandblocksPerChunk - 1) / LandblocksPerChunk
}

// VertexCount возвращает общее число вершин карты.
func (r *Region) VertexCount() int {
	w := r.MapWidthInVertices()
	return w * w
}

// VertexRef — адрес вершины внутри конкретного чанка.
type VertexRef struct {
	Chunk ChunkID
	Local int // Индекс в массиве 65×65 (row-major)
}

// checkGlobalIndex проверяет диапазон глобального индекса вершины.
func (r *Region) checkGlobalIndex(global int) error {
	if global < 0 || global >= r.VertexCount() {
		return fmt.Errorf("%w: %d", ErrVertexOutOfRange, global)
	}
	return nil
}

// LocalVertexIndex возвращает канонический адрес вершины: чанк,
// содержащий её не на правом/нижнем краю (кроме кромки карты).
// Чтение всегда идёт через канонический чанк.
func (r *Region) LocalVertexIndex(global int) (VertexRef, error) {
	if err := r.checkGlobalIndex(global); err != nil {
		return VertexRef{}, err
	}

	w := r.MapWidthInVertices()
	gx, gy := global%w, global/w

	chunks := r.MapWidthInChunks()
	cx := gx / chunkCellSpan
	if cx >= chunks {
		cx = chunks - 1
	}
	cy := gy / chunkCellSpan
	if cy >= chunks {
		cy = chunks - 1
	}

	lx := gx - cx*chunkCellSpan
	ly := gy - cy*chunkCellSpan
	return VertexRef{
		Chunk: NewChunkID(uint8(cx), uint8(cy)),
		Local: ly*ChunkVertexStride + lx,
	}, nil
}

// GlobalVertexIndex восстанавливает глобальный индекс из адреса в чанке.
func (r *Region) GlobalVertexIndex(chunk ChunkID, local int) (int, error) {
	if local < 0 || local >= ChunkVertexCount {
		return 0, fmt.Errorf("%w: local %d", ErrVertexOutOfRange, local)
	}

	lx := local % ChunkVertexStride
	ly := local / ChunkVertexStride
	gx := int(chunk.X())*chunkCellSpan + lx
	gy := int(chunk.Y())*chunkCellSpan + ly

	w := r.MapWidthInVertices()
	if gx >= w || gy >= w {
		return 0, fmt.Errorf("%w: chunk %s local %d", ErrVertexOutOfRange, chunk, local)
	}
	return gy*w + gx, nil
}

// VertexChunkRefs перечисляет все чанки, хранящие копию вершины (1..4).
// Вершина на общей границе дублируется в левый/верхний чанк, чтобы
// слияние каждого чанка оставалось самодостаточным; пропуск дубликатов
// даёт видимые швы на границах чанков.
func (r *Region) VertexChunkRefs(global int) ([]VertexRef, error) {
	canonical, err := r.LocalVertexIndex(global)
	if err != nil {
		return nil, err
	}

	refs := []VertexRef{canonical}

	cx, cy := int(canonical.Chunk.X()), int(canonical.Chunk.Y())
	lx := canonical.Local % ChunkVertexStride
	ly := canonical.Local / ChunkVertexStride

	left := lx == 0 && cx > 0
	top := ly == 0 && cy > 0

	if left {
		refs = append(refs, VertexRef{
			Chunk: NewChunkID(uint8(cx-1), uint8(cy)),
			Local: ly*ChunkVertexStride + chunkCellSpan,
		})
	}
	if top {
		refs = append(refs, VertexRef{
			Chunk: NewChunkID(uint8(cx), uint8(cy-1)),
			Local: chunkCellSpan*ChunkVertexStride + lx,
		})
	}
	if left && top {
		refs = append(refs, VertexRef{
			Chunk: NewChunkID(uint8(cx-1), uint8(cy-1)),
			Local: chunkCellSpan*ChunkVertexStride + chunkCellSpan,
		})
	}
	return refs, nil
}

// LandblocksForVertex перечисляет лэндблоки, содержащие вершину (1..4).
// Используется для уведомлений об изменениях.
func (r *Region) LandblocksForVertex(global int) ([]LandblockID, error) {
	if err := r.checkGlobalIndex(global); err != nil {
		return nil, err
	}

	w := r.MapWidthInVertices()
	gx, gy := global%w, global/w
	cells := r.LandblockCellLength

	lbx := gx / cells
	if lbx >= r.MapWidthInLandblocks {
		lbx = r.MapWidthInLandblocks - 1
	}
	lby := gy / cells
	if lby >= r.MapWidthInLandblocks {
		lby = r.MapWidthInLandblocks - 1
	}

	ids := []LandblockID{NewLandblockID(uint8(lbx), uint8(lby))}
	left := gx%cells == 0 && lbx > 0 && gx/cells == lbx
	top := gy%cells == 0 && lby > 0 && gy/cells == lby

	if left {
		ids = append(ids, NewLandblockID(uint8(lbx-1), uint8(lby)))
	}
	if top {
		ids = append(ids, NewLandblockID(uint8(lbx), uint8(lby-1)))
	}
	if left && top {
		ids = append(ids, NewLandblockID(uint8(lbx-1), uint8(lby-1)))
	}
	return ids, nil
}

// LandblockVertexIndices возвращает глобальные индексы вершин лэндблока
// (9×9, row-major по локальной сетке лэндблока).
func (r *Region) LandblockVertexIndices(id LandblockID) []int {
	w := r.MapWidthInVertices()
	cells := r.LandblockCellLength
	verts := r.LandblockVerticeLength

	baseX := int(id.X()) * cells
	baseY := int(id.Y()) * cells

	out := make([]int, 0, verts*verts)
	for vy := 0; vy < verts; vy++ {
		for vx := 0; vx < verts; vx++ {
			out = append(out, (baseY+vy)*w+(baseX+vx))
		}
	}
	return out
}

// ChunkContainsLandblock сообщает, принадлежит ли лэндблок чанку.
func ChunkContainsLandblock(chunk ChunkID, lb LandblockID) bool {
	return lb.Chunk() == chunk
}
