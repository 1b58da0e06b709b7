package terrain

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dereth/landedit/internal/archive"
	"github.com/dereth/landedit/internal/eventbus"
)

// SaveToDats выжигает слитый ландшафт обратно в архив: собирает
// лэндблоки, затронутые правками экспортируемых и видимых слоёв,
// и перезаписывает только те записи, в которых слитое значение
// отличается от архивного. Поверх архивной записи накладываются
// только поля высоты, текстуры, сценери и дорог — остальные биты
// записи архив сохраняет как есть. Возвращает число перезаписанных
// лэндблоков.
func (d *Document) SaveToDats(ctx context.Context) (int, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, err
	}

	ctx, span := d.tracer.Start(ctx, "terrain.SaveToDats",
		trace.WithAttributes(attribute.Int64("region_id", int64(d.regionID))))
	defer span.End()
	start := time.Now()

	// Правки незагруженных чанков тоже участвуют в экспорте:
	// сначала подгружаем все чанки из индекса корневого документа
	for _, raw := range d.chunkIndexSnapshot() {
		if _, err := d.ensureChunk(ctx, ChunkID(raw)); err != nil {
			return 0, err
		}
	}

	lbs := d.exportLandblocks()
	written := 0
	for _, lb := range lbs {
		dirty, err := d.exportLandblock(ctx, lb)
		if err != nil {
			return written, err
		}
		if dirty {
			written++
		}
	}

	exportedLandblocksTotal.Add(float64(written))
	d.log.Info("Экспорт региона %d: %d из %d лэндблоков перезаписано за %s",
		d.regionID, written, len(lbs), time.Since(start))

	if d.bus != nil {
		ev, err := eventbus.NewEnvelope("terrain", eventbus.EventDocumentSaved, 5,
			eventbus.DocumentSavedPayload{RegionID: d.regionID, LandblocksWritten: written})
		if err == nil {
			if err := d.bus.Publish(ctx, ev); err != nil {
				d.log.Error("Ошибка публикации DocumentSaved: %v", err)
			}
		}
	}
	return written, nil
}

func (d *Document) chunkIndexSnapshot() []uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.rootRental == nil {
		return nil
	}
	return append([]uint16(nil), d.rootRental.Doc.ChunkIndex...)
}

// exportLandblocks собирает лэндблоки, покрытые правками вершин
// экспортируемых и видимых слоёв, в детерминированном порядке.
func (d *Document) exportLandblocks() []LandblockID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[LandblockID]struct{})
	walkLayers(d.root, func(l *Layer) {
		if l.IsBase {
			return
		}
		if !isChainExported(d.root, l.ID) || !isChainVisible(d.root, l.ID) {
			return
		}
		for chunkID, edits := range l.Chunks {
			for local := range edits.Vertices {
				global, err := d.region.GlobalVertexIndex(chunkID, local)
				if err != nil {
					continue
				}
				vlbs, err := d.region.LandblocksForVertex(global)
				if err != nil {
					continue
				}
				for _, lb := range vlbs {
					seen[lb] = struct{}{}
				}
			}
		}
	})

	out := make([]LandblockID, 0, len(seen))
	for lb := range seen {
		out = append(out, lb)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// exportLandblock накладывает слитые значения на архивную запись лэндблока
// и перезаписывает её, только если хоть одно поле изменилось.
func (d *Document) exportLandblock(ctx context.Context, lb LandblockID) (bool, error) {
	rec, ok, err := d.reader.Landblock(ctx, d.regionID, uint16(lb))
	if err != nil {
		return false, err
	}

	out := archive.LandblockRecord{LandblockID: uint16(lb)}
	if ok {
		out.Entries = rec.Entries // массив копируется по значению
	}

	indices := d.region.LandblockVertexIndices(lb)

	dirty := false
	for vi, global := range indices {
		merged, err := d.GetCachedEntry(ctx, global)
		if err != nil {
			return false, err
		}
		cur := UnpackEntry(out.Entries[vi])
		next := cur
		if v, ok := merged.Height(); ok {
			next = next.WithHeight(v)
		}
		if v, ok := merged.TextureType(); ok {
			next = next.WithTextureType(v)
		}
		if v, ok := merged.Scenery(); ok {
			next = next.WithScenery(v)
		}
		if v, ok := merged.Road(); ok {
			next = next.WithRoad(v)
		}
		if next != cur {
			out.Entries[vi] = next.Pack()
			dirty = true
		}
	}

	if !dirty {
		return false, nil
	}
	if err := d.reader.PutLandblock(ctx, d.regionID, &out); err != nil {
		return false, err
	}
	return true, nil
}
