package terrain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dereth/landedit/internal/archive"
	"github.com/dereth/landedit/internal/docstore"
	"github.com/dereth/landedit/internal/eventbus"
	"github.com/dereth/landedit/internal/logging"
)

// BaseLayerID — id базового слоя, создаваемого при инициализации документа.
const BaseLayerID = "base"

// Идентификаторы персистентных документов. Форматы фиксированы:
// по ним адресуются ранее сохранённые данные.

// RootDocumentID возвращает id корневого документа региона.
func RootDocumentID(regionID uint32) string {
	return fmt.Sprintf("LandscapeDocument_%d", regionID)
}

// LayerDocumentID возвращает id документа слоя.
func LayerDocumentID(guid string) string {
	return fmt.Sprintf("LandscapeLayerDocument_%s", guid)
}

// ChunkDocumentID возвращает id документа чанка.
func ChunkDocumentID(regionID uint32, chunkX, chunkY uint8) string {
	return fmt.Sprintf("LandscapeChunkDocument_%d_%d_%d", regionID, chunkX, chunkY)
}

// rootDocument — персистируемый корневой документ: скелет дерева слоёв
// и реестр документов чанков.
type rootDocument struct {
	RegionID   uint32            `json:"region_id"`
	Tree       layerTreeNode     `json:"tree"`
	LayerDocs  map[string]string `json:"layer_docs,omitempty"` // id слоя -> id документа слоя
	ChunkIndex []uint16          `json:"chunk_index,omitempty"`
	Version    uint64            `json:"version"`
}

// layerDocument — персистируемые метаданные одного слоя/группы.
type layerDocument struct {
	LayerID    string `json:"layer_id"`
	Name       string `json:"name"`
	IsBase     bool   `json:"is_base,omitempty"`
	IsGroup    bool   `json:"is_group,omitempty"`
	IsExported bool   `json:"is_exported"`
}

// Document — движок слияния ландшафта одного региона: лениво загружает
// чанки из базового архива, ведёт дерево слоёв правок и инкрементально
// пересчитывает слияние только затронутых чанков.
type Document struct {
	regionID    uint32
	reader      *archive.Reader
	store       docstore.Store
	bus         eventbus.EventBus
	log         *logging.Logger
	tracer      trace.Tracer
	loadWorkers int

	// Инициализация документа однократна и сериализована:
	// конкурентные арендаторы не должны гонять загрузку региона.
	initMu      sync.Mutex
	initialized bool

	region *Region

	// mu защищает дерево слоёв, реестр id, версию и корневую аренду.
	mu         sync.RWMutex
	root       *LayerGroup
	ids        map[string]struct{}
	layerDocs  map[string]string
	version    uint64
	rootRental *docstore.Rental[rootDocument]

	// chunksMu защищает карту загруженных чанков и аренды их документов.
	chunksMu   sync.RWMutex
	chunks     map[ChunkID]*Chunk
	rentals    map[ChunkID]*docstore.Rental[ChunkDocument]
	chunkLocks sync.Map // ChunkID -> *sync.Mutex, создаются по требованию
}

// Option настраивает документ при создании.
type Option func(*Document)

// WithLoadWorkers задаёт параллелизм распаковки лэндблоков чанка.
func WithLoadWorkers(n int) Option {
	return func(d *Document) {
		if n > 0 {
			d.loadWorkers = n
		}
	}
}

// WithRegion подставляет уже загруженную геометрию региона.
// Явный тестовый шов: позволяет собирать документы без дескриптора в архиве.
func WithRegion(r *Region) Option {
	return func(d *Document) { d.region = r }
}

// WithLogger задаёт логгер компонента.
func WithLogger(l *logging.Logger) Option {
	return func(d *Document) { d.log = l }
}

// New создаёт документ региона. До InitializeForEditing или
// InitializeForUpdating мутации и чтения возвращают ErrNotInitialized.
func New(regionID uint32, reader *archive.Reader, store docstore.Store, bus eventbus.EventBus, opts ...Option) *Document {
	d := &Document{
		regionID:    regionID,
		reader:      reader,
		store:       store,
		bus:         bus,
		log:         logging.GetTerrainLogger(),
		tracer:      otel.Tracer("landedit/terrain"),
		loadWorkers: 8,
		ids:         make(map[string]struct{}),
		layerDocs:   make(map[string]string),
		chunks:      make(map[ChunkID]*Chunk),
		rentals:     make(map[ChunkID]*docstore.Rental[ChunkDocument]),
	}
	for _, opt := range opts {
		opt(d)
	}
	initMetrics()
	return d
}

// RegionID возвращает идентификатор региона.
func (d *Document) RegionID() uint32 { return d.regionID }

// Region возвращает геометрию региона (nil до инициализации).
func (d *Document) Region() *Region {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.region
}

// Version возвращает монотонную версию документа.
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// InitializeForEditing загружает регион и корневой документ,
// создавая недостающие документы (включая базовый слой).
func (d *Document) InitializeForEditing(ctx context.Context) error {
	return d.initialize(ctx, true)
}

// InitializeForUpdating загружает регион и корневой документ без
// создания недостающих: отсутствующее дерево слоёв остаётся транзиентным.
func (d *Document) InitializeForUpdating(ctx context.Context) error {
	return d.initialize(ctx, false)
}

func (d *Document) initialize(ctx context.Context, forEditing bool) error {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	if d.initialized {
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "terrain.Initialize",
		trace.WithAttributes(attribute.Int64("region_id", int64(d.regionID))))
	defer span.End()

	if d.region == nil {
		rec, ok, err := d.reader.Region(ctx, d.regionID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: region %d", ErrRegionNotFound, d.regionID)
		}
		d.region = NewRegion(d.regionID, rec)
	}

	rental, err := docstore.Rent[rootDocument](ctx, d.store, RootDocumentID(d.regionID))
	switch {
	case err == nil:
		d.restoreFromRoot(rental)
	case isNotFound(err) && forEditing:
		if err := d.createRootDocument(ctx); err != nil {
			return err
		}
	case isNotFound(err):
		// Режим обновления: транзиентное дерево с базовым слоем
		d.buildDefaultTree()
	default:
		return err
	}

	d.initialized = true
	d.log.Info("Документ региона %d инициализирован (карта %d лэндблоков, %d слоёв)",
		d.regionID, d.region.MapWidthInLandblocks, d.layerCount())
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound)
}

// buildDefaultTree собирает дерево из одного базового слоя.
func (d *Document) buildDefaultTree() {
	d.root = NewLayerGroup("root", "Root")
	base := NewLayer(BaseLayerID, "Base", true)
	d.root.Children = []LayerNode{base}
	d.ids = map[string]struct{}{BaseLayerID: {}}
}

// createRootDocument создаёт корневой документ и документ базового слоя.
func (d *Document) createRootDocument(ctx context.Context) error {
	d.buildDefaultTree()
	d.layerDocs[BaseLayerID] = LayerDocumentID(uuid.NewString())

	tx, err := d.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Discard()

	base := findLayer(d.root, BaseLayerID)
	if _, err := docstore.Create(ctx, d.store, tx, d.layerDocs[BaseLayerID], layerDocument{
		LayerID:    BaseLayerID,
		Name:       base.Name,
		IsBase:     true,
		IsExported: base.IsExported,
	}); err != nil {
		return err
	}

	rental, err := docstore.Create(ctx, d.store, tx, RootDocumentID(d.regionID), rootDocument{
		RegionID:  d.regionID,
		Tree:      treeToSkeleton(d.root),
		LayerDocs: copyStringMap(d.layerDocs),
		Version:   1,
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	d.rootRental = rental
	d.version = 1
	return nil
}

// restoreFromRoot восстанавливает состояние из корневого документа.
func (d *Document) restoreFromRoot(rental *docstore.Rental[rootDocument]) {
	d.rootRental = rental
	d.version = rental.Doc.Version

	node := skeletonToTree(rental.Doc.Tree)
	root, ok := node.(*LayerGroup)
	if !ok {
		root = NewLayerGroup("root", "Root")
		root.Children = []LayerNode{node}
	}
	d.root = root

	d.ids = make(map[string]struct{})
	walkNodes(d.root, func(n LayerNode) {
		if n != LayerNode(d.root) {
			d.ids[n.NodeID()] = struct{}{}
		}
	})
	d.layerDocs = copyStringMap(rental.Doc.LayerDocs)
	if d.layerDocs == nil {
		d.layerDocs = make(map[string]string)
	}
}

func (d *Document) ensureInitialized() error {
	d.initMu.Lock()
	defer d.initMu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (d *Document) layerCount() int {
	n := 0
	walkLayers(d.root, func(*Layer) { n++ })
	return n
}

// bumpVersionLocked инкрементирует версию документа. Требует d.mu.
func (d *Document) bumpVersionLocked() uint64 {
	d.version++
	return d.version
}

//================ Загрузка чанков =================//

// loadedChunk возвращает загруженный чанк или nil.
func (d *Document) loadedChunk(id ChunkID) *Chunk {
	d.chunksMu.RLock()
	defer d.chunksMu.RUnlock()
	return d.chunks[id]
}

// LoadedChunkCount возвращает число загруженных чанков.
func (d *Document) LoadedChunkCount() int {
	d.chunksMu.RLock()
	defer d.chunksMu.RUnlock()
	return len(d.chunks)
}

// ensureChunk лениво загружает чанк. Загрузка сериализуется пер-чанковым
// мьютексом из конкурентной карты; двойная проверка исключает повторную
// загрузку на горячем пути. Чанк публикуется в карте только после
// успешной загрузки базы и первого пересчёта: отменённая загрузка
// не оставляет частичного чанка.
func (d *Document) ensureChunk(ctx context.Context, id ChunkID) (*Chunk, error) {
	if err := d.ensureInitialized(); err != nil {
		return nil, err
	}
	if c := d.loadedChunk(id); c != nil {
		return c, nil
	}

	lockAny, _ := d.chunkLocks.LoadOrStore(id, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	if c := d.loadedChunk(id); c != nil {
		return c, nil
	}

	ctx, span := d.tracer.Start(ctx, "terrain.LoadChunk",
		trace.WithAttributes(attribute.Int("chunk_x", int(id.X())), attribute.Int("chunk_y", int(id.Y()))))
	defer span.End()

	start := time.Now()
	chunk, err := d.loadChunkData(ctx, id)
	if err != nil {
		return nil, err
	}

	// Аренда документа чанка, если он когда-либо создавался
	var rental *docstore.Rental[ChunkDocument]
	if d.chunkIndexContains(id) {
		rental, err = docstore.Rent[ChunkDocument](ctx, d.store, ChunkDocumentID(d.regionID, id.X(), id.Y()))
		if err != nil && !isNotFound(err) {
			return nil, err
		}
	}

	// Привязываем сохранённые правки к слоям, пересчитываем и публикуем
	// чанк в карте, не отпуская d.mu: структурное изменение дерева между
	// пересчётом и публикацией не должно оставить снимок устаревшим.
	d.mu.Lock()
	if rental != nil {
		for layerID, edits := range rental.Doc.Layers {
			layer := findLayer(d.root, layerID)
			if layer == nil {
				continue // правки удалённого слоя игнорируются
			}
			edits.normalize()
			layer.Chunks[id] = edits
		}
	}
	d.recalcChunkLocked(chunk)

	d.chunksMu.Lock()
	d.chunks[id] = chunk
	if rental != nil {
		d.rentals[id] = rental
	}
	d.chunksMu.Unlock()
	d.mu.Unlock()

	chunkLoadsTotal.Inc()
	chunkLoadSeconds.Observe(time.Since(start).Seconds())
	d.log.Debug("Чанк %s загружен за %s", id, time.Since(start))
	return chunk, nil
}

// loadChunkData распаковывает базовые данные 8×8 лэндблоков чанка,
// параллелизуя по лэндблокам: каждый пишет непересекающуюся область
// массива 65×65 (общие кромки пишет левый/верхний сосед).
func (d *Document) loadChunkData(ctx context.Context, id ChunkID) (*Chunk, error) {
	base := make([]TerrainEntry, ChunkVertexCount)

	type lbJob struct {
		i, j int // Позиция лэндблока внутри чанка
		lb   LandblockID
	}

	var jobs []lbJob
	for j := 0; j < LandblocksPerChunk; j++ {
		for i := 0; i < LandblocksPerChunk; i++ {
			lbx := int(id.X())*LandblocksPerChunk + i
			lby := int(id.Y())*LandblocksPerChunk + j
			if lbx >= d.region.MapWidthInLandblocks || lby >= d.region.MapWidthInLandblocks {
				continue // неполный краевой чанк
			}
			jobs = append(jobs, lbJob{i: i, j: j, lb: NewLandblockID(uint8(lbx), uint8(lby))})
		}
	}

	objectsByJob := make([]map[LandblockID][]StaticObject, len(jobs))
	errs := make([]error, len(jobs))

	workers := d.loadWorkers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers < 1 {
		workers = 1
	}

	jobCh := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				errs[idx] = d.loadLandblock(ctx, jobs[idx].i, jobs[idx].j, jobs[idx].lb, base, &objectsByJob[idx])
			}
		}()
	}
	for idx := range jobs {
		jobCh <- idx
	}
	close(jobCh)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	baseObjects := make(map[LandblockID][]StaticObject)
	for _, m := range objectsByJob {
		for lb, objs := range m {
			baseObjects[lb] = objs
		}
	}

	return NewChunk(id, base, baseObjects), nil
}

// loadLandblock распаковывает один лэндблок в его область массива чанка.
func (d *Document) loadLandblock(ctx context.Context, i, j int, lb LandblockID, base []TerrainEntry, objects *map[LandblockID][]StaticObject) error {
	rec, ok, err := d.reader.Landblock(ctx, d.regionID, uint16(lb))
	if err != nil {
		return fmt.Errorf("лэндблок %s: %w", lb, err)
	}

	verts := d.region.LandblockVerticeLength
	if ok {
		for vy := 0; vy < verts; vy++ {
			if vy == 0 && j > 0 {
				continue // кромку пишет верхний сосед
			}
			for vx := 0; vx < verts; vx++ {
				if vx == 0 && i > 0 {
					continue // кромку пишет левый сосед
				}
				local := (j*(verts-1)+vy)*ChunkVertexStride + i*(verts-1) + vx
				base[local] = UnpackEntry(rec.Entries[vy*verts+vx])
			}
		}
	}

	info, ok, err := d.reader.LandblockInfo(ctx, d.regionID, uint16(lb))
	if err != nil {
		return fmt.Errorf("лэндблок %s info: %w", lb, err)
	}
	if ok && len(info.Objects) > 0 {
		objs := make([]StaticObject, 0, len(info.Objects))
		for _, o := range info.Objects {
			objs = append(objs, StaticObject{
				SetupID:    o.SetupID,
				Position:   o.Position,
				InstanceID: o.InstanceID,
			})
		}
		*objects = map[LandblockID][]StaticObject{lb: objs}
	}
	return nil
}

//================ Пересчёт слияния =================//

// recalcChunkLocked пересчитывает слияние чанка: копия базы плюс
// присутствующие поля правок видимых слоёв в порядке обхода дерева.
// Готовый массив публикуется атомарной заменой снимка. Требует d.mu.
func (d *Document) recalcChunkLocked(chunk *Chunk) {
	start := time.Now()

	merged := make([]TerrainEntry, ChunkVertexCount)
	copy(merged, chunk.BaseEntries)

	walkLayers(d.root, func(l *Layer) {
		if l.IsBase {
			return // базовые данные уже скопированы
		}
		if !isChainVisible(d.root, l.ID) {
			return
		}
		edits, ok := l.Chunks[chunk.ID]
		if !ok {
			return
		}
		for local, entry := range edits.Vertices {
			if local >= 0 && local < ChunkVertexCount {
				merged[local] = merged[local].Merge(entry)
			}
		}
	})

	chunk.publishMerged(merged)
	recomputeSeconds.Observe(time.Since(start).Seconds())
}

// RecalculateChunk пересчитывает один загруженный чанк; незагруженный — no-op.
func (d *Document) RecalculateChunk(id ChunkID) {
	chunk := d.loadedChunk(id)
	if chunk == nil {
		return
	}
	d.mu.RLock()
	d.recalcChunkLocked(chunk)
	d.mu.RUnlock()
}

// recalcChunksLocked пересчитывает перечисленные чанки (загруженные). Требует d.mu.
func (d *Document) recalcChunksLocked(ids map[ChunkID]struct{}) {
	for id := range ids {
		d.chunksMu.RLock()
		chunk := d.chunks[id]
		d.chunksMu.RUnlock()
		if chunk != nil {
			d.recalcChunkLocked(chunk)
		}
	}
}

// subtreeChunksLocked собирает id чанков, затронутых правками поддерева. Требует d.mu.
func subtreeChunksLocked(node LayerNode) map[ChunkID]struct{} {
	out := make(map[ChunkID]struct{})
	walkNodes(node, func(n LayerNode) {
		if l, ok := n.(*Layer); ok {
			for id := range l.Chunks {
				out[id] = struct{}{}
			}
		}
	})
	return out
}

//================ Вершины =================//

// VertexEdit — результат правки вершины: прежнее значение для undo
// и новая версия документа.
type VertexEdit struct {
	Prev    TerrainEntry
	HadPrev bool
	Version uint64
}

// GetCachedEntry возвращает слитое значение вершины из канонического чанка.
func (d *Document) GetCachedEntry(ctx context.Context, global int) (TerrainEntry, error) {
	if err := d.ensureInitialized(); err != nil {
		return 0, err
	}

	d.mu.RLock()
	ref, err := d.region.LocalVertexIndex(global)
	d.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	chunk, err := d.ensureChunk(ctx, ref.Chunk)
	if err != nil {
		return 0, err
	}
	return chunk.Merged()[ref.Local], nil
}

// SetVertex записывает переопределение вершины в слой. Вершина на границе
// чанков дублируется во все чанки, разделяющие её; пересчитываются
// только затронутые чанки. Правки персистятся в транзакции вызывающего.
func (d *Document) SetVertex(ctx context.Context, tx docstore.Tx, layerID string, global int, entry TerrainEntry) (VertexEdit, error) {
	return d.editVertex(ctx, tx, layerID, global, &entry)
}

// RemoveVertex удаляет переопределение вершины из слоя.
func (d *Document) RemoveVertex(ctx context.Context, tx docstore.Tx, layerID string, global int) (VertexEdit, error) {
	return d.editVertex(ctx, tx, layerID, global, nil)
}

func (d *Document) editVertex(ctx context.Context, tx docstore.Tx, layerID string, global int, entry *TerrainEntry) (VertexEdit, error) {
	if err := d.ensureInitialized(); err != nil {
		return VertexEdit{}, err
	}

	d.mu.RLock()
	refs, err := d.region.VertexChunkRefs(global)
	d.mu.RUnlock()
	if err != nil {
		return VertexEdit{}, err
	}

	// Чанки загружаются до захвата write-lock дерева
	chunks := make([]*Chunk, len(refs))
	for i, ref := range refs {
		c, err := d.ensureChunk(ctx, ref.Chunk)
		if err != nil {
			return VertexEdit{}, err
		}
		chunks[i] = c
	}

	var edit VertexEdit
	d.mu.Lock()
	layer := findLayer(d.root, layerID)
	if layer == nil {
		d.mu.Unlock()
		return VertexEdit{}, fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
	}
	if layer.IsBase {
		d.mu.Unlock()
		return VertexEdit{}, fmt.Errorf("%w: %s", ErrBaseLayerImmutable, layerID)
	}

	for i, ref := range refs {
		edits := layer.edits(ref.Chunk, true)
		if i == 0 {
			edit.Prev, edit.HadPrev = edits.Vertices[ref.Local], false
			if _, ok := edits.Vertices[ref.Local]; ok {
				edit.HadPrev = true
			}
		}
		if entry != nil {
			edits.Vertices[ref.Local] = *entry
		} else {
			delete(edits.Vertices, ref.Local)
		}
		edits.Version++
	}

	for _, chunk := range chunks {
		d.recalcChunkLocked(chunk)
	}
	edit.Version = d.bumpVersionLocked()
	d.mu.Unlock()

	for _, ref := range refs {
		if err := d.persistChunk(ctx, tx, ref.Chunk); err != nil {
			return VertexEdit{}, err
		}
	}

	d.mu.RLock()
	lbs, _ := d.region.LandblocksForVertex(global)
	d.mu.RUnlock()
	d.notifyLandblocks(ctx, lbs)
	return edit, nil
}

//================ Персист и уведомления =================//

// chunkIndexContains проверяет, создавался ли документ чанка.
func (d *Document) chunkIndexContains(id ChunkID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.rootRental == nil {
		return false
	}
	for _, v := range d.rootRental.Doc.ChunkIndex {
		if ChunkID(v) == id {
			return true
		}
	}
	return false
}

// collectChunkEditsLocked собирает снимок правок всех слоёв для чанка.
// Правки глубоко копируются: сериализация снимка идёт уже вне d.mu
// и не должна разделять карты с живым состоянием слоёв. Требует d.mu.
func (d *Document) collectChunkEditsLocked(id ChunkID) map[string]*ChunkEdits {
	out := make(map[string]*ChunkEdits)
	walkLayers(d.root, func(l *Layer) {
		if edits, ok := l.Chunks[id]; ok && !edits.IsEmpty() {
			out[l.ID] = edits.Clone()
		}
	})
	return out
}

// persistChunk сохраняет документ чанка в транзакции вызывающего,
// создавая его при первом касании и регистрируя в индексе корневого
// документа. Персисты одного чанка сериализуются его пер-чанковым
// мьютексом: аренда документа разделяется между вызовами. Регистрация
// новой аренды и запись в индекс откатываются, если транзакция
// вызывающего не закоммитилась.
func (d *Document) persistChunk(ctx context.Context, tx docstore.Tx, id ChunkID) error {
	lockAny, _ := d.chunkLocks.LoadOrStore(id, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	d.mu.Lock()
	layers := d.collectChunkEditsLocked(id)
	d.mu.Unlock()

	d.chunksMu.RLock()
	rental := d.rentals[id]
	d.chunksMu.RUnlock()

	if rental == nil {
		doc := ChunkDocument{
			RegionID: d.regionID,
			ChunkX:   id.X(),
			ChunkY:   id.Y(),
			Layers:   layers,
			Version:  1,
		}
		created, err := docstore.Create(ctx, d.store, tx, ChunkDocumentID(d.regionID, id.X(), id.Y()), doc)
		if err != nil {
			return err
		}
		d.chunksMu.Lock()
		d.rentals[id] = created
		d.chunksMu.Unlock()

		d.mu.Lock()
		if d.rootRental != nil {
			d.rootRental.Doc.ChunkIndex = append(d.rootRental.Doc.ChunkIndex, uint16(id))
			sort.Slice(d.rootRental.Doc.ChunkIndex, func(a, b int) bool {
				return d.rootRental.Doc.ChunkIndex[a] < d.rootRental.Doc.ChunkIndex[b]
			})
		}
		d.mu.Unlock()

		tx.OnAbort(func() {
			d.chunksMu.Lock()
			if d.rentals[id] == created {
				delete(d.rentals, id)
			}
			d.chunksMu.Unlock()

			d.mu.Lock()
			if d.rootRental != nil {
				idx := d.rootRental.Doc.ChunkIndex
				for i, v := range idx {
					if ChunkID(v) == id {
						d.rootRental.Doc.ChunkIndex = append(idx[:i], idx[i+1:]...)
						break
					}
				}
			}
			d.mu.Unlock()
		})
		return d.persistRoot(ctx, tx)
	}

	rental.Doc.Layers = layers
	rental.Doc.Version++
	return docstore.Persist(ctx, d.store, tx, rental)
}

// persistRoot синхронизирует скелет дерева и сохраняет корневой документ.
func (d *Document) persistRoot(ctx context.Context, tx docstore.Tx) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rootRental == nil {
		return nil // режим обновления без персиста
	}
	d.rootRental.Doc.Tree = treeToSkeleton(d.root)
	d.rootRental.Doc.LayerDocs = copyStringMap(d.layerDocs)
	d.rootRental.Doc.Version = d.version
	return docstore.Persist(ctx, d.store, tx, d.rootRental)
}

// notifyLandblocks публикует событие LandblockChanged.
func (d *Document) notifyLandblocks(ctx context.Context, lbs []LandblockID) {
	if d.bus == nil || len(lbs) == 0 {
		return
	}

	coords := make([]eventbus.LandblockCoord, 0, len(lbs))
	for _, lb := range lbs {
		coords = append(coords, eventbus.LandblockCoord{X: lb.X(), Y: lb.Y()})
	}
	ev, err := eventbus.NewEnvelope("terrain", eventbus.EventLandblockChanged, 5,
		eventbus.LandblockChangedPayload{RegionID: d.regionID, Landblocks: coords})
	if err != nil {
		d.log.Error("Ошибка сборки события LandblockChanged: %v", err)
		return
	}
	if err := d.bus.Publish(ctx, ev); err != nil {
		d.log.Error("Ошибка публикации LandblockChanged: %v", err)
	}
}

// notifyTreeChanged публикует событие LayerTreeChanged.
func (d *Document) notifyTreeChanged(ctx context.Context, layerID string) {
	if d.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope("terrain", eventbus.EventLayerTreeChanged, 5,
		eventbus.LayerTreeChangedPayload{RegionID: d.regionID, LayerID: layerID})
	if err != nil {
		d.log.Error("Ошибка сборки события LayerTreeChanged: %v", err)
		return
	}
	if err := d.bus.Publish(ctx, ev); err != nil {
		d.log.Error("Ошибка публикации LayerTreeChanged: %v", err)
	}
}

// editsLandblocksLocked перечисляет лэндблоки, затронутые правками чанков. Требует d.mu.
func (d *Document) editsLandblocksLocked(chunkIDs map[ChunkID]struct{}, node LayerNode) []LandblockID {
	seen := make(map[LandblockID]struct{})
	walkNodes(node, func(n LayerNode) {
		l, ok := n.(*Layer)
		if !ok {
			return
		}
		for chunkID := range chunkIDs {
			edits, ok := l.Chunks[chunkID]
			if !ok {
				continue
			}
			for local := range edits.Vertices {
				global, err := d.region.GlobalVertexIndex(chunkID, local)
				if err != nil {
					continue
				}
				lbs, err := d.region.LandblocksForVertex(global)
				if err != nil {
					continue
				}
				for _, lb := range lbs {
					seen[lb] = struct{}{}
				}
			}
			for lb := range edits.ExteriorStaticObjects {
				seen[lb] = struct{}{}
			}
			for lb := range edits.Buildings {
				seen[lb] = struct{}{}
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

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
