package terrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEntryFields проверяет согласованность значений и битов присутствия
func TestEntryFields(t *testing.T) {
	var e TerrainEntry
	assert.True(t, e.IsEmpty())

	_, ok := e.Height()
	assert.False(t, ok, "у пустой записи нет высоты")

	e = e.WithHeight(200).WithRoad(3)
	h, ok := e.Height()
	require.True(t, ok)
	assert.Equal(t, uint8(200), h)
	r, ok := e.Road()
	require.True(t, ok)
	assert.Equal(t, uint8(3), r)
	_, ok = e.Scenery()
	assert.False(t, ok, "сценери не устанавливали")
	assert.False(t, e.IsEmpty())

	// Clear снимает и значение, и бит присутствия
	e = e.ClearHeight()
	h, ok = e.Height()
	assert.False(t, ok)
	assert.Equal(t, uint8(0), h)
}

// TestEntryMerge проверяет оператор композитинга: верхняя запись
// перекрывает только присутствующие в ней поля
func TestEntryMerge(t *testing.T) {
	base := FullEntry(100, 5, 7, 1, 2)
	overlay := TerrainEntry(0).WithHeight(150).WithRoad(0)

	merged := base.Merge(overlay)

	h, _ := merged.Height()
	assert.Equal(t, uint8(150), h, "высота перекрыта")
	r, _ := merged.Road()
	assert.Equal(t, uint8(0), r, "дорога перекрыта нулём (ноль — валидное значение)")
	tt, _ := merged.TextureType()
	assert.Equal(t, uint8(5), tt, "текстура не тронута")
	s, _ := merged.Scenery()
	assert.Equal(t, uint8(7), s)
	enc, _ := merged.Encounters()
	assert.Equal(t, uint8(2), enc)

	// Слияние с пустой записью ничего не меняет
	assert.Equal(t, base, base.Merge(TerrainEntry(0)))
}

// TestEntryMergeNotCommutative порядок слоёв имеет значение
func TestEntryMergeNotCommutative(t *testing.T) {
	a := TerrainEntry(0).WithHeight(10)
	b := TerrainEntry(0).WithHeight(20)

	ha, _ := a.Merge(b).Height()
	hb, _ := b.Merge(a).Height()
	assert.Equal(t, uint8(20), ha)
	assert.Equal(t, uint8(10), hb)
}

// TestEntryPackRoundTrip упаковка и распаковка сохраняют запись
func TestEntryPackRoundTrip(t *testing.T) {
	e := FullEntry(255, 31, 31, 7, 15)
	assert.Equal(t, e, UnpackEntry(e.Pack()))

	partial := TerrainEntry(0).WithScenery(12)
	assert.Equal(t, partial, UnpackEntry(partial.Pack()))
}

// TestUnpackEntrySanitizes распаковка зануляет значения без бита присутствия
func TestUnpackEntrySanitizes(t *testing.T) {
	// Слово с мусором в поле высоты, но без бита присутствия высоты
	word := uint32(0xAB) | uint32(presType) | 5<<typeShift
	e := UnpackEntry(word)

	h, ok := e.Height()
	assert.False(t, ok)
	assert.Equal(t, uint8(0), h, "мусор в отсутствующем поле вычищен")

	tt, ok := e.TextureType()
	require.True(t, ok)
	assert.Equal(t, uint8(5), tt)

	// Неиспользуемые старшие биты отбрасываются
	assert.Equal(t, TerrainEntry(0), UnpackEntry(0xC0000000))
}

// TestFullEntry собирает запись со всеми полями
func TestFullEntry(t *testing.T) {
	e := FullEntry(42, 3, 9, 2, 8)
	for _, check := range []struct {
		name string
		got  func() (uint8, bool)
		want uint8
	}{
		{"height", e.Height, 42},
		{"type", e.TextureType, 3},
		{"scenery", e.Scenery, 9},
		{"road", e.Road, 2},
		{"encounters", e.Encounters, 8},
	} {
		v, ok := check.got()
		require.True(t, ok, check.name)
		assert.Equal(t, check.want, v, check.name)
	}
}
