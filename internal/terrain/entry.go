// Package terrain реализует многослойную модель ландшафта: чанки,
// дерево слоёв правок и движок слияния поверх базовых данных архива.
package terrain

// TerrainEntry — атрибуты одной вершины ландшафта, упакованные в 32 бита.
// Каждое поле независимо может отсутствовать; бит присутствия и значение
// всегда согласованы (значение без бита присутствия не хранится).
//
// Разметка бит:
//
//	0..7   высота (байт таблицы высот региона)
//	8..12  тип текстуры (0..31)
//	13..17 индекс сценери (0..31)
//	18..20 флаги дороги (0..7)
//	21..24 плотность энкаунтеров (0..15)
//	25..29 биты присутствия (в том же порядке полей)
type TerrainEntry uint32

const (
	heightShift    = 0
	typeShift      = 8
	sceneryShift   = 13
	roadShift      = 18
	encounterShift = 21

	heightMask    = 0xFF
	typeMask      = 0x1F
	sceneryMask   = 0x1F
	roadMask      = 0x07
	encounterMask = 0x0F

	presHeight    TerrainEntry = 1 << 25
	presType      TerrainEntry = 1 << 26
	presScenery   TerrainEntry = 1 << 27
	presRoad      TerrainEntry = 1 << 28
	presEncounter TerrainEntry = 1 << 29

	presAll = presHeight | presType | presScenery | presRoad | presEncounter
)

// Height возвращает высоту и признак присутствия.
func (e TerrainEntry) Height() (uint8, bool) {
	return uint8(e >> heightShift & heightMask), e&presHeight != 0
}

// TextureType возвращает тип текстуры и признак присутствия.
func (e TerrainEntry) TextureType() (uint8, bool) {
	return uint8(e >> typeShift & typeMask), e&presType != 0
}

// Scenery возвращает индекс сценери и признак присутствия.
func (e TerrainEntry) Scenery() (uint8, bool) {
	return uint8(e >> sceneryShift & sceneryMask), e&presScenery != 0
}

// Road возвращает флаги дороги и признак присутствия.
func (e TerrainEntry) Road() (uint8, bool) {
	return uint8(e >> roadShift & roadMask), e&presRoad != 0
}

// Encounters возвращает плотность энкаунтеров и признак присутствия.
func (e TerrainEntry) Encounters() (uint8, bool) {
	return uint8(e >> encounterShift & encounterMask), e&presEncounter != 0
}

// WithHeight возвращает копию с установленной высотой.
func (e TerrainEntry) WithHeight(v uint8) TerrainEntry {
	return e&^TerrainEntry(heightMask<<heightShift) | TerrainEntry(v)<<heightShift | presHeight
}

// WithTextureType возвращает копию с установленным типом текстуры.
func (e TerrainEntry) WithTextureType(v uint8) TerrainEntry {
	return e&^TerrainEntry(typeMask<<typeShift) | TerrainEntry(v&typeMask)<<typeShift | presType
}

// WithScenery возвращает копию с установленным индексом сценери.
func (e TerrainEntry) WithScenery(v uint8) TerrainEntry {
	return e&^TerrainEntry(sceneryMask<<sceneryShift) | TerrainEntry(v&sceneryMask)<<sceneryShift | presScenery
}

// WithRoad возвращает копию с установленными флагами дороги.
func (e TerrainEntry) WithRoad(v uint8) TerrainEntry {
	return e&^TerrainEntry(roadMask<<roadShift) | TerrainEntry(v&roadMask)<<roadShift | presRoad
}

// WithEncounters возвращает копию с установленной плотностью энкаунтеров.
func (e TerrainEntry) WithEncounters(v uint8) TerrainEntry {
	return e&^TerrainEntry(encounterMask<<encounterShift) | TerrainEntry(v&encounterMask)<<encounterShift | presEncounter
}

// ClearHeight возвращает копию без высоты.
func (e TerrainEntry) ClearHeight() TerrainEntry {
	return e &^ (TerrainEntry(heightMask<<heightShift) | presHeight)
}

// ClearTextureType возвращает копию без типа текстуры.
func (e TerrainEntry) ClearTextureType() TerrainEntry {
	return e &^ (TerrainEntry(typeMask<<typeShift) | presType)
}

// ClearScenery возвращает копию без индекса сценери.
func (e TerrainEntry) ClearScenery() TerrainEntry {
	return e &^ (TerrainEntry(sceneryMask<<sceneryShift) | presScenery)
}

// ClearRoad возвращает копию без флагов дороги.
func (e TerrainEntry) ClearRoad() TerrainEntry {
	return e &^ (TerrainEntry(roadMask<<roadShift) | presRoad)
}

// ClearEncounters возвращает копию без плотности энкаунтеров.
func (e TerrainEntry) ClearEncounters() TerrainEntry {
	return e &^ (TerrainEntry(encounterMask<<encounterShift) | presEncounter)
}

// IsEmpty сообщает, что ни одно поле не присутствует.
func (e TerrainEntry) IsEmpty() bool {
	return e&presAll == 0
}

// Merge накладывает присутствующие поля other поверх e.
// Отсутствующие в other поля не трогаются — это базовый оператор
// композитинга слоёв.
func (e TerrainEntry) Merge(other TerrainEntry) TerrainEntry {
	if v, ok := other.Height(); ok {
		e = e.WithHeight(v)
	}
	if v, ok := other.TextureType(); ok {
		e = e.WithTextureType(v)
	}
	if v, ok := other.Scenery(); ok {
		e = e.WithScenery(v)
	}
	if v, ok := other.Road(); ok {
		e = e.WithRoad(v)
	}
	if v, ok := other.Encounters(); ok {
		e = e.WithEncounters(v)
	}
	return e
}

// Pack возвращает упакованное 32-битное представление.
func (e TerrainEntry) Pack() uint32 { return uint32(e) }

// UnpackEntry восстанавливает запись из 32-битного слова,
// обнуляя значения полей без бита присутствия (инвариант согласованности).
func UnpackEntry(word uint32) TerrainEntry {
	e := TerrainEntry(word)
	if e&presHeight == 0 {
		e &^= TerrainEntry(heightMask << heightShift)
	}
	if e&presType == 0 {
		e &^= TerrainEntry(typeMask << typeShift)
	}
	if e&presScenery == 0 {
		e &^= TerrainEntry(sceneryMask << sceneryShift)
	}
	if e&presRoad == 0 {
		e &^= TerrainEntry(roadMask << roadShift)
	}
	if e&presEncounter == 0 {
		e &^= TerrainEntry(encounterMask << encounterShift)
	}
	// Старшие биты 30..31 не используются
	return e & (presAll | 0x01FFFFFF)
}

// FullEntry собирает запись со всеми присутствующими полями.
// Используется при загрузке базовых данных архива.
func FullEntry(height, textureType, scenery, road, encounters uint8) TerrainEntry {
	return TerrainEntry(0).
		WithHeight(height).
		WithTextureType(textureType).
		WithScenery(scenery).
		WithRoad(road).
		WithEncounters(encounters)
}
