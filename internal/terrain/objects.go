package terrain

// Кодировка 64-битного instance id: тип в старших битах, лэндблок рождения
// и последовательный номер. Идентификатор стабилен: по нему объект
// тумбстонится и переассоциируется при перемещениях.
const (
	InstanceTypeShift      = 60
	InstanceLandblockBits  = 16
	InstanceLandblockShift = 44
	InstanceSequenceMask   = uint64(1)<<InstanceLandblockShift - 1

	// Типы инстансов.
	InstanceTypeStatic   uint64 = 0x1
	InstanceTypeBuilding uint64 = 0x2
	InstanceTypeCell     uint64 = 0x3
)

// MakeInstanceID собирает instance id из типа, лэндблока и номера.
func MakeInstanceID(instanceType uint64, landblock LandblockID, sequence uint64) uint64 {
	return instanceType<<InstanceTypeShift |
		uint64(landblock)<<InstanceLandblockShift |
		sequence&InstanceSequenceMask
}

// InstanceType возвращает тип из instance id.
func InstanceType(id uint64) uint64 {
	return id >> InstanceTypeShift
}

// InstanceLandblock возвращает лэндблок рождения из instance id.
func InstanceLandblock(id uint64) LandblockID {
	return LandblockID(id >> InstanceLandblockShift & (1<<InstanceLandblockBits - 1))
}

// StaticObject — статический объект на ландшафте.
type StaticObject struct {
	SetupID    uint32     `json:"setup_id"` // Ссылка на модель
	Position   [7]float32 `json:"position"` // xyz + кватернион xyzw
	InstanceID uint64     `json:"instance_id"`
	LayerID    string     `json:"layer_id,omitempty"` // Слой-владелец; пусто для базового архива
}

// BuildingObject — здание: статический объект с этажностью.
type BuildingObject struct {
	StaticObject
	NumFloors uint32 `json:"num_floors"`
}

// Cell — внутренняя ячейка (интерьер здания).
type Cell struct {
	CellID        uint32   `json:"cell_id"`
	EnvironmentID uint32   `json:"environment_id"`
	Textures      []uint16 `json:"textures,omitempty"`
}
