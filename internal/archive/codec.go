package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Форматы записей архива. Все числа — little endian.
//
//	LREG — дескриптор региона (геометрия и таблица высот);
//	LBTR — terrain-запись лэндблока: 81 упакованная вершина 9×9;
//	LBIN — info-запись лэндблока: статические объекты.

// Ошибки декодирования записей архива.
var (
	ErrInvalidMagic  = errors.New("invalid record magic")
	ErrTruncatedData = errors.New("truncated record data")
)

const (
	regionMagic        = "LREG"
	landblockMagic     = "LBTR"
	landblockInfoMagic = "LBIN"

	// LandblockVertexCount — вершин в записи лэндблока (9×9).
	LandblockVertexCount = 81

	// HeightTableSize — размер таблицы высот региона.
	HeightTableSize = 256
)

// Идентификаторы файлов внутри региона.
const (
	// RegionDescriptorFileID — файл дескриптора региона.
	RegionDescriptorFileID uint32 = 0x13000000

	// LandblockTerrainSuffix — младшие 16 бит id terrain-файла лэндблока.
	LandblockTerrainSuffix uint32 = 0xFFFF

	// LandblockInfoSuffix — младшие 16 бит id info-файла лэндблока.
	LandblockInfoSuffix uint32 = 0xFFFE
)

// LandblockTerrainFileID возвращает id terrain-файла для лэндблока.
func LandblockTerrainFileID(landblockID uint16) uint32 {
	return uint32(landblockID)<<16 | LandblockTerrainSuffix
}

// LandblockInfoFileID возвращает id info-файла для лэндблока.
func LandblockInfoFileID(landblockID uint16) uint32 {
	return uint32(landblockID)<<16 | LandblockInfoSuffix
}

// RegionRecord — дескриптор региона, читается один раз на документ.
type RegionRecord struct {
	Version                uint16
	LandblockCellLength    uint8 // Ячеек на сторону лэндблока (8)
	LandblockVerticeLength uint8 // Вершин на сторону лэндблока (9)
	MapWidthInLandblocks   uint16
	CellSize               float32
	HeightTable            [HeightTableSize]float32 // Байт высоты -> мировая высота
}

// LandblockRecord — terrain-данные одного лэндблока: 9×9 упакованных вершин.
// Интерпретация упаковки принадлежит пакету terrain; архив хранит слова как есть.
type LandblockRecord struct {
	LandblockID uint16
	Entries     [LandblockVertexCount]uint32
}

// ObjectRecord — статический объект в info-записи лэндблока.
type ObjectRecord struct {
	SetupID    uint32
	Position   [7]float32 // xyz + кватернион xyzw
	InstanceID uint64
}

// LandblockInfoRecord — объекты базового архива для одного лэндблока.
type LandblockInfoRecord struct {
	LandblockID uint16
	Objects     []ObjectRecord
}

// EncodeRegion сериализует дескриптор региона.
func EncodeRegion(rec *RegionRecord) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 4+2+1+1+2+4+HeightTableSize*4))
	buf.WriteString(regionMagic)
	binary.Write(buf, binary.LittleEndian, rec.Version)
	buf.WriteByte(rec.LandblockCellLength)
	buf.WriteByte(rec.LandblockVerticeLength)
	binary.Write(buf, binary.LittleEndian, rec.MapWidthInLandblocks)
	binary.Write(buf, binary.LittleEndian, rec.CellSize)
	binary.Write(buf, binary.LittleEndian, rec.HeightTable)
	return buf.Bytes()
}

// DecodeRegion разбирает дескриптор региона.
func DecodeRegion(data []byte) (*RegionRecord, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: region header", ErrTruncatedData)
	}
	if string(data[0:4]) != regionMagic {
		return nil, fmt.Errorf("%w: expected %q", ErrInvalidMagic, regionMagic)
	}

	r := bytes.NewReader(data[4:])
	rec := &RegionRecord{}

	if err := binary.Read(r, binary.LittleEndian, &rec.Version); err != nil {
		return nil, fmt.Errorf("%w: reading version", ErrTruncatedData)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.LandblockCellLength); err != nil {
		return nil, fmt.Errorf("%w: reading cell length", ErrTruncatedData)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.LandblockVerticeLength); err != nil {
		return nil, fmt.Errorf("%w: reading vertice length", ErrTruncatedData)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.MapWidthInLandblocks); err != nil {
		return nil, fmt.Errorf("%w: reading map width", ErrTruncatedData)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.CellSize); err != nil {
		return nil, fmt.Errorf("%w: reading cell size", ErrTruncatedData)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.HeightTable); err != nil {
		return nil, fmt.Errorf("%w: reading height table", ErrTruncatedData)
	}

	if rec.LandblockCellLength == 0 || rec.LandblockVerticeLength != rec.LandblockCellLength+1 {
		return nil, fmt.Errorf("invalid region geometry: cells=%d vertices=%d",
			rec.LandblockCellLength, rec.LandblockVerticeLength)
	}
	if rec.MapWidthInLandblocks == 0 {
		return nil, fmt.Errorf("invalid region geometry: zero map width")
	}
	return rec, nil
}

// EncodeLandblock сериализует terrain-запись лэндблока.
func EncodeLandblock(rec *LandblockRecord) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 4+2+LandblockVertexCount*4))
	buf.WriteString(landblockMagic)
	binary.Write(buf, binary.LittleEndian, rec.LandblockID)
	binary.Write(buf, binary.LittleEndian, rec.Entries)
	return buf.Bytes()
}

// DecodeLandblock разбирает terrain-запись лэндблока.
func DecodeLandblock(data []byte) (*LandblockRecord, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: landblock header", ErrTruncatedData)
	}
	if string(data[0:4]) != landblockMagic {
		return nil, fmt.Errorf("%w: expected %q", ErrInvalidMagic, landblockMagic)
	}

	r := bytes.NewReader(data[4:])
	rec := &LandblockRecord{}

	if err := binary.Read(r, binary.LittleEndian, &rec.LandblockID); err != nil {
		return nil, fmt.Errorf("%w: reading landblock id", ErrTruncatedData)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.Entries); err != nil {
		return nil, fmt.Errorf("%w: reading entries", ErrTruncatedData)
	}
	return rec, nil
}

// EncodeLandblockInfo сериализует info-запись лэндблока.
func EncodeLandblockInfo(rec *LandblockInfoRecord) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 4+2+2+len(rec.Objects)*(4+7*4+8)))
	buf.WriteString(landblockInfoMagic)
	binary.Write(buf, binary.LittleEndian, rec.LandblockID)
	binary.Write(buf, binary.LittleEndian, uint16(len(rec.Objects)))
	for i := range rec.Objects {
		binary.Write(buf, binary.LittleEndian, rec.Objects[i].SetupID)
		binary.Write(buf, binary.LittleEndian, rec.Objects[i].Position)
		binary.Write(buf, binary.LittleEndian, rec.Objects[i].InstanceID)
	}
	return buf.Bytes()
}

// DecodeLandblockInfo разбирает info-запись лэндблока.
func DecodeLandblockInfo(data []byte) (*LandblockInfoRecord, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: landblock info header", ErrTruncatedData)
	}
	if string(data[0:4]) != landblockInfoMagic {
		return nil, fmt.Errorf("%w: expected %q", ErrInvalidMagic, landblockInfoMagic)
	}

	r := bytes.NewReader(data[4:])
	rec := &LandblockInfoRecord{}

	if err := binary.Read(r, binary.LittleEndian, &rec.LandblockID); err != nil {
		return nil, fmt.Errorf("%w: reading landblock id", ErrTruncatedData)
	}
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading object count", ErrTruncatedData)
	}

	rec.Objects = make([]ObjectRecord, count)
	for i := uint16(0); i < count; i++ {
		if err := binary.Read(r, binary.LittleEndian, &rec.Objects[i].SetupID); err != nil {
			return nil, fmt.Errorf("%w: reading object %d setup", ErrTruncatedData, i)
		}
		if err := binary.Read(r, binary.LittleEndian, &rec.Objects[i].Position); err != nil {
			return nil, fmt.Errorf("%w: reading object %d position", ErrTruncatedData, i)
		}
		if err := binary.Read(r, binary.LittleEndian, &rec.Objects[i].InstanceID); err != nil {
			return nil, fmt.Errorf("%w: reading object %d instance id", ErrTruncatedData, i)
		}
	}
	return rec, nil
}
