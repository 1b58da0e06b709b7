// region-gen генерирует синтетический регион для локальной разработки:
// перлин-шум высот, текстуры по высотным поясам и немного статических
// объектов. Результат кладётся в BadgerDB-архив, пригодный для landedit.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"

	"github.com/aquilax/go-perlin"

	"github.com/dereth/landedit/internal/archive"
	"github.com/dereth/landedit/internal/logging"
	"github.com/dereth/landedit/internal/terrain"
)

func main() {
	out := flag.String("out", "./data/archive", "каталог BadgerDB архива")
	regionID := flag.Uint("region", 1, "идентификатор региона")
	width := flag.Int("width", 16, "ширина карты в лэндблоках")
	seed := flag.Int64("seed", 1337, "зерно генератора")
	flag.Parse()

	if err := logging.InitDefaultLogger("region-gen"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	store, err := archive.NewBadgerStore(*out)
	if err != nil {
		log.Fatalf("❌ Ошибка открытия архива: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := generate(ctx, store, uint32(*regionID), *width, *seed); err != nil {
		log.Fatalf("❌ Ошибка генерации: %v", err)
	}
	logging.Info("✅ Регион %d (%d×%d лэндблоков) записан в %s", *regionID, *width, *width, *out)
}

func generate(ctx context.Context, store archive.Store, regionID uint32, width int, seed int64) error {
	region := &archive.RegionRecord{
		Version:                1,
		LandblockCellLength:    8,
		LandblockVerticeLength: 9,
		MapWidthInLandblocks:   uint16(width),
		CellSize:               24.0,
	}
	for i := range region.HeightTable {
		region.HeightTable[i] = float32(i) * 2.0
	}
	if err := store.PutFileBytes(ctx, regionID, archive.RegionDescriptorFileID, archive.EncodeRegion(region)); err != nil {
		return err
	}

	// Два слоя шума: крупный рельеф и мелкие неровности
	relief := perlin.NewPerlin(2, 2, 3, seed)
	detail := perlin.NewPerlin(2, 2, 2, seed+1)
	rng := rand.New(rand.NewSource(seed))

	for lby := 0; lby < width; lby++ {
		for lbx := 0; lbx < width; lbx++ {
			lb := terrain.NewLandblockID(uint8(lbx), uint8(lby))
			rec := &archive.LandblockRecord{LandblockID: uint16(lb)}

			for vy := 0; vy < 9; vy++ {
				for vx := 0; vx < 9; vx++ {
					gx := float64(lbx*8+vx) / 64.0
					gy := float64(lby*8+vy) / 64.0
					n := relief.Noise2D(gx, gy) + 0.25*detail.Noise2D(gx*4, gy*4)
					height := uint8((n + 1.25) / 2.5 * 200)

					entry := terrain.FullEntry(height, textureFor(height), 0, 0, 0)
					rec.Entries[vy*9+vx] = entry.Pack()
				}
			}
			if err := store.PutFileBytes(ctx, regionID, archive.LandblockTerrainFileID(uint16(lb)), archive.EncodeLandblock(rec)); err != nil {
				return err
			}

			// Редкие статические объекты на равнинах
			if rng.Intn(4) == 0 {
				info := &archive.LandblockInfoRecord{
					LandblockID: uint16(lb),
					Objects: []archive.ObjectRecord{{
						SetupID:    uint32(0x02000000 + rng.Intn(64)),
						Position:   [7]float32{float32(rng.Intn(192)), float32(rng.Intn(192)), 0, 0, 0, 0, 1},
						InstanceID: terrain.MakeInstanceID(terrain.InstanceTypeStatic, lb, uint64(rng.Intn(1000))),
					}},
				}
				if err := store.PutFileBytes(ctx, regionID, archive.LandblockInfoFileID(uint16(lb)), archive.EncodeLandblockInfo(info)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// textureFor выбирает тип текстуры по высотному поясу.
func textureFor(height uint8) uint8 {
	switch {
	case height < 40:
		return 2 // вода/песок
	case height < 120:
		return 5 // трава
	case height < 180:
		return 9 // камень
	default:
		return 12 // снег
	}
}
