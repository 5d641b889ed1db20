package store

import "github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"

// NewFlat builds a store covering b with a one-voxel floor of block at
// b.Min.Y and air above it.
func NewFlat(cfg Config, b voxel.Bounds, block uint16) *ChunkStore {
	if cfg.unbounded() {
		cfg.Bounds = b
	}
	s := NewChunkStore(cfg)
	s.LoadRegion(b)
	floor := b
	floor.Max.Y = b.Min.Y
	s.Fill(floor, block)
	return s
}

// Scatter raises pillars of block, height tall, on roughly permille/1000 of
// the floor columns of b. Placement is a pure function of seed.
func (s *ChunkStore) Scatter(seed int64, b voxel.Bounds, permille int, height int, block uint16) int {
	if permille <= 0 || height <= 0 {
		return 0
	}
	placed := 0
	for z := b.Min.Z; z <= b.Max.Z; z++ {
		for x := b.Min.X; x <= b.Max.X; x++ {
			if hash2(seed, x, z)%1000 >= uint64(permille) {
				continue
			}
			col := voxel.Bounds{
				Min: voxel.Coord{X: x, Y: b.Min.Y + 1, Z: z},
				Max: voxel.Coord{X: x, Y: b.Min.Y + height, Z: z},
			}
			s.Fill(col, block)
			placed++
		}
	}
	return placed
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	return mix64(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9))
}
