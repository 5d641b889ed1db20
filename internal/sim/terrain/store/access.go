package store

import (
	"sort"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

// LoadChunk makes the chunk valid, creating it filled with air if needed.
func (s *ChunkStore) LoadChunk(k voxel.ChunkKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[k]; ok {
		return
	}
	s.chunks[k] = newChunk(k, s.cfg.Air)
}

// LoadRegion loads every chunk overlapping b.
func (s *ChunkStore) LoadRegion(b voxel.Bounds) {
	if b.Empty() {
		return
	}
	lo, hi := b.Min.Chunk(), b.Max.Chunk()
	s.mu.Lock()
	defer s.mu.Unlock()
	for cy := lo.CY; cy <= hi.CY; cy++ {
		for cz := lo.CZ; cz <= hi.CZ; cz++ {
			for cx := lo.CX; cx <= hi.CX; cx++ {
				k := voxel.ChunkKey{CX: cx, CY: cy, CZ: cz}
				if _, ok := s.chunks[k]; !ok {
					s.chunks[k] = newChunk(k, s.cfg.Air)
				}
			}
		}
	}
}

func (s *ChunkStore) UnloadChunk(k voxel.ChunkKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, k)
}

func (s *ChunkStore) LoadedChunkKeys() []voxel.ChunkKey {
	s.mu.RLock()
	keys := make([]voxel.ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CY != keys[j].CY {
			return keys[i].CY < keys[j].CY
		}
		if keys[i].CZ != keys[j].CZ {
			return keys[i].CZ < keys[j].CZ
		}
		return keys[i].CX < keys[j].CX
	})
	return keys
}

// GetBlock returns the block id at c; ok is false when c is invalid.
func (s *ChunkStore) GetBlock(c voxel.Coord) (b uint16, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch := s.chunkLocked(c)
	if ch == nil {
		return s.cfg.Air, false
	}
	return ch.Blocks[c.LocalIndex()], true
}

// SetBlock writes a block id; it is a no-op for invalid voxels.
func (s *ChunkStore) SetBlock(c voxel.Coord, b uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.chunkLocked(c)
	if ch == nil {
		return false
	}
	ch.set(c.LocalIndex(), b)
	return true
}

// SetLiquid writes a liquid level (0 = dry); it is a no-op for invalid voxels.
func (s *ChunkStore) SetLiquid(c voxel.Coord, level uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.chunkLocked(c)
	if ch == nil {
		return false
	}
	ch.setLiquid(c.LocalIndex(), level)
	return true
}

// Fill sets every valid voxel inside b to block.
func (s *ChunkStore) Fill(b voxel.Bounds, block uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for y := b.Min.Y; y <= b.Max.Y; y++ {
		for z := b.Min.Z; z <= b.Max.Z; z++ {
			for x := b.Min.X; x <= b.Max.X; x++ {
				c := voxel.Coord{X: x, Y: y, Z: z}
				if ch := s.chunkLocked(c); ch != nil {
					ch.set(c.LocalIndex(), block)
				}
			}
		}
	}
}

// ChunkDigest returns the digest of a loaded chunk.
func (s *ChunkStore) ChunkDigest(k voxel.ChunkKey) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.chunks[k]
	if ch == nil {
		return 0, false
	}
	return ch.Digest(), true
}

func (s *ChunkStore) inBounds(c voxel.Coord) bool {
	if s.cfg.unbounded() {
		return true
	}
	return s.cfg.Bounds.Contains(c)
}

func (s *ChunkStore) chunkLocked(c voxel.Coord) *Chunk {
	if !s.inBounds(c) {
		return nil
	}
	return s.chunks[c.Chunk()]
}
