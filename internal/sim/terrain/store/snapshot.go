package store

import (
	"fmt"

	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/snapshot"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

// ExportChunks copies every loaded chunk, ordered by chunk key.
func (s *ChunkStore) ExportChunks() []snapshot.ChunkV1 {
	keys := s.LoadedChunkKeys()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]snapshot.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := s.chunks[k]
		if ch == nil {
			continue
		}
		out = append(out, snapshot.ChunkV1{
			CX:     k.CX,
			CY:     k.CY,
			CZ:     k.CZ,
			Blocks: append([]uint16(nil), ch.Blocks...),
			Liquid: append([]uint8(nil), ch.Liquid...),
		})
	}
	return out
}

// ImportChunks replaces the loaded chunk set.
func (s *ChunkStore) ImportChunks(chunks []snapshot.ChunkV1) error {
	next := make(map[voxel.ChunkKey]*Chunk, len(chunks))
	for _, c := range chunks {
		if len(c.Blocks) != chunkVolume || len(c.Liquid) != chunkVolume {
			return fmt.Errorf("chunk (%d,%d,%d): bad size blocks=%d liquid=%d", c.CX, c.CY, c.CZ, len(c.Blocks), len(c.Liquid))
		}
		k := voxel.ChunkKey{CX: c.CX, CY: c.CY, CZ: c.CZ}
		ch := newChunk(k, s.cfg.Air)
		copy(ch.Blocks, c.Blocks)
		copy(ch.Liquid, c.Liquid)
		ch.dirty = true
		next[k] = ch
	}
	s.mu.Lock()
	s.chunks = next
	s.mu.Unlock()
	return nil
}

// FromSnapshot builds a store from a snapshot's terrain section.
func FromSnapshot(snap snapshot.SnapshotV1) (*ChunkStore, error) {
	s := NewChunkStore(Config{
		Air:    snap.Air,
		Flying: snap.Flying,
		Bounds: voxel.Bounds{Min: voxel.FromArray(snap.BoundaryMin), Max: voxel.FromArray(snap.BoundaryMax)},
	})
	if err := s.ImportChunks(snap.Chunks); err != nil {
		return nil, err
	}
	return s, nil
}
