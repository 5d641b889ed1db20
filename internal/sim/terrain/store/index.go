package store

import "github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"

var _ voxel.Index = (*ChunkStore)(nil)

var (
	up   = voxel.Coord{Y: 1}
	down = voxel.Coord{Y: -1}
)

func (s *ChunkStore) IsValid(c voxel.Coord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunkLocked(c) != nil
}

func (s *ChunkStore) IsEmpty(c voxel.Coord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emptyLocked(c)
}

func (s *ChunkStore) LiquidLevel(c voxel.Coord) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liquidLocked(c)
}

func (s *ChunkStore) ManhattanNeighbors(c voxel.Coord) []voxel.Coord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]voxel.Coord, 0, len(voxel.ManhattanOffsets))
	for _, off := range voxel.ManhattanOffsets {
		n := c.Add(off)
		if s.chunkLocked(n) != nil {
			out = append(out, n)
		}
	}
	return out
}

// IsCompletelySurrounded reports whether no face neighbour of c is both
// valid and empty.
func (s *ChunkStore) IsCompletelySurrounded(c voxel.Coord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chunkLocked(c) == nil {
		return false
	}
	for _, off := range voxel.ManhattanOffsets {
		if s.emptyLocked(c.Add(off)) {
			return false
		}
	}
	return true
}

// MovableNeighbors lists the voxels a walker standing in c can step into.
// Neighbour order is fixed so searches stay deterministic.
func (s *ChunkStore) MovableNeighbors(c voxel.Coord) []voxel.Neighbor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.emptyLocked(c) {
		return nil
	}

	out := make([]voxel.Neighbor, 0, 8)
	above := c.Add(up)
	headroom := s.emptyLocked(above)

	for _, off := range voxel.HorizontalOffsets {
		n := c.Add(off)
		if s.emptyLocked(n) {
			switch {
			case s.liquidLocked(n) > 0:
				out = append(out, voxel.Neighbor{Coord: n, Move: voxel.MoveSwim})
			case s.solidLocked(n.Add(down)):
				out = append(out, voxel.Neighbor{Coord: n, Move: voxel.MoveWalk})
			case s.cfg.Flying:
				out = append(out, voxel.Neighbor{Coord: n, Move: voxel.MoveFly})
			default:
				// Step off a ledge onto the voxel below the neighbour.
				drop := n.Add(down)
				if s.emptyLocked(drop) && s.supportedLocked(drop) {
					out = append(out, voxel.Neighbor{Coord: drop, Move: voxel.MoveFall})
				}
			}
			continue
		}
		// Blocked sideways: try to jump onto it.
		top := n.Add(up)
		if headroom && s.emptyLocked(top) && s.solidLocked(n) {
			out = append(out, voxel.Neighbor{Coord: top, Move: voxel.MoveJump})
		}
	}

	if headroom {
		switch {
		case s.liquidLocked(c) > 0 && s.liquidLocked(above) > 0:
			out = append(out, voxel.Neighbor{Coord: above, Move: voxel.MoveSwim})
		case s.touchesWallLocked(c):
			out = append(out, voxel.Neighbor{Coord: above, Move: voxel.MoveClimb})
		case s.cfg.Flying:
			out = append(out, voxel.Neighbor{Coord: above, Move: voxel.MoveFly})
		}
	}

	below := c.Add(down)
	if s.emptyLocked(below) {
		if s.liquidLocked(below) > 0 {
			out = append(out, voxel.Neighbor{Coord: below, Move: voxel.MoveSwim})
		} else {
			out = append(out, voxel.Neighbor{Coord: below, Move: voxel.MoveFall})
		}
	}
	return out
}

func (s *ChunkStore) emptyLocked(c voxel.Coord) bool {
	ch := s.chunkLocked(c)
	if ch == nil {
		return false
	}
	return ch.Blocks[c.LocalIndex()] == s.cfg.Air
}

func (s *ChunkStore) solidLocked(c voxel.Coord) bool {
	ch := s.chunkLocked(c)
	if ch == nil {
		return false
	}
	return ch.Blocks[c.LocalIndex()] != s.cfg.Air
}

func (s *ChunkStore) liquidLocked(c voxel.Coord) int {
	ch := s.chunkLocked(c)
	if ch == nil {
		return 0
	}
	return int(ch.Liquid[c.LocalIndex()])
}

// supportedLocked reports whether something can rest in c.
func (s *ChunkStore) supportedLocked(c voxel.Coord) bool {
	return s.solidLocked(c.Add(down)) || s.liquidLocked(c) > 0 || s.touchesWallLocked(c)
}

func (s *ChunkStore) touchesWallLocked(c voxel.Coord) bool {
	for _, off := range voxel.HorizontalOffsets {
		if s.solidLocked(c.Add(off)) {
			return true
		}
	}
	return false
}
