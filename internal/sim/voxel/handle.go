package voxel

// Handle is a resolved, possibly invalid, reference to a voxel in an Index.
// Every accessor checks validity first; an invalid handle reads as
// "no data" and never panics.
type Handle struct {
	idx   Index
	coord Coord
	valid bool
}

// Resolve looks c up in idx. A nil index yields an invalid handle.
func Resolve(idx Index, c Coord) Handle {
	if idx == nil {
		return Handle{coord: c}
	}
	return Handle{idx: idx, coord: c, valid: idx.IsValid(c)}
}

// InvalidHandle returns a handle that answers neutrally to everything.
func InvalidHandle() Handle { return Handle{} }

func (h Handle) Valid() bool  { return h.valid }
func (h Handle) Coord() Coord { return h.coord }

func (h Handle) Chunk() (ChunkKey, bool) {
	if !h.valid {
		return ChunkKey{}, false
	}
	return h.coord.Chunk(), true
}

func (h Handle) IsEmpty() bool {
	if !h.valid {
		return false
	}
	return h.idx.IsEmpty(h.coord)
}

func (h Handle) LiquidLevel() int {
	if !h.valid {
		return 0
	}
	return h.idx.LiquidLevel(h.coord)
}

func (h Handle) IsCompletelySurrounded() bool {
	if !h.valid {
		return false
	}
	return h.idx.IsCompletelySurrounded(h.coord)
}

// Key is the quick-compare key of the handle's coordinate; ok is false for
// invalid handles.
func (h Handle) Key() (key uint64, ok bool) {
	if !h.valid {
		return 0, false
	}
	return h.coord.Key(), true
}

// Refresh re-resolves the handle against its index, picking up chunk loads
// and unloads that happened since it was created.
func (h Handle) Refresh() Handle {
	if h.idx == nil {
		return h
	}
	return Resolve(h.idx, h.coord)
}
