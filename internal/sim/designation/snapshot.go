package designation

import (
	"encoding/binary"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

// Snapshot is a point-in-time copy of the ledger. Entities are stored by id;
// ImportSnapshot needs a resolver to reattach them.
type Snapshot struct {
	Voxels   []VoxelDesignation  `json:"voxels"`
	Entities []EntityDesignation `json:"entities"`
}

// ExportSnapshot copies voxel and entity designations under one lock.
func (s *Set) ExportSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Voxels:   s.voxelsLocked(All),
		Entities: s.entitiesLocked(All),
	}
}

// ImportSnapshot replaces the ledger contents. Entity designations whose id
// resolves to nil are dropped. It returns the number of records kept.
func (s *Set) ImportSnapshot(snap Snapshot, resolve func(id uint64) Entity) int {
	var p pending
	voxels := map[uint64]map[Type]*VoxelDesignation{}
	for _, d := range snap.Voxels {
		if d.Type&All == None || !d.Voxel.InKeyRange() {
			continue
		}
		if s.opts.Index != nil && !s.opts.Index.IsValid(d.Voxel) {
			continue
		}
		k := d.Voxel.Key()
		if voxels[k] == nil {
			voxels[k] = map[Type]*VoxelDesignation{}
		}
		for _, single := range (d.Type & All).Singles() {
			cp := d
			cp.Type = single
			voxels[k][single] = &cp
		}
	}

	entities := newEntityMap()
	for _, d := range snap.Entities {
		if d.Type&All == None || resolve == nil {
			continue
		}
		e := resolve(d.EntityID)
		if e == nil {
			continue
		}
		rec, ok := entities.Get(d.EntityID)
		if !ok {
			rec = &entityRecord{entity: e, byType: map[Type]*EntityDesignation{}}
			entities.Set(d.EntityID, rec)
		}
		for _, single := range (d.Type & All).Singles() {
			cp := d
			cp.Type = single
			rec.byType[single] = &cp
		}
	}

	s.mu.Lock()
	for k, byType := range s.voxels {
		p.voxels = append(p.voxels, voxel.FromKey(k))
		for t := range byType {
			p.change(t, -1)
		}
	}
	for el := s.entities.Front(); el != nil; el = el.Next() {
		for t := range el.Value.byType {
			p.change(t, -1)
		}
	}
	kept := 0
	for k, byType := range voxels {
		p.voxels = append(p.voxels, voxel.FromKey(k))
		for t := range byType {
			p.change(t, 1)
			kept++
		}
	}
	for el := entities.Front(); el != nil; el = el.Next() {
		for t := range el.Value.byType {
			p.change(t, 1)
			kept++
		}
	}
	s.voxels = voxels
	s.entities = entities
	s.mu.Unlock()

	s.flush(&p)
	return kept
}

// Counts returns the number of live designations per single type, voxel and
// entity designations together.
func (s *Set) Counts() map[Type]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[Type]int{}
	for _, byType := range s.voxels {
		for t := range byType {
			out[t]++
		}
	}
	for el := s.entities.Front(); el != nil; el = el.Next() {
		for t := range el.Value.byType {
			out[t]++
		}
	}
	return out
}

func (s *Set) Len() int {
	n := 0
	for _, c := range s.Counts() {
		n += c
	}
	return n
}

// Digest is a stable hash of the ledger contents. Equal ledgers have equal
// digests regardless of insertion order.
func (s *Set) Digest() uint64 { return s.ExportSnapshot().Digest() }

// Counts tallies the snapshot per single type.
func (snap Snapshot) Counts() map[Type]int {
	out := map[Type]int{}
	for _, d := range snap.Voxels {
		out[d.Type]++
	}
	for _, d := range snap.Entities {
		out[d.Type]++
	}
	return out
}

// Digest hashes the snapshot the same way Set.Digest hashes the ledger.
// Voxels must be in key order, as ExportSnapshot returns them.
func (snap Snapshot) Digest() uint64 {
	entities := append([]EntityDesignation(nil), snap.Entities...)
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].EntityID != entities[j].EntityID {
			return entities[i].EntityID < entities[j].EntityID
		}
		return entities[i].Type < entities[j].Type
	})

	h := xxh3.New()
	var tmp [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		_, _ = h.Write(tmp[:])
	}
	writeStr := func(v string) {
		writeU64(uint64(len(v)))
		_, _ = h.WriteString(v)
	}
	writeU64(uint64(len(snap.Voxels)))
	for _, d := range snap.Voxels {
		writeU64(d.Voxel.Key())
		writeU64(uint64(d.Type))
		writeStr(d.Tag)
		writeStr(d.TaskID)
	}
	writeU64(uint64(len(entities)))
	for _, d := range entities {
		writeU64(d.EntityID)
		writeU64(uint64(d.Type))
		writeStr(d.Tag)
		writeStr(d.TaskID)
	}
	return h.Sum64()
}
