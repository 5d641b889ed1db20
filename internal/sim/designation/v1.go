package designation

import (
	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/snapshot"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

// V1 converts to the on-disk snapshot records.
func (s Snapshot) V1() ([]snapshot.VoxelDesignationV1, []snapshot.EntityDesignationV1) {
	vs := make([]snapshot.VoxelDesignationV1, 0, len(s.Voxels))
	for _, d := range s.Voxels {
		vs = append(vs, snapshot.VoxelDesignationV1{Pos: d.Voxel.ToArray(), Type: uint32(d.Type), Tag: d.Tag, TaskID: d.TaskID})
	}
	es := make([]snapshot.EntityDesignationV1, 0, len(s.Entities))
	for _, d := range s.Entities {
		es = append(es, snapshot.EntityDesignationV1{EntityID: d.EntityID, Type: uint32(d.Type), Tag: d.Tag, TaskID: d.TaskID})
	}
	return vs, es
}

func FromV1(vs []snapshot.VoxelDesignationV1, es []snapshot.EntityDesignationV1) Snapshot {
	var s Snapshot
	for _, d := range vs {
		s.Voxels = append(s.Voxels, VoxelDesignation{Voxel: voxel.FromArray(d.Pos), Type: Type(d.Type), Tag: d.Tag, TaskID: d.TaskID})
	}
	for _, d := range es {
		s.Entities = append(s.Entities, EntityDesignation{EntityID: d.EntityID, Type: Type(d.Type), Tag: d.Tag, TaskID: d.TaskID})
	}
	return s
}
