package designation

import "context"

// AddEntityDesignation records t on e, with the same per-type update rule as
// voxel designations.
func (s *Set) AddEntityDesignation(e Entity, t Type, tag, taskID string) AddResult {
	if e == nil || t&All == None {
		return Rejected
	}
	var p pending
	res := AlreadyExisted
	id := e.ID()

	s.mu.Lock()
	rec, ok := s.entities.Get(id)
	if !ok {
		rec = &entityRecord{entity: e, byType: map[Type]*EntityDesignation{}}
		s.entities.Set(id, rec)
	}
	rec.entity = e
	for _, single := range (t & All).Singles() {
		if d, ok := rec.byType[single]; ok {
			d.Tag, d.TaskID = tag, taskID
			p.events = append(p.events, entityEvent(OpUpdate, *d))
			continue
		}
		d := &EntityDesignation{EntityID: id, Type: single, Tag: tag, TaskID: taskID}
		rec.byType[single] = d
		res = Added
		p.change(single, 1)
		p.events = append(p.events, entityEvent(OpAdd, *d))
	}
	s.mu.Unlock()

	s.flush(&p)
	return res
}

// RemoveEntityDesignation removes the entity's designations intersecting mask.
func (s *Set) RemoveEntityDesignation(id uint64, mask Type) RemoveResult {
	var p pending
	s.mu.Lock()
	n := s.removeEntityLocked(id, mask, OpRemove, &p)
	s.mu.Unlock()
	if n == 0 {
		return DidntExist
	}
	s.flush(&p)
	return Removed
}

func (s *Set) removeEntityLocked(id uint64, mask Type, op Op, p *pending) int {
	rec, ok := s.entities.Get(id)
	if !ok {
		return 0
	}
	removed := 0
	for t, d := range rec.byType {
		if !t.Intersects(mask) {
			continue
		}
		delete(rec.byType, t)
		removed++
		p.change(t, -1)
		p.events = append(p.events, entityEvent(op, *d))
	}
	if len(rec.byType) == 0 {
		s.entities.Delete(id)
	}
	return removed
}

func (s *Set) GetEntityDesignation(id uint64, mask Type) (EntityDesignation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.entities.Get(id)
	if !ok {
		return EntityDesignation{}, false
	}
	for _, t := range (mask & All).Singles() {
		if d, ok := rec.byType[t]; ok {
			return *d, true
		}
	}
	return EntityDesignation{}, false
}

func (s *Set) IsDesignation(id uint64, mask Type) bool {
	_, ok := s.GetEntityDesignation(id, mask)
	return ok
}

// EnumerateEntityDesignations returns a copy of every entity designation
// matching mask, in the order entities were first designated.
func (s *Set) EnumerateEntityDesignations(mask Type) []EntityDesignation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entitiesLocked(mask)
}

func (s *Set) entitiesLocked(mask Type) []EntityDesignation {
	var out []EntityDesignation
	for el := s.entities.Front(); el != nil; el = el.Next() {
		out = appendEntity(out, el.Value.byType, mask)
	}
	return out
}

func appendEntity(out []EntityDesignation, byType map[Type]*EntityDesignation, mask Type) []EntityDesignation {
	for _, t := range (mask & All).Singles() {
		if d, ok := byType[t]; ok {
			out = append(out, *d)
		}
	}
	return out
}

// CleanupDesignations removes every designation whose entity is dead and
// returns how many were removed. Voxel designations are never swept.
func (s *Set) CleanupDesignations() int {
	var p pending
	s.mu.Lock()
	var dead []uint64
	for el := s.entities.Front(); el != nil; el = el.Next() {
		if el.Value.entity == nil || el.Value.entity.IsDead() {
			dead = append(dead, el.Key)
		}
	}
	removed := 0
	for _, id := range dead {
		removed += s.removeEntityLocked(id, All, OpSweep, &p)
	}
	s.mu.Unlock()

	if removed > 0 {
		s.opts.Metrics.RecordSwept(context.Background(), removed)
		s.log.Printf("swept dead entity designations entities=%d designations=%d", len(dead), removed)
	}
	s.flush(&p)
	return removed
}
