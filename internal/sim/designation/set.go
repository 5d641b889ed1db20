// Package designation is the ledger of pending work orders on voxels and
// entities.
//
// One mutex guards all state. Enumerations return copies, and the cache
// invalidator and journal are called after the lock is released, so
// callbacks may read the set again.
package designation

import (
	"context"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/Blecki/dwarfcorp-sub032/internal/observe"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

type VoxelDesignation struct {
	Voxel  voxel.Coord `json:"voxel"`
	Type   Type        `json:"type"`
	Tag    string      `json:"tag,omitempty"`
	TaskID string      `json:"task_id,omitempty"`
}

type EntityDesignation struct {
	EntityID uint64 `json:"entity_id"`
	Type     Type   `json:"type"`
	Tag      string `json:"tag,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
}

// CacheInvalidator is told about voxels whose designation state changed.
type CacheInvalidator interface {
	InvalidateVoxel(c voxel.Coord)
}

// Journal receives one Event per change.
type Journal interface {
	RecordDesignation(ev Event)
}

type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
	OpSweep  Op = "sweep"
)

type Event struct {
	Op       Op           `json:"op"`
	Type     Type         `json:"type"`
	Voxel    *voxel.Coord `json:"voxel,omitempty"`
	EntityID uint64       `json:"entity_id,omitempty"`
	Tag      string       `json:"tag,omitempty"`
	TaskID   string       `json:"task_id,omitempty"`
}

type Options struct {
	// Index, when set, rejects designations on invalid voxels.
	Index       voxel.Index
	Invalidator CacheInvalidator
	Journal     Journal
	Metrics     *observe.Metrics
	Logger      *log.Logger
}

type entityRecord struct {
	entity Entity
	byType map[Type]*EntityDesignation
}

type Set struct {
	opts Options
	log  *log.Logger

	mu       sync.Mutex
	voxels   map[uint64]map[Type]*VoxelDesignation
	entities *orderedmap.OrderedMap[uint64, *entityRecord]
}

func NewSet(opts Options) *Set {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Set{
		opts:     opts,
		log:      logger,
		voxels:   map[uint64]map[Type]*VoxelDesignation{},
		entities: newEntityMap(),
	}
}

func newEntityMap() *orderedmap.OrderedMap[uint64, *entityRecord] {
	return orderedmap.NewOrderedMap[uint64, *entityRecord]()
}

// pending collects side effects produced under the lock.
type pending struct {
	voxels []voxel.Coord
	events []Event
	deltas map[Type]int64
}

func (p *pending) change(t Type, d int64) {
	if p.deltas == nil {
		p.deltas = map[Type]int64{}
	}
	p.deltas[t] += d
}

func (s *Set) flush(p *pending) {
	ctx := context.Background()
	for t, d := range p.deltas {
		s.opts.Metrics.AddDesignations(ctx, t.String(), d)
	}
	if s.opts.Invalidator != nil {
		for _, c := range p.voxels {
			s.opts.Invalidator.InvalidateVoxel(c)
		}
	}
	if s.opts.Journal != nil {
		for _, ev := range p.events {
			s.opts.Journal.RecordDesignation(ev)
		}
	}
}

func voxelEvent(op Op, d VoxelDesignation) Event {
	c := d.Voxel
	return Event{Op: op, Type: d.Type, Voxel: &c, Tag: d.Tag, TaskID: d.TaskID}
}

func entityEvent(op Op, d EntityDesignation) Event {
	return Event{Op: op, Type: d.Type, EntityID: d.EntityID, Tag: d.Tag, TaskID: d.TaskID}
}

// AddVoxelDesignation records t on c. A type already present on c keeps its
// record and takes the new tag and task. Each bit of a combined t is stored
// as its own designation; the result is Added when any bit was new.
func (s *Set) AddVoxelDesignation(c voxel.Coord, t Type, tag, taskID string) AddResult {
	if t&All == None || !c.InKeyRange() {
		return Rejected
	}
	if s.opts.Index != nil && !s.opts.Index.IsValid(c) {
		return Rejected
	}

	var p pending
	res := AlreadyExisted
	s.mu.Lock()
	key := c.Key()
	byType := s.voxels[key]
	if byType == nil {
		byType = map[Type]*VoxelDesignation{}
		s.voxels[key] = byType
	}
	for _, single := range (t & All).Singles() {
		if d, ok := byType[single]; ok {
			d.Tag, d.TaskID = tag, taskID
			p.events = append(p.events, voxelEvent(OpUpdate, *d))
			continue
		}
		d := &VoxelDesignation{Voxel: c, Type: single, Tag: tag, TaskID: taskID}
		byType[single] = d
		res = Added
		p.change(single, 1)
		p.events = append(p.events, voxelEvent(OpAdd, *d))
	}
	s.mu.Unlock()

	if res == Added {
		p.voxels = append(p.voxels, c)
	}
	s.flush(&p)
	return res
}

// RemoveVoxelDesignation removes every designation on c whose type
// intersects mask.
func (s *Set) RemoveVoxelDesignation(c voxel.Coord, mask Type) RemoveResult {
	var p pending
	s.mu.Lock()
	n := s.removeVoxelLocked(c, mask, &p)
	s.mu.Unlock()
	if n == 0 {
		return DidntExist
	}
	p.voxels = append(p.voxels, c)
	s.flush(&p)
	return Removed
}

func (s *Set) removeVoxelLocked(c voxel.Coord, mask Type, p *pending) int {
	if !c.InKeyRange() {
		return 0
	}
	key := c.Key()
	byType := s.voxels[key]
	removed := 0
	for t, d := range byType {
		if !t.Intersects(mask) {
			continue
		}
		delete(byType, t)
		removed++
		p.change(t, -1)
		p.events = append(p.events, voxelEvent(OpRemove, *d))
	}
	if len(byType) == 0 {
		delete(s.voxels, key)
	}
	return removed
}

// InvalidateVoxel drops every designation on c. Call it when the voxel's
// block type changes.
func (s *Set) InvalidateVoxel(c voxel.Coord) int {
	var p pending
	s.mu.Lock()
	n := s.removeVoxelLocked(c, All, &p)
	s.mu.Unlock()
	if n > 0 {
		p.voxels = append(p.voxels, c)
		s.flush(&p)
	}
	return n
}

// GetVoxelDesignation returns the lowest-bit designation on c matching mask.
func (s *Set) GetVoxelDesignation(c voxel.Coord, mask Type) (VoxelDesignation, bool) {
	if !c.InKeyRange() {
		return VoxelDesignation{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byType := s.voxels[c.Key()]
	for _, t := range (mask & All).Singles() {
		if d, ok := byType[t]; ok {
			return *d, true
		}
	}
	return VoxelDesignation{}, false
}

func (s *Set) IsVoxelDesignation(c voxel.Coord, mask Type) bool {
	_, ok := s.GetVoxelDesignation(c, mask)
	return ok
}

// VoxelDesignations lists every designation on c, lowest type bit first.
func (s *Set) VoxelDesignations(c voxel.Coord) []VoxelDesignation {
	if !c.InKeyRange() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendVoxel(nil, s.voxels[c.Key()], All)
}

func appendVoxel(out []VoxelDesignation, byType map[Type]*VoxelDesignation, mask Type) []VoxelDesignation {
	for _, t := range (mask & All).Singles() {
		if d, ok := byType[t]; ok {
			out = append(out, *d)
		}
	}
	return out
}

// EnumerateDesignations returns a copy of every voxel designation matching
// mask, ordered by voxel key and then type bit.
func (s *Set) EnumerateDesignations(mask Type) []VoxelDesignation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voxelsLocked(mask)
}

func (s *Set) voxelsLocked(mask Type) []VoxelDesignation {
	keys := make([]uint64, 0, len(s.voxels))
	for k := range s.voxels {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	var out []VoxelDesignation
	for _, k := range keys {
		out = appendVoxel(out, s.voxels[k], mask)
	}
	return out
}
