// Package astar finds minimum-cost move sequences over a voxel.Index.
package astar

import (
	"container/heap"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/goal"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

// DefaultMaxExpansions bounds searches whose Params leave it unset.
const DefaultMaxExpansions = 10000

type Status uint8

const (
	StatusFound Status = iota
	StatusUnreachable
	StatusSealed
	StatusBudgetExceeded
	StatusInvalid
	StatusInternal
	StatusShutdown
)

var statusNames = [...]string{
	StatusFound:          "FOUND",
	StatusUnreachable:    "UNREACHABLE",
	StatusSealed:         "SEALED",
	StatusBudgetExceeded: "BUDGET_EXCEEDED",
	StatusInvalid:        "INVALID",
	StatusInternal:       "INTERNAL",
	StatusShutdown:       "SHUTDOWN",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN"
}

// Retryable reports whether the same request might succeed later with a
// larger budget or after the world changes.
func (s Status) Retryable() bool {
	return s == StatusBudgetExceeded || s == StatusShutdown || s == StatusInternal
}

// MoveAction is one step of a path. Source chains each action to the
// previous one.
type MoveAction struct {
	Voxel  voxel.Coord    `json:"voxel"`
	Source voxel.Coord    `json:"source"`
	Move   voxel.MoveType `json:"move"`
	Cost   float64        `json:"cost"`
}

type Params struct {
	MaxExpansions   int
	HeuristicWeight float64
}

func (p Params) normalized() Params {
	if p.MaxExpansions <= 0 {
		p.MaxExpansions = DefaultMaxExpansions
	}
	if p.HeuristicWeight < 0 {
		p.HeuristicWeight = 0
	}
	return p
}

// Result is a finished search. Path starts with the start voxel (MoveNone)
// and, when Status is StatusFound, ends in a voxel satisfying the goal.
type Result struct {
	Status     Status
	Path       []MoveAction
	Expansions int
	Cost       float64
}

func (r Result) Success() bool { return r.Status == StatusFound }

// Planner is stateless between calls and safe for concurrent use as long
// as its Index is.
type Planner struct {
	idx   voxel.Index
	costs Costs
}

func New(idx voxel.Index, costs Costs) *Planner {
	return &Planner{idx: idx, costs: costs}
}

func (p *Planner) Costs() Costs { return p.costs }

// FindPath searches from start to any voxel in g.
func (p *Planner) FindPath(start voxel.Coord, g goal.Region, params Params) Result {
	params = params.normalized()
	if p.idx == nil || g == nil {
		return Result{Status: StatusInvalid}
	}
	sh := voxel.Resolve(p.idx, start)
	if !sh.Valid() {
		return Result{Status: StatusInvalid}
	}
	if !g.IsPossible() {
		return Result{Status: StatusSealed}
	}
	rep := g.RepresentativeVoxel()
	atGoal := g.IsInGoalRegion(start)
	if rep.IsCompletelySurrounded() && !atGoal {
		return Result{Status: StatusSealed}
	}
	if atGoal {
		return Result{Status: StatusFound, Path: []MoveAction{{Voxel: start, Source: start, Move: voxel.MoveNone}}}
	}
	if sh.IsCompletelySurrounded() {
		return Result{Status: StatusSealed}
	}

	adjacentFinish := goal.AllowsAdjacentFinish(g) && rep.Valid()

	nodes := make(map[uint64]*node, 256)
	open := make(openSet, 0, 256)
	var seq uint64

	root := &node{
		key:    start.Key(),
		action: MoveAction{Voxel: start, Source: start, Move: voxel.MoveNone},
		f:      params.HeuristicWeight * g.Heuristic(start),
		root:   true,
	}
	nodes[root.key] = root
	heap.Push(&open, root)

	expansions := 0
	for open.Len() > 0 {
		cur := heap.Pop(&open).(*node)
		cur.closed = true
		c := cur.action.Voxel

		if g.IsInGoalRegion(c) {
			return Result{Status: StatusFound, Path: reconstruct(nodes, cur), Expansions: expansions, Cost: cur.g}
		}
		if adjacentFinish && voxel.IsManhattanAdjacent(c, rep.Coord()) {
			last := p.finalStep(c, rep.Coord())
			path := append(reconstruct(nodes, cur), last)
			return Result{Status: StatusFound, Path: path, Expansions: expansions, Cost: cur.g + last.Cost}
		}

		if expansions >= params.MaxExpansions {
			return Result{Status: StatusBudgetExceeded, Expansions: expansions}
		}
		expansions++

		for _, nb := range p.idx.MovableNeighbors(c) {
			k := nb.Coord.Key()
			existing := nodes[k]
			if existing != nil && existing.closed {
				continue
			}
			step := p.costs.StepCost(p.idx, c, nb.Coord, nb.Move)
			tentative := cur.g + step
			if existing != nil && tentative >= existing.g {
				continue
			}
			seq++
			f := tentative + params.HeuristicWeight*g.Heuristic(nb.Coord)
			action := MoveAction{Voxel: nb.Coord, Source: c, Move: nb.Move, Cost: step}
			if existing == nil {
				n := &node{key: k, parent: cur.key, action: action, g: tentative, f: f, seq: seq}
				nodes[k] = n
				heap.Push(&open, n)
				continue
			}
			existing.parent = cur.key
			existing.action = action
			existing.g = tentative
			existing.f = f
			existing.seq = seq
			heap.Fix(&open, existing.index)
		}
	}
	return Result{Status: StatusUnreachable, Expansions: expansions}
}

// finalStep is the appended action into the goal voxel when the search
// stops one face away from it.
func (p *Planner) finalStep(from, to voxel.Coord) MoveAction {
	move := voxel.MoveWalk
	switch {
	case to.Y > from.Y:
		move = voxel.MoveClimb
	case to.Y < from.Y:
		move = voxel.MoveFall
	}
	return MoveAction{Voxel: to, Source: from, Move: move, Cost: p.costs.StepCost(p.idx, from, to, move)}
}

// reconstruct walks the parent chain back to the root and reverses it.
func reconstruct(nodes map[uint64]*node, end *node) []MoveAction {
	var path []MoveAction
	for n := end; n != nil; {
		path = append(path, n.action)
		if n.root {
			break
		}
		n = nodes[n.parent]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
