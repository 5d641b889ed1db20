// Package service runs path searches off the caller's goroutine.
//
// Submit never blocks: requests go into an unbounded FIFO drained by a small
// worker pool, and every request gets exactly one Response on its reply
// channel, even when that channel is shared and momentarily full. Once submitted a request runs to completion; there is no
// cancellation, so callers re-validate the goal when the answer arrives.
package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"

	"github.com/Blecki/dwarfcorp-sub032/internal/observe"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/astar"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/goal"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

type Request struct {
	ID     string
	Sender string
	Start  voxel.Coord
	Goal   goal.Region

	// Zero MaxExpansions and nil HeuristicWeight fall back to the service
	// defaults. A weight of 0 runs a uniform-cost search.
	MaxExpansions   int
	HeuristicWeight *float64

	// Reply receives the response. It may be shared between requests; a nil
	// Reply gets a fresh buffered channel, returned by Submit.
	Reply chan Response
}

type Response struct {
	RequestID  string             `json:"request_id"`
	Sender     string             `json:"sender"`
	Status     astar.Status       `json:"status"`
	Success    bool               `json:"success"`
	Path       []astar.MoveAction `json:"path,omitempty"`
	Expansions int                `json:"expansions"`
	Cost       float64            `json:"cost"`
	Duration   time.Duration      `json:"duration"`
}

// Sink receives every finished request. Sinks must not block.
type Sink interface {
	RecordPlan(req Request, resp Response)
}

type Config struct {
	Workers int
	// Defaults is used as given, except that a zero MaxExpansions becomes
	// astar.DefaultMaxExpansions and an all-zero Params gets weight 1.
	Defaults       astar.Params
	QueueWarnDepth int

	Logger  *log.Logger
	Metrics *observe.Metrics
	Sinks   []Sink
}

type Stats struct {
	Submitted uint64
	Completed uint64
	// DeferredReplies counts responses handed to a goroutine because the
	// reply channel was full at completion.
	DeferredReplies uint64
	Panics          uint64
	QueueDepth      int
	Workers         int
}

type Service struct {
	planner *astar.Planner
	cfg     Config
	log     *log.Logger

	mu     sync.Mutex
	queue  []Request
	closed bool
	wake   chan struct{}

	submitted atomic.Uint64
	completed atomic.Uint64
	deferred  atomic.Uint64
	panics    atomic.Uint64
}

func New(p *astar.Planner, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Defaults == (astar.Params{}) {
		cfg.Defaults.HeuristicWeight = 1
	}
	if cfg.Defaults.MaxExpansions <= 0 {
		cfg.Defaults.MaxExpansions = astar.DefaultMaxExpansions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		planner: p,
		cfg:     cfg,
		log:     logger,
		wake:    make(chan struct{}, 1),
	}
}

// Submit enqueues req and returns the channel its Response will arrive on.
func (s *Service) Submit(req Request) <-chan Response {
	if req.Reply == nil {
		req.Reply = make(chan Response, 1)
	}
	s.submitted.Add(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.deliver(req, shutdownResponse(req))
		return req.Reply
	}
	s.queue = append(s.queue, req)
	depth := len(s.queue)
	s.mu.Unlock()

	s.cfg.Metrics.AddQueueDepth(context.Background(), 1)
	if s.cfg.QueueWarnDepth > 0 && depth == s.cfg.QueueWarnDepth {
		s.log.Printf("plan queue deep depth=%d", depth)
	}
	s.signal()
	return req.Reply
}

func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) pop() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Request{}, false
	}
	req := s.queue[0]
	s.queue[0] = Request{}
	s.queue = s.queue[1:]
	if len(s.queue) > 0 {
		// Hand the remaining work to another idle worker.
		s.signal()
	}
	return req, true
}

// Run starts the workers and blocks until ctx is done. Requests still queued
// at that point are answered with StatusShutdown, and later Submits are
// answered immediately the same way.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			s.worker(gctx)
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	s.closed = true
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, req := range pending {
		s.cfg.Metrics.AddQueueDepth(context.Background(), -1)
		s.deliver(req, shutdownResponse(req))
	}
	if len(pending) > 0 {
		s.log.Printf("plan service drained pending=%d", len(pending))
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for {
			if ctx.Err() != nil {
				return
			}
			req, ok := s.pop()
			if !ok {
				break
			}
			s.cfg.Metrics.AddQueueDepth(ctx, -1)
			s.deliver(req, s.HandleRequest(req))
		}
	}
}

// HandleRequest runs one search synchronously. It never panics: a panic in
// the search is reported and answered with StatusInternal.
func (s *Service) HandleRequest(req Request) (resp Response) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.log.Printf("plan panic request=%s sender=%s: %v", req.ID, req.Sender, r)
			hub := sentry.CurrentHub().Clone()
			hub.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("request_id", req.ID)
				scope.SetTag("sender", req.Sender)
			})
			hub.Recover(fmt.Errorf("plan request %s: %v", req.ID, r))
			resp = Response{RequestID: req.ID, Sender: req.Sender, Status: astar.StatusInternal}
		}
		resp.Duration = time.Since(started)
		s.record(req, resp)
	}()

	params := s.cfg.Defaults
	if req.MaxExpansions > 0 {
		params.MaxExpansions = req.MaxExpansions
	}
	if req.HeuristicWeight != nil {
		params.HeuristicWeight = *req.HeuristicWeight
	}
	res := s.planner.FindPath(req.Start, req.Goal, params)
	return Response{
		RequestID:  req.ID,
		Sender:     req.Sender,
		Status:     res.Status,
		Success:    res.Success(),
		Path:       res.Path,
		Expansions: res.Expansions,
		Cost:       res.Cost,
	}
}

func (s *Service) record(req Request, resp Response) {
	s.cfg.Metrics.RecordPlan(context.Background(), resp.Status.String(), resp.Expansions, resp.Duration)
	for _, sink := range s.cfg.Sinks {
		sink.RecordPlan(req, resp)
	}
}

// deliver never blocks the worker. When the reply channel is full the send
// moves to its own goroutine and completes once the caller reads.
func (s *Service) deliver(req Request, resp Response) {
	s.completed.Add(1)
	select {
	case req.Reply <- resp:
	default:
		s.deferred.Add(1)
		go func() { req.Reply <- resp }()
	}
}

func shutdownResponse(req Request) Response {
	return Response{RequestID: req.ID, Sender: req.Sender, Status: astar.StatusShutdown}
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	depth := len(s.queue)
	s.mu.Unlock()
	return Stats{
		Submitted:       s.submitted.Load(),
		Completed:       s.completed.Load(),
		DeferredReplies: s.deferred.Load(),
		Panics:          s.panics.Load(),
		QueueDepth:      depth,
		Workers:         s.cfg.Workers,
	}
}
