package work

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Generator generates work asynchronously. Requests submitted to one
// generator are started in submission order.
type Generator interface {
	// Generate requests work for root meeting a literal difficulty.
	Generate(root Root, difficulty Difficulty) (*Handle, error)

	// GenerateMultiplier requests work for root meeting the policy's generic
	// difficulty times the policy's recommended multiplier times multiplier.
	GenerateMultiplier(root Root, multiplier float64) (*Handle, error)

	// GenerateBlock requests work for a block meeting the policy's difficulty
	// for that block times the recommended multiplier times multiplier.
	GenerateBlock(block Block, multiplier float64) (*Handle, error)

	// IsShutdown returns whether the generator no longer accepts requests.
	IsShutdown() bool

	// Shutdown interrupts the running request, cancels queued requests and
	// releases backend resources. It is idempotent.
	Shutdown()
}

// searcher is the backend hook of a baseGenerator.
type searcher interface {
	// search blocks until it finds a solution for root meeting target, or
	// until ctx is done.
	search(ctx context.Context, root Root, target Difficulty) (Solution, error)

	// release frees backend resources. It is called once, after the last
	// search has returned.
	release() error
}

type request struct {
	root     Root
	source   DifficultySource
	handle   *Handle
	queuedAt time.Time
}

// baseGenerator owns a FIFO request queue drained by a single consumer
// goroutine. The difficulty of a request is resolved only when the consumer
// takes it off the queue, so time varying policies are evaluated at the
// moment of computation.
type baseGenerator struct {
	name     string
	searcher searcher
	config   *GeneratorConfig
	log      *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	notify      chan struct{}
	stopped     chan struct{}
	releaseOnce sync.Once

	lock     sync.Mutex
	queue    []*request
	current  *request
	shutdown bool
}

func newBaseGenerator(name string, s searcher, config *GeneratorConfig) *baseGenerator {
	ctx, cancel := context.WithCancel(context.Background())
	g := &baseGenerator{
		name:     name,
		searcher: s,
		config:   config,
		log:      config.Logger.With(zap.String("backend", name)),
		ctx:      ctx,
		cancel:   cancel,
		notify:   make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
	go g.consume()
	return g
}

// Name returns the backend name.
func (g *baseGenerator) Name() string {
	return g.name
}

// Policy returns the difficulty policy of the generator.
func (g *baseGenerator) Policy() DifficultyPolicy {
	return g.config.Policy
}

// Generate requests work for root meeting a literal difficulty.
func (g *baseGenerator) Generate(root Root, difficulty Difficulty) (*Handle, error) {
	return g.submit(root, LiteralDifficulty(difficulty))
}

// GenerateMultiplier requests work for root against the policy's generic
// difficulty. The multiplier stacks on top of the policy's recommended
// multiplier.
func (g *baseGenerator) GenerateMultiplier(root Root, multiplier float64) (*Handle, error) {
	if !validMultiplier(multiplier) {
		return nil, ErrInvalidMultiplier
	}
	return g.submit(root, PolicyDifficulty(g.config.Policy, nil, multiplier))
}

// GenerateBlock requests work for block against the policy's difficulty for
// it. The multiplier stacks on top of the policy's recommended multiplier.
func (g *baseGenerator) GenerateBlock(block Block, multiplier float64) (*Handle, error) {
	if block == nil {
		return nil, ErrNilBlock
	}
	if !validMultiplier(multiplier) {
		return nil, ErrInvalidMultiplier
	}
	return g.submit(block.WorkRoot(), PolicyDifficulty(g.config.Policy, block, multiplier))
}

func (g *baseGenerator) submit(root Root, source DifficultySource) (*Handle, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.shutdown {
		return nil, ErrGeneratorShutdown
	}

	req := &request{
		root:     root,
		source:   source,
		handle:   newHandle(g.ctx, root),
		queuedAt: time.Now(),
	}
	g.queue = append(g.queue, req)
	g.config.Metrics.setQueueDepth(g.name, len(g.queue))

	select {
	case g.notify <- struct{}{}:
	default:
	}

	g.log.Debug("Work request queued",
		zap.String("id", req.handle.ID()),
		zap.Stringer("root", root),
		zap.Int("depth", len(g.queue)))

	return req.handle, nil
}

// next blocks until a request is available or the generator is shut down.
func (g *baseGenerator) next() (*request, bool) {
	for {
		g.lock.Lock()
		if g.shutdown {
			g.lock.Unlock()
			return nil, false
		}
		if len(g.queue) > 0 {
			req := g.queue[0]
			g.queue[0] = nil
			g.queue = g.queue[1:]
			g.current = req
			g.config.Metrics.setQueueDepth(g.name, len(g.queue))
			g.lock.Unlock()
			return req, true
		}
		g.lock.Unlock()

		select {
		case <-g.notify:
		case <-g.ctx.Done():
			return nil, false
		}
	}
}

func (g *baseGenerator) consume() {
	defer close(g.stopped)
	for {
		req, ok := g.next()
		if !ok {
			return
		}
		g.process(req)

		g.lock.Lock()
		g.current = nil
		g.lock.Unlock()
	}
}

func (g *baseGenerator) process(req *request) {
	h := req.handle
	if !h.start() {
		g.config.Metrics.observeRequest(g.name, StateCancelled, 0)
		return
	}

	startedAt := time.Now()
	result, err := g.compute(h.ctx, req)
	switch {
	case err == nil:
		h.complete(result)
	case h.ctx.Err() != nil:
		h.Cancel()
	default:
		h.fail(err)
	}

	elapsed := time.Since(startedAt)
	state := h.State()
	g.config.Metrics.observeRequest(g.name, state, elapsed)

	switch state {
	case StateCompleted:
		g.log.Debug("Work generated",
			zap.String("id", h.ID()),
			zap.Stringer("root", req.root),
			zap.Stringer("work", result.Solution),
			zap.Stringer("difficulty", result.Difficulty),
			zap.Float64("multiplier", result.Multiplier),
			zap.Duration("elapsed", elapsed),
			zap.Duration("waited", startedAt.Sub(req.queuedAt)))
	case StateCancelled:
		g.log.Debug("Work request cancelled", zap.String("id", h.ID()), zap.Stringer("root", req.root))
	case StateFailed:
		g.log.Warn("Work request failed", zap.String("id", h.ID()), zap.Stringer("root", req.root), zap.Error(err))
	}
}

func (g *baseGenerator) compute(ctx context.Context, req *request) (*Result, error) {
	base, multiplier, err := req.source.Resolve()
	if err != nil {
		return nil, err
	}
	target, err := base.Multiply(multiplier)
	if err != nil {
		return nil, err
	}

	solution, err := g.searcher.search(ctx, req.root, target)
	if err != nil {
		return nil, err
	}
	if !target.Satisfies(req.root, solution) {
		return nil, fmt.Errorf("%w: %s for %s", ErrInvalidSolution, solution, req.root)
	}

	return &Result{
		Solution:   solution,
		Root:       req.root,
		Difficulty: base,
		Multiplier: multiplier,
	}, nil
}

// IsShutdown returns whether Shutdown has been called.
func (g *baseGenerator) IsShutdown() bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.shutdown
}

// Shutdown interrupts the running request, cancels every queued request,
// waits for the consumer to exit and releases backend resources. Calling it
// more than once is safe.
func (g *baseGenerator) Shutdown() {
	g.lock.Lock()
	var queued []*request
	var current *request
	if !g.shutdown {
		g.shutdown = true
		queued = g.queue
		current = g.current
		g.queue = nil
		g.config.Metrics.setQueueDepth(g.name, 0)
	}
	g.lock.Unlock()

	for _, req := range queued {
		if req.handle.Cancel() {
			g.config.Metrics.observeRequest(g.name, StateCancelled, 0)
		}
	}
	if current != nil {
		current.handle.Cancel()
	}
	g.cancel()
	<-g.stopped

	g.releaseOnce.Do(func() {
		if err := g.searcher.release(); err != nil {
			g.log.Warn("Release generator resources error", zap.Error(err))
		}
		g.log.Debug("Generator shut down", zap.Int("cancelled", len(queued)))
	})
}
