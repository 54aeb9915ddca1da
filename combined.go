package work

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// CombinedGenerator races a fixed set of generators. Every request is sent to
// all of them; the first successful result wins and the other sub-requests
// are cancelled. The request fails only when every generator has failed or
// rejected it.
type CombinedGenerator struct {
	generators []Generator
	config     *GeneratorConfig
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	lock     sync.Mutex
	shutdown bool
}

// NewCombinedGenerator creates a CombinedGenerator with the default generator
// config.
func NewCombinedGenerator(generators ...Generator) (*CombinedGenerator, error) {
	return NewCombinedGeneratorWithConfig(nil, generators...)
}

// NewCombinedGeneratorWithConfig creates a CombinedGenerator. Only the logger
// and metrics of conf are used; each generator resolves difficulty with its
// own policy. The same generator instance may not appear twice.
func NewCombinedGeneratorWithConfig(conf *GeneratorConfig, generators ...Generator) (*CombinedGenerator, error) {
	config, err := MergeGeneratorConfig(conf)
	if err != nil {
		return nil, err
	}
	for i, g := range generators {
		if g == nil || (reflect.ValueOf(g).Kind() == reflect.Ptr && reflect.ValueOf(g).IsNil()) {
			return nil, ErrNilGenerator
		}
		for _, other := range generators[:i] {
			if sameGenerator(g, other) {
				return nil, ErrDuplicateGenerator
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CombinedGenerator{
		generators: append([]Generator(nil), generators...),
		config:     config,
		log:        config.Logger.With(zap.String("backend", "combined")),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func sameGenerator(a, b Generator) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Kind() == reflect.Ptr {
		return va.Pointer() == vb.Pointer()
	}
	return va.Type().Comparable() && a == b
}

// Generators returns the raced generators.
func (c *CombinedGenerator) Generators() []Generator {
	return append([]Generator(nil), c.generators...)
}

// Generate races a literal difficulty request.
func (c *CombinedGenerator) Generate(root Root, difficulty Difficulty) (*Handle, error) {
	return c.race(root, func(g Generator) (*Handle, error) {
		return g.Generate(root, difficulty)
	})
}

// GenerateMultiplier races a multiplier request. Each generator resolves the
// difficulty with its own policy.
func (c *CombinedGenerator) GenerateMultiplier(root Root, multiplier float64) (*Handle, error) {
	if !validMultiplier(multiplier) {
		return nil, ErrInvalidMultiplier
	}
	return c.race(root, func(g Generator) (*Handle, error) {
		return g.GenerateMultiplier(root, multiplier)
	})
}

// GenerateBlock races a block request.
func (c *CombinedGenerator) GenerateBlock(block Block, multiplier float64) (*Handle, error) {
	if block == nil {
		return nil, ErrNilBlock
	}
	if !validMultiplier(multiplier) {
		return nil, ErrInvalidMultiplier
	}
	return c.race(block.WorkRoot(), func(g Generator) (*Handle, error) {
		return g.GenerateBlock(block, multiplier)
	})
}

func (c *CombinedGenerator) race(root Root, submit func(Generator) (*Handle, error)) (*Handle, error) {
	c.lock.Lock()
	if c.shutdown {
		c.lock.Unlock()
		return nil, ErrGeneratorShutdown
	}
	h := newHandle(c.ctx, root)
	h.start()
	c.wg.Add(1)
	c.lock.Unlock()

	var errs *multierror.Error
	subs := make([]*Handle, 0, len(c.generators))
	for _, g := range c.generators {
		sub, err := submit(g)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		subs = append(subs, sub)
	}

	c.log.Debug("Work request fanned out",
		zap.String("id", h.ID()),
		zap.Stringer("root", root),
		zap.Int("accepted", len(subs)),
		zap.Int("rejected", len(c.generators)-len(subs)))

	go func() {
		defer c.wg.Done()
		c.coordinate(h, subs, errs)
	}()

	return h, nil
}

// coordinate waits for the first successful sub-handle. A cancelled combined
// handle cancels every sub-handle.
func (c *CombinedGenerator) coordinate(h *Handle, subs []*Handle, errs *multierror.Error) {
	startedAt := time.Now()

	cases := make([]reflect.SelectCase, len(subs)+1)
	for i, sub := range subs {
		cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(sub.Done())}
	}
	cases[len(subs)] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(h.ctx.Done())}

	cancel := func() {
		for _, sub := range subs {
			sub.Cancel()
		}
		h.Cancel()
		c.config.Metrics.observeRequest("combined", StateCancelled, time.Since(startedAt))
		c.log.Debug("Work request cancelled", zap.String("id", h.ID()))
	}

	for pending := len(subs); pending > 0; pending-- {
		chosen, _, _ := reflect.Select(cases)
		if chosen == len(subs) {
			cancel()
			return
		}
		cases[chosen].Chan = reflect.Value{}

		result, err := subs[chosen].outcome()
		if err != nil {
			if h.ctx.Err() != nil {
				cancel()
				return
			}
			errs = multierror.Append(errs, err)
			continue
		}

		for i, sub := range subs {
			if i != chosen {
				sub.Cancel()
			}
		}
		h.complete(result)
		c.config.Metrics.observeRequest("combined", h.State(), time.Since(startedAt))
		c.log.Debug("Work generated",
			zap.String("id", h.ID()),
			zap.String("winner", subs[chosen].ID()),
			zap.Stringer("work", result.Solution),
			zap.Duration("elapsed", time.Since(startedAt)))
		return
	}

	if errs == nil {
		errs = multierror.Append(errs, ErrNoGenerators)
	}
	h.fail(errs)
	c.config.Metrics.observeRequest("combined", h.State(), time.Since(startedAt))
	c.log.Warn("Work request failed on every generator", zap.String("id", h.ID()), zap.Error(errs))
}

// IsShutdown returns true when every generator is shut down. With no
// generators it reports whether Shutdown has been called.
func (c *CombinedGenerator) IsShutdown() bool {
	if len(c.generators) == 0 {
		c.lock.Lock()
		defer c.lock.Unlock()
		return c.shutdown
	}
	for _, g := range c.generators {
		if !g.IsShutdown() {
			return false
		}
	}
	return true
}

// Shutdown cancels every racing request, shuts down every generator and
// stops accepting requests. It is idempotent.
func (c *CombinedGenerator) Shutdown() {
	c.lock.Lock()
	c.shutdown = true
	c.lock.Unlock()

	c.cancel()
	for _, g := range c.generators {
		g.Shutdown()
	}
	c.wg.Wait()
}
