package work

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// cpuBatchSize is the number of nonces a worker tries between checks of the
// stop flag and the request context.
const cpuBatchSize = 256

// CPUGenerator generates work with a pool of goroutines hashing on the CPU.
type CPUGenerator struct {
	*baseGenerator
	searcher *cpuSearcher
}

// NewCPUGenerator creates a CPU work generator. A nil config uses the default
// config.
func NewCPUGenerator(conf *CPUConfig) (*CPUGenerator, error) {
	config, err := MergeCPUConfig(conf)
	if err != nil {
		return nil, err
	}
	s := &cpuSearcher{threads: int(config.Threads)}
	g := &CPUGenerator{
		baseGenerator: newBaseGenerator("cpu", s, config.Generator),
		searcher:      s,
	}
	g.log.Debug("CPU generator created", zap.Int("threads", s.threads))
	return g, nil
}

// Threads returns the number of search goroutines used per request.
func (g *CPUGenerator) Threads() int {
	return g.searcher.threads
}

// Hashes returns the total number of nonces tried since creation.
func (g *CPUGenerator) Hashes() uint64 {
	return g.searcher.hashes.Load()
}

type cpuSearcher struct {
	threads int
	hashes  atomic.Uint64
}

// search splits the nonce space into one slice per thread, each starting at an
// evenly spaced offset from a random base. The first worker to find a
// solution claims the result slot and every other worker stops at its next
// batch boundary. All workers have exited when search returns.
func (s *cpuSearcher) search(ctx context.Context, root Root, target Difficulty) (Solution, error) {
	n := uint64(s.threads)
	stride := math.MaxUint64 / n
	base := randUint64()

	var stop atomic.Bool
	found := make(chan Solution, 1)
	var wg sync.WaitGroup
	for i := uint64(0); i < n; i++ {
		wg.Add(1)
		go func(nonce uint64) {
			defer wg.Done()
			s.work(ctx, root, target, nonce, &stop, found)
		}(base + i*stride)
	}

	var solution Solution
	var err error
	select {
	case solution = <-found:
	case <-ctx.Done():
		err = ctx.Err()
	}
	stop.Store(true)
	wg.Wait()

	return solution, err
}

func (s *cpuSearcher) work(ctx context.Context, root Root, target Difficulty, nonce uint64, stop *atomic.Bool, found chan<- Solution) {
	h, err := blake2b.New(SolutionSize, nil)
	if err != nil {
		return
	}
	var buf [SolutionSize + RootSize]byte
	copy(buf[SolutionSize:], root[:])
	digest := make([]byte, 0, SolutionSize)

	var attempts uint64
	defer func() {
		s.hashes.Add(attempts)
	}()

	for {
		for i := 0; i < cpuBatchSize; i++ {
			binary.LittleEndian.PutUint64(buf[:SolutionSize], nonce)
			h.Reset()
			h.Write(buf[:])
			digest = h.Sum(digest[:0])
			if Difficulty(binary.LittleEndian.Uint64(digest)) >= target {
				attempts += uint64(i + 1)
				if stop.CompareAndSwap(false, true) {
					found <- Solution(nonce)
				}
				return
			}
			nonce++
		}
		attempts += cpuBatchSize
		if stop.Load() || ctx.Err() != nil {
			return
		}
	}
}

func (s *cpuSearcher) release() error {
	return nil
}
