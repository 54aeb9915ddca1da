package work

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/http"
	"sort"
	"sync"
	"time"
)

// RandomBytes return cryptographically secure random bytes with given size.
func RandomBytes(numBytes int) ([]byte, error) {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func randUint64() uint64 {
	max := new(big.Int).Lsh(big.NewInt(1), 64)
	for {
		result, err := rand.Int(rand.Reader, max)
		if err != nil {
			continue
		}
		return result.Uint64()
	}
}

// NodeLatency is the result of measuring one node RPC server.
type NodeLatency struct {
	Addr    string
	Latency time.Duration
}

// MeasureNodes queries active_difficulty on every node RPC server in parallel
// and returns the ones that answered, sorted by latency from low to high.
// Timeout is in millisecond and applies to each node.
func MeasureNodes(ctx context.Context, addrs []string, timeout int32) ([]NodeLatency, error) {
	var wg sync.WaitGroup
	var lock sync.Mutex
	results := make([]NodeLatency, 0, len(addrs))
	client := &http.Client{Timeout: time.Duration(timeout) * time.Millisecond}

	for _, addr := range addrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			start := time.Now()
			err := callWithCode(ctx, client, addr, "active_difficulty", nil, &activeDifficultyResponse{})
			if err != nil {
				return
			}
			lock.Lock()
			results = append(results, NodeLatency{Addr: addr, Latency: time.Since(start)})
			lock.Unlock()
		}(addr)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Latency < results[j].Latency
	})
	return results, nil
}
