package embeddings

import (
	"context"
	"fmt"
	"sync"
)

// Strategy selects which embedder a gateway call uses.
type Strategy string

const (
	// StrategyLocal uses the in-process model. It is the default.
	StrategyLocal Strategy = "local"
	// StrategyRemote uses the hosted embedding API, falling back to the
	// local model per text on failure.
	StrategyRemote Strategy = "remote"
)

// DefaultSubBatchSize is the number of texts per concurrent remote sub-batch.
const DefaultSubBatchSize = 32

// Gateway converts text to vectors through a local or remote strategy.
// Either embedder may be nil; a request that no configured strategy can
// serve fails with ErrNotConfigured. Both handles are set once at
// construction and never mutated, so the gateway is safe for concurrent use.
type Gateway struct {
	local        Embedder
	remote       Embedder
	subBatchSize int
}

// NewGateway creates a Gateway over the given embedders. Either may be nil.
func NewGateway(local, remote Embedder) *Gateway {
	return &Gateway{
		local:        local,
		remote:       remote,
		subBatchSize: DefaultSubBatchSize,
	}
}

// SetSubBatchSize overrides the remote sub-batch width.
func (g *Gateway) SetSubBatchSize(n int) {
	if n > 0 {
		g.subBatchSize = n
	}
}

// Resolve maps any value outside the known strategies, including the empty
// string, to the default local strategy.
func (s Strategy) Resolve() Strategy {
	if s == StrategyRemote {
		return StrategyRemote
	}
	return StrategyLocal
}

// embedderFor returns the embedder that serves the given strategy, preferring
// the requested one but substituting the other when only it is configured.
func (g *Gateway) embedderFor(s Strategy) Embedder {
	if s.Resolve() == StrategyRemote {
		if g.remote != nil {
			return g.remote
		}
		return g.local
	}
	if g.local != nil {
		return g.local
	}
	return g.remote
}

// Dimension returns the vector dimension the given strategy produces. It must
// be queried before creating a collection; the collection's dimension is
// fixed at creation time.
func (g *Gateway) Dimension(strategy Strategy) (int, error) {
	e := g.embedderFor(strategy)
	if e == nil {
		return 0, ErrNotConfigured
	}
	return e.Dimensions(), nil
}

// Embed generates an embedding for a single text.
func (g *Gateway) Embed(ctx context.Context, text string, strategy Strategy) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text}, strategy)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one text", ErrProvider, len(vectors))
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts, one vector per text in input
// order. With the remote strategy the input is split into sub-batches issued
// concurrently; a failed sub-batch falls back to the local embedder one text
// at a time, so a transient remote failure costs only the affected texts.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string, strategy Strategy) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	e := g.embedderFor(strategy)
	if e == nil {
		return nil, ErrNotConfigured
	}

	if strategy.Resolve() == StrategyRemote && e == g.remote {
		return g.embedRemote(ctx, texts)
	}

	vectors, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProvider, len(vectors), len(texts))
	}
	return vectors, nil
}

func (g *Gateway) embedRemote(ctx context.Context, texts []string) ([][]float32, error) {
	size := g.subBatchSize
	if size <= 0 {
		size = DefaultSubBatchSize
	}

	// Each goroutine writes a disjoint slice of results, so only the error
	// needs locking.
	results := make([][]float32, len(texts))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			vectors, err := g.remote.Embed(ctx, texts[start:end])
			if err == nil && len(vectors) == end-start {
				copy(results[start:end], vectors)
				return
			}

			// Remote failed: fall back to local for each text in this
			// sub-batch individually.
			for i := start; i < end; i++ {
				if ferr := g.fallbackLocal(ctx, texts[i], results, i); ferr != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = ferr
					}
					mu.Unlock()
				}
			}
		}(start, end)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func (g *Gateway) fallbackLocal(ctx context.Context, text string, results [][]float32, i int) error {
	if g.local == nil {
		return fmt.Errorf("%w: remote call failed and no local fallback is configured", ErrProvider)
	}
	vectors, err := g.local.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("%w: remote and local both failed: %v", ErrProvider, err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("%w: local fallback returned %d vectors for one text", ErrProvider, len(vectors))
	}
	results[i] = vectors[0]
	return nil
}
