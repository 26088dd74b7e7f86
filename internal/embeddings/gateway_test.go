package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeEmbedder maps each text to a one-dimensional vector holding its first
// byte, so output order is trivially checkable. It records every batch it
// receives.
type fakeEmbedder struct {
	dims    int
	name    string
	failAll bool

	mu      sync.Mutex
	batches [][]string
}

func newFakeEmbedder(name string) *fakeEmbedder {
	return &fakeEmbedder{dims: 1, name: name}
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.mu.Unlock()

	if f.failAll {
		return nil, errors.New("fake embedder unavailable")
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		var b float32
		if text != "" {
			b = float32(text[0])
		}
		vectors[i] = []float32{b}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) Name() string    { return f.name }

func (f *fakeEmbedder) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func wantVector(t *testing.T, got []float32, text string) {
	t.Helper()
	if len(got) != 1 || got[0] != float32(text[0]) {
		t.Errorf("vector for %q = %v, want [%v]", text, got, float32(text[0]))
	}
}

func TestGateway_NoProvidersConfigured(t *testing.T) {
	g := NewGateway(nil, nil)

	if _, err := g.Embed(context.Background(), "hello", StrategyLocal); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Embed error = %v, want ErrNotConfigured", err)
	}
	if _, err := g.Dimension(StrategyRemote); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Dimension error = %v, want ErrNotConfigured", err)
	}
}

func TestGateway_DefaultStrategyIsLocal(t *testing.T) {
	local := newFakeEmbedder("local")
	remote := newFakeEmbedder("remote")
	g := NewGateway(local, remote)

	vec, err := g.Embed(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	wantVector(t, vec, "q")

	if len(local.batches) != 1 {
		t.Errorf("local received %d batches, want 1", len(local.batches))
	}
	if len(remote.batches) != 0 {
		t.Errorf("remote received %d batches, want 0", len(remote.batches))
	}
}

func TestGateway_RemoteSubBatchingPreservesOrder(t *testing.T) {
	remote := newFakeEmbedder("remote")
	g := NewGateway(nil, remote)
	g.SetSubBatchSize(2)

	texts := []string{"a", "b", "c"}
	vectors, err := g.EmbedBatch(context.Background(), texts, StrategyRemote)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, text := range texts {
		wantVector(t, vectors[i], text)
	}

	sizes := remote.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("remote received %d sub-batches, want 2 (sizes %v)", len(sizes), sizes)
	}
	if sizes[0]+sizes[1] != 3 || (sizes[0] != 2 && sizes[1] != 2) {
		t.Errorf("sub-batch sizes = %v, want one of 2 and one of 1", sizes)
	}
}

// barrierEmbedder only answers once two sub-batches are in flight at the same
// time, proving sub-batches run concurrently rather than sequentially.
type barrierEmbedder struct {
	fakeEmbedder
	arrivals int32
	release  chan struct{}
	once     sync.Once
}

func (b *barrierEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if atomic.AddInt32(&b.arrivals, 1) >= 2 {
		b.once.Do(func() { close(b.release) })
	}
	select {
	case <-b.release:
	case <-time.After(5 * time.Second):
		return nil, errors.New("sub-batches were not issued concurrently")
	}
	return b.fakeEmbedder.Embed(ctx, texts)
}

func TestGateway_RemoteSubBatchesRunConcurrently(t *testing.T) {
	remote := &barrierEmbedder{
		fakeEmbedder: fakeEmbedder{dims: 1, name: "remote"},
		release:      make(chan struct{}),
	}
	g := NewGateway(nil, remote)
	g.SetSubBatchSize(2)

	vectors, err := g.EmbedBatch(context.Background(), []string{"a", "b", "c"}, StrategyRemote)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i, text := range []string{"a", "b", "c"} {
		wantVector(t, vectors[i], text)
	}
}

func TestGateway_RemoteFailureFallsBackPerText(t *testing.T) {
	local := newFakeEmbedder("local")
	remote := newFakeEmbedder("remote")
	remote.failAll = true
	g := NewGateway(local, remote)
	g.SetSubBatchSize(2)

	texts := []string{"a", "b", "c"}
	vectors, err := g.EmbedBatch(context.Background(), texts, StrategyRemote)
	if err != nil {
		t.Fatalf("EmbedBatch with local fallback: %v", err)
	}
	for i, text := range texts {
		wantVector(t, vectors[i], text)
	}

	// Fallback is per text: the local embedder sees single-text batches.
	for _, size := range local.batchSizes() {
		if size != 1 {
			t.Errorf("local fallback batch size = %d, want 1", size)
		}
	}
	if got := len(local.batchSizes()); got != 3 {
		t.Errorf("local received %d fallback calls, want 3", got)
	}
}

func TestGateway_RemoteFailureWithoutLocal(t *testing.T) {
	remote := newFakeEmbedder("remote")
	remote.failAll = true
	g := NewGateway(nil, remote)

	_, err := g.EmbedBatch(context.Background(), []string{"a"}, StrategyRemote)
	if !errors.Is(err, ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
}

func TestGateway_RemoteStrategyServedByLocalWhenRemoteAbsent(t *testing.T) {
	local := newFakeEmbedder("local")
	g := NewGateway(local, nil)

	vec, err := g.Embed(context.Background(), "x", StrategyRemote)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	wantVector(t, vec, "x")
}

func TestGateway_EmptyBatch(t *testing.T) {
	g := NewGateway(newFakeEmbedder("local"), nil)

	vectors, err := g.EmbedBatch(context.Background(), nil, StrategyLocal)
	if err != nil {
		t.Fatalf("EmbedBatch(nil): %v", err)
	}
	if vectors != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil", vectors)
	}
}

func TestGateway_Dimension(t *testing.T) {
	local := newFakeEmbedder("local")
	local.dims = 384
	remote := newFakeEmbedder("remote")
	remote.dims = 1536
	g := NewGateway(local, remote)

	if dim, err := g.Dimension(StrategyLocal); err != nil || dim != 384 {
		t.Errorf("Dimension(local) = %d, %v; want 384", dim, err)
	}
	if dim, err := g.Dimension(StrategyRemote); err != nil || dim != 1536 {
		t.Errorf("Dimension(remote) = %d, %v; want 1536", dim, err)
	}
}

func TestWorker_ForwardsEmbeds(t *testing.T) {
	inner := newFakeEmbedder("inner")
	w := NewWorker(inner)
	defer w.Close()

	vectors, err := w.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	wantVector(t, vectors[0], "a")
	wantVector(t, vectors[1], "b")

	if w.Dimensions() != inner.Dimensions() || w.Name() != inner.Name() {
		t.Error("worker does not delegate Dimensions/Name")
	}
}

// serialEmbedder fails if two Embed calls overlap.
type serialEmbedder struct {
	fakeEmbedder
	inFlight int32
}

func (s *serialEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if atomic.AddInt32(&s.inFlight, 1) > 1 {
		return nil, errors.New("overlapping calls into local model")
	}
	time.Sleep(5 * time.Millisecond)
	defer atomic.AddInt32(&s.inFlight, -1)
	return s.fakeEmbedder.Embed(ctx, texts)
}

func TestWorker_SerializesCalls(t *testing.T) {
	inner := &serialEmbedder{fakeEmbedder: fakeEmbedder{dims: 1, name: "inner"}}
	w := NewWorker(inner)
	defer w.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := w.Embed(context.Background(), []string{fmt.Sprintf("t%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("serialized Embed failed: %v", err)
		}
	}
}

func TestWorker_ContextCancellation(t *testing.T) {
	inner := &serialEmbedder{fakeEmbedder: fakeEmbedder{dims: 1, name: "inner"}}
	w := NewWorker(inner)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Embed(ctx, []string{"x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
