package embeddings

import "context"

// Worker serializes calls to an in-process embedder on a dedicated goroutine,
// keeping local model inference off the goroutines that serve concurrent
// requests. One slow inference therefore cannot stall unrelated callers'
// scheduling; they block only in a channel send.
type Worker struct {
	inner Embedder
	reqs  chan workerRequest
	quit  chan struct{}
}

type workerRequest struct {
	ctx   context.Context
	texts []string
	reply chan workerReply
}

type workerReply struct {
	vectors [][]float32
	err     error
}

// NewWorker wraps inner in a Worker and starts its goroutine.
func NewWorker(inner Embedder) *Worker {
	w := &Worker{
		inner: inner,
		reqs:  make(chan workerRequest),
		quit:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	for {
		select {
		case <-w.quit:
			return
		case req := <-w.reqs:
			vectors, err := w.inner.Embed(req.ctx, req.texts)
			req.reply <- workerReply{vectors: vectors, err: err}
		}
	}
}

func (w *Worker) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply := make(chan workerReply, 1)

	select {
	case w.reqs <- workerRequest{ctx: ctx, texts: texts, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, ErrNotConfigured
	}

	select {
	case r := <-reply:
		return r.vectors, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) Dimensions() int { return w.inner.Dimensions() }

func (w *Worker) Name() string { return w.inner.Name() }

// Close stops the worker goroutine. In-flight work finishes; later calls fail.
func (w *Worker) Close() {
	close(w.quit)
}
