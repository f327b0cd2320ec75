package sources

import (
	"context"
	"sync"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

// Handoff is the bounded single-slot batch buffer between a background
// reader goroutine and the pipeline consumer. Two condition variables share
// one mutex: producable (the slot is empty, the reader may refill) and
// consumable (the slot holds a batch the consumer may take). A done flag
// set by either side terminates both.
type Handoff struct {
	mu         sync.Mutex
	producable *sync.Cond
	consumable *sync.Cond
	incoming   []sample.Sample
	filled     bool
	done       bool
	readerErr  error
}

// NewHandoff creates an empty handoff with a free slot.
func NewHandoff() *Handoff {
	h := &Handoff{}
	h.producable = sync.NewCond(&h.mu)
	h.consumable = sync.NewCond(&h.mu)
	return h
}

// Publish hands one assembled batch to the consumer, blocking until the
// slot has been drained. Returns false when the consumer has shut down;
// the reader must stop producing.
func (h *Handoff) Publish(batch []sample.Sample) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.filled && !h.done {
		h.producable.Wait()
	}
	if h.done {
		return false
	}
	h.incoming = batch
	h.filled = true
	h.consumable.Signal()
	return true
}

// Closed reports whether either side has terminated the handoff. Readers
// with their own polling loop check this between polls.
func (h *Handoff) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// fail records a reader error; it is re-raised on the consumer's next take.
func (h *Handoff) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.done {
		h.readerErr = err
		h.done = true
		h.consumable.Signal()
	}
}

// finish marks a clean end-of-stream from the reader side.
func (h *Handoff) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.done {
		h.done = true
		h.consumable.Signal()
	}
}

// take blocks until a batch is available, moving it out of the slot and
// freeing it for the reader. Returns (nil, false, nil) on clean
// end-of-stream and (nil, false, err) when the reader captured an error.
func (h *Handoff) take() ([]sample.Sample, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for !h.filled && !h.done {
		h.consumable.Wait()
	}
	if h.filled {
		batch := h.incoming
		h.incoming = nil
		h.filled = false
		h.producable.Signal()
		return batch, true, nil
	}
	if h.readerErr != nil {
		err := h.readerErr
		h.readerErr = nil
		return nil, false, err
	}
	return nil, false, nil
}

// shutdown is the consumer's early-exit path: set done and notify both
// sides so a blocked reader wakes up and stops.
func (h *Handoff) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = true
	h.producable.Signal()
	h.consumable.Signal()
}

// ReaderFunc is the body of a background reader: assemble batches and
// Publish them until the source is exhausted, ctx is cancelled, or Publish
// returns false. A non-nil return terminates the run with that error.
type ReaderFunc func(ctx context.Context, h *Handoff) error

// Stream turns a ReaderFunc into a lazy sample pipeline. The reader
// goroutine starts when the pipeline is first pulled and is joined on
// Close, which is guaranteed on every exit path by the downstream
// iterator chain.
func Stream(log *logger.Logger, reader ReaderFunc) *pipeline.Pipeline[sample.Sample] {
	return pipeline.FromFunc(func(ctx context.Context) pipeline.Iterator[sample.Sample] {
		return newReaderIter(ctx, log, reader)
	})
}

type readerIter struct {
	h      *Handoff
	cancel context.CancelFunc
	wg     sync.WaitGroup
	batch  []sample.Sample
	idx    int
	closed bool
}

func newReaderIter(ctx context.Context, log *logger.Logger, reader ReaderFunc) *readerIter {
	rctx, cancel := context.WithCancel(ctx)
	it := &readerIter{h: NewHandoff(), cancel: cancel}
	it.wg.Add(1)
	go func() {
		defer it.wg.Done()
		if err := reader(rctx, it.h); err != nil {
			log.Error("reader failed", map[string]interface{}{"error": err.Error()})
			it.h.fail(err)
		} else {
			it.h.finish()
		}
	}()
	return it
}

func (it *readerIter) Next(_ context.Context) (sample.Sample, bool, error) {
	for it.idx >= len(it.batch) {
		batch, ok, err := it.h.take()
		if err != nil || !ok {
			return sample.Sample{}, false, err
		}
		it.batch = batch
		it.idx = 0
	}
	s := it.batch[it.idx]
	it.idx++
	return s, true, nil
}

func (it *readerIter) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.h.shutdown()
	it.cancel()
	it.wg.Wait()
	return nil
}
