package engine

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wicaksana/swara/internal/audio"
)

// Sequencer serializes playback scheduling against asynchronous chunk
// decoding. Chunks may decode concurrently, but decoded buffers are
// delivered strictly in submission order: a completion that finishes out
// of order waits behind its predecessors. Each submission is stamped with
// the current generation; Flush bumps the generation so that completions
// belonging to a discarded turn are dropped without delivery.
type Sequencer struct {
	deliver func(buf *audio.Buffer, generation uint64)
	logger  *zap.Logger

	pending    chan sequencerItem
	generation atomic.Uint64
	done       chan struct{}
	closeOnce  sync.Once
}

type sequencerItem struct {
	generation uint64
	result     chan sequencerResult
}

type sequencerResult struct {
	buf *audio.Buffer
	err error
}

// NewSequencer creates a sequencer and starts its delivery loop. deliver
// is invoked from that loop, one buffer at a time, in submission order.
func NewSequencer(deliver func(buf *audio.Buffer, generation uint64), logger *zap.Logger) *Sequencer {
	q := &Sequencer{
		deliver: deliver,
		logger:  logger,
		pending: make(chan sequencerItem, 256),
		done:    make(chan struct{}),
	}
	go q.drain()
	return q
}

// Submit starts decoding one chunk. Submission order is delivery order
// regardless of how long each decode takes. Decode failures drop the
// offending chunk and leave the rest of the stream unaffected.
func (q *Sequencer) Submit(decode func() (*audio.Buffer, error)) {
	item := sequencerItem{
		generation: q.generation.Load(),
		result:     make(chan sequencerResult, 1),
	}
	go func() {
		buf, err := decode()
		item.result <- sequencerResult{buf: buf, err: err}
	}()

	select {
	case q.pending <- item:
	case <-q.done:
	}
}

// Generation returns the current generation stamp.
func (q *Sequencer) Generation() uint64 {
	return q.generation.Load()
}

// Flush discards all queued and in-flight decodes. Used on interruption:
// model audio that was still being decoded must never reach the scheduler.
func (q *Sequencer) Flush() {
	q.generation.Add(1)
}

// Close flushes and stops the delivery loop. Idempotent; completions
// arriving after Close are dropped.
func (q *Sequencer) Close() {
	q.closeOnce.Do(func() {
		q.Flush()
		close(q.done)
	})
}

func (q *Sequencer) drain() {
	for {
		select {
		case <-q.done:
			return
		case item := <-q.pending:
			var res sequencerResult
			select {
			case res = <-item.result:
			case <-q.done:
				return
			}
			if item.generation != q.generation.Load() {
				continue
			}
			if res.err != nil {
				q.logger.Warn("dropping undecodable audio chunk", zap.Error(res.err))
				continue
			}
			q.deliver(res.buf, item.generation)
		}
	}
}
