package chain

import (
	"errors"
	"fmt"
)

// submission pairs a message with a one-shot acknowledgement channel. The
// ack carries only an error (nil on success): the submitter learns whether
// the message was applied, never the minted transaction.
type submission struct {
	message string
	ack     chan error
}

// Queue is the single-consumer channel in front of a Mempool. Submit
// enqueues a message and blocks until the dedicated consumer goroutine has
// applied it to the mempool, decoupling request handlers from mempool-lock
// contention and serializing submission order under bursty load.
type Queue struct {
	submissions chan submission
	mempool     *Mempool
}

// queueCapacity is the bounded channel capacity from spec.md §5.
const queueCapacity = 100

// NewQueue constructs a Queue in front of mempool. Run must be started on
// its own goroutine before Submit is called.
func NewQueue(mempool *Mempool) *Queue {
	return &Queue{
		submissions: make(chan submission, queueCapacity),
		mempool:     mempool,
	}
}

// Submit enqueues message and blocks until the consumer has applied it
// (or failed to). It returns an error wrapping ErrMempoolFull if the
// mempool rejected the message, or ErrQueueClosed if the submission was
// still buffered when Run stopped. A Submit made after Run has returned is
// never acknowledged and blocks.
func (q *Queue) Submit(message string) error {
	ack := make(chan error, 1)
	q.submissions <- submission{message: message, ack: ack}
	return <-ack
}

// ErrQueueClosed is returned by Submit for a submission still buffered when
// the queue's consumer stops.
var ErrQueueClosed = errors.New("chain: message queue closed")

// Run is the dedicated consumer: it pulls submissions one at a time and
// applies Mempool.Add under the mempool's own lock, in submission order.
// It runs until stop is closed.
func (q *Queue) Run(stop <-chan struct{}) {
	for {
		select {
		case sub := <-q.submissions:
			_, err := q.mempool.Add(sub.message)
			if err != nil {
				err = fmt.Errorf("apply queued message: %w", err)
			}
			sub.ack <- err
		case <-stop:
			q.drainWithClosedError()
			return
		}
	}
}

func (q *Queue) drainWithClosedError() {
	for {
		select {
		case sub := <-q.submissions:
			sub.ack <- ErrQueueClosed
		default:
			return
		}
	}
}
