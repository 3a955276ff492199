package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type inMemoryTask struct {
	queue   string
	payload []byte
}

func (t *inMemoryTask) Type() string {
	return t.queue
}

func (t *inMemoryTask) Payload() []byte {
	return t.payload
}

func (t *inMemoryTask) Ack() error {
	return nil
}

func (t *inMemoryTask) Nack() error {
	return nil
}

func (t *inMemoryTask) Reject() error {
	return nil
}

// InMemoryQueue backs cmd/local and unit tests; it is both the Publisher and
// the Reciever. Publishing after Close returns an error instead of blocking,
// so a job that finishes during shutdown fails cleanly.
type InMemoryQueue struct {
	lock   sync.RWMutex
	tasks  chan Task
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make(chan Task, 100),
	}
}

func (q *InMemoryQueue) publishTaskInternal(queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	q.lock.RLock()
	defer q.lock.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	q.tasks <- &inMemoryTask{queue: queue, payload: data}

	return nil
}

func (q *InMemoryQueue) PublishIngestTask(ctx context.Context, payload IngestTaskPayload) error {
	return q.publishTaskInternal(IngestQueue, payload)
}

func (q *InMemoryQueue) PublishProcessTask(ctx context.Context, payload ProcessTaskPayload) error {
	return q.publishTaskInternal(ProcessQueue, payload)
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

func (q *InMemoryQueue) Close() {
	q.lock.Lock()
	defer q.lock.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
}
