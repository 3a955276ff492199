package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	IngestQueue     = "ingest_queue"
	ProcessQueue    = "process_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// IngestTaskPayload carries one remote ingestion request from the API to the
// worker. Files are object refs in "bucket/path" form, in request order.
type IngestTaskPayload struct {
	JobId     uuid.UUID
	ProjectId uuid.UUID
	Host      string
	Files     []string
	Options   []string
}

// ProcessTaskPayload is the fire-and-forget handoff to the downstream
// processing engine once a task's images are in place.
type ProcessTaskPayload struct {
	TaskId uuid.UUID
}

type Publisher interface {
	PublishIngestTask(ctx context.Context, payload IngestTaskPayload) error

	PublishProcessTask(ctx context.Context, payload ProcessTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
