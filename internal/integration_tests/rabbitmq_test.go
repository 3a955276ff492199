package integrationtests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ingest-backend/internal/messaging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRabbitMQ(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rabbitMQURL := setupRabbitMQContainer(t, ctx)

	publisher, err := messaging.NewRabbitMQPublisher(rabbitMQURL)
	require.NoError(t, err)
	defer publisher.Close()

	receiver, err := messaging.NewRabbitMQReceiver(rabbitMQURL, messaging.IngestQueue, messaging.ProcessQueue)
	require.NoError(t, err)
	defer receiver.Close()

	t.Run("Publish and Receive IngestTask", func(t *testing.T) {
		payload := messaging.IngestTaskPayload{
			JobId:     uuid.New(),
			ProjectId: uuid.New(),
			Host:      "http://minio.local:9000",
			Files:     []string{"bucket1/a.jpg", "bucket1/b.jpg"},
			Options:   []string{},
		}
		err := publisher.PublishIngestTask(ctx, payload)
		require.NoError(t, err)

		select {
		case task := <-receiver.Tasks():
			assert.Equal(t, messaging.IngestQueue, task.Type())

			var receivedPayload messaging.IngestTaskPayload
			err := json.Unmarshal(task.Payload(), &receivedPayload)
			require.NoError(t, err)
			assert.Equal(t, payload, receivedPayload)

			err = task.Ack()
			require.NoError(t, err)
		case <-time.After(4 * time.Second):
			t.Fatal("Timed out waiting for task")
		}
	})

	t.Run("Publish and Receive ProcessTask", func(t *testing.T) {
		payload := messaging.ProcessTaskPayload{TaskId: uuid.New()}
		err := publisher.PublishProcessTask(ctx, payload)
		require.NoError(t, err)

		select {
		case task := <-receiver.Tasks():
			assert.Equal(t, messaging.ProcessQueue, task.Type())

			var receivedPayload messaging.ProcessTaskPayload
			err := json.Unmarshal(task.Payload(), &receivedPayload)
			require.NoError(t, err)
			assert.Equal(t, payload, receivedPayload)

			err = task.Ack()
			require.NoError(t, err)
		case <-time.After(4 * time.Second):
			t.Fatal("Timed out waiting for task")
		}
	})

	// Runs last: after Close the receiver's task channel must end so a
	// worker ranging over it can shut down.
	t.Run("Close ends task stream", func(t *testing.T) {
		receiver.Close()

		select {
		case _, ok := <-receiver.Tasks():
			assert.False(t, ok, "task channel should be closed after Close")
		case <-time.After(4 * time.Second):
			t.Fatal("Timed out waiting for task stream to close")
		}
	})
}
