package core_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ingest-backend/internal/core"
	"ingest-backend/internal/database"
	"ingest-backend/internal/messaging"
	"ingest-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

// fakeStore serves objects from a map keyed by "bucket/key". A hook, when
// set for a ref, replaces the default behavior for that download.
type fakeStore struct {
	objects map[string][]byte
	hooks   map[string]func(filename string) error
}

func (s *fakeStore) DownloadObject(ctx context.Context, bucket, key, filename string) error {
	ref := bucket + "/" + key
	if hook, ok := s.hooks[ref]; ok {
		return hook(filename)
	}
	data, ok := s.objects[ref]
	if !ok {
		return fmt.Errorf("object %s does not exist", ref)
	}
	return os.WriteFile(filename, data, 0o644)
}

type fakeFactory struct {
	store *fakeStore
}

func (f *fakeFactory) ClientFor(host string) (storage.ObjectStore, error) {
	return f.store, nil
}

type fixture struct {
	db        *gorm.DB
	queue     *messaging.InMemoryQueue
	proc      *core.TaskProcessor
	mediaRoot string
	job       database.IngestJob
	project   database.Project
}

func setup(t *testing.T, store *fakeStore, refs []string) *fixture {
	user := database.User{Id: uuid.New(), Username: "owner", PasswordHash: "x"}
	project := database.Project{Id: uuid.New(), Name: "Farm1", OwnerId: user.Id, CreationTime: time.Now().UTC()}
	job := database.IngestJob{
		Id:           uuid.New(),
		ProjectId:    project.Id,
		Host:         "http://minio.local:9000",
		FileCount:    len(refs),
		ObjectRefs:   refs,
		Status:       database.JobQueued,
		CreationTime: time.Now().UTC(),
	}

	db := createDB(t, &user, &project, &job)
	queue := messaging.NewInMemoryQueue()
	mediaRoot := t.TempDir()
	proc := core.NewTaskProcessor(db, &fakeFactory{store: store}, queue, queue, mediaRoot)

	return &fixture{db: db, queue: queue, proc: proc, mediaRoot: mediaRoot, job: job, project: project}
}

// run publishes the job's payload and processes the resulting task, the way
// the consume loop would.
func (f *fixture) run(t *testing.T) {
	err := f.queue.PublishIngestTask(context.Background(), messaging.IngestTaskPayload{
		JobId:     f.job.Id,
		ProjectId: f.job.ProjectId,
		Host:      f.job.Host,
		Files:     f.job.ObjectRefs,
		Options:   []string{},
	})
	require.NoError(t, err)

	f.proc.ProcessTask(<-f.queue.Tasks())
}

func (f *fixture) reloadJob(t *testing.T) database.IngestJob {
	var job database.IngestJob
	require.NoError(t, f.db.First(&job, "id = ?", f.job.Id).Error)
	return job
}

func (f *fixture) scratchDirs(t *testing.T) []os.DirEntry {
	entries, err := os.ReadDir(core.ScratchRoot(f.mediaRoot))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestIngestHappyPath(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"bucket1/farm/a.jpg": []byte("image-a"),
		"bucket1/farm/b.jpg": []byte("image-b"),
	}}
	f := setup(t, store, []string{"bucket1/farm/a.jpg", "bucket1/farm/b.jpg"})

	f.run(t)

	job := f.reloadJob(t)
	assert.Equal(t, database.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 2, job.ImagesDownloaded)
	require.True(t, job.TaskId.Valid)

	var task database.Task
	require.NoError(t, f.db.First(&task, "id = ?", job.TaskId.UUID).Error)
	assert.Equal(t, "Task from MinIO (2 images)", task.Name)
	assert.Equal(t, 2, task.ImagesCount)
	assert.True(t, task.AutoProcessingNode)
	assert.False(t, task.ProcessingNode.Valid)

	taskDir := core.TaskPath(f.mediaRoot, f.project.Id, task.Id)
	for _, name := range []string{"a.jpg", "b.jpg"} {
		_, err := os.Stat(filepath.Join(taskDir, name))
		assert.NoError(t, err)
	}

	assert.Empty(t, f.scratchDirs(t), "scratch directory should be removed")

	select {
	case next := <-f.queue.Tasks():
		assert.Equal(t, messaging.ProcessQueue, next.Type())
	default:
		t.Fatal("expected a downstream processing task to be queued")
	}
}

func TestIngestSkipsMalformedRefs(t *testing.T) {
	objects := map[string][]byte{}
	refs := make([]string, 0, 10)
	for i := 0; i < 8; i++ {
		ref := fmt.Sprintf("bucket1/img%d.jpg", i)
		objects[ref] = []byte("data")
		refs = append(refs, ref)
	}
	refs = append(refs, "no-slash-here", "alsomissingslash")

	f := setup(t, &fakeStore{objects: objects}, refs)

	f.run(t)

	job := f.reloadJob(t)
	assert.Equal(t, database.JobCompleted, job.Status)
	assert.Equal(t, 8, job.ImagesDownloaded)

	var task database.Task
	require.NoError(t, f.db.First(&task, "id = ?", job.TaskId.UUID).Error)
	assert.Equal(t, 8, task.ImagesCount)
}

func TestIngestNoFilesAvailable(t *testing.T) {
	f := setup(t, &fakeStore{objects: map[string][]byte{}}, []string{"bucket1/missing.jpg"})

	f.run(t)

	job := f.reloadJob(t)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Equal(t, core.KindNoFilesAvailable, job.ErrorKind.String)
	assert.False(t, job.TaskId.Valid)

	var count int64
	require.NoError(t, f.db.Model(&database.Task{}).Count(&count).Error)
	assert.Zero(t, count, "no task should be created when nothing downloads")

	assert.Empty(t, f.scratchDirs(t))
}

func TestIngestLyingStoreDetected(t *testing.T) {
	// The store reports success without writing anything. The file must not
	// count as downloaded, and with no other files the job fails.
	store := &fakeStore{hooks: map[string]func(string) error{
		"bucket1/ghost.jpg": func(string) error { return nil },
	}}
	f := setup(t, store, []string{"bucket1/ghost.jpg"})

	f.run(t)

	job := f.reloadJob(t)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Equal(t, core.KindNoFilesAvailable, job.ErrorKind.String)
}

func TestIngestVerificationFailed(t *testing.T) {
	// The first object downloads cleanly, then the second download deletes
	// it and fails. Everything presumed downloaded is gone by the batch
	// re-check, so the job fails without creating a task.
	var firstPath string
	store := &fakeStore{hooks: map[string]func(string) error{
		"bucket1/a.jpg": func(filename string) error {
			firstPath = filename
			return os.WriteFile(filename, []byte("image-a"), 0o644)
		},
		"bucket1/b.jpg": func(string) error {
			os.Remove(firstPath)
			return fmt.Errorf("connection reset")
		},
	}}
	f := setup(t, store, []string{"bucket1/a.jpg", "bucket1/b.jpg"})

	f.run(t)

	job := f.reloadJob(t)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Equal(t, core.KindVerificationFailed, job.ErrorKind.String)

	var count int64
	require.NoError(t, f.db.Model(&database.Task{}).Count(&count).Error)
	assert.Zero(t, count)
}

// recordingTask captures the acknowledgement a processor gives a task.
type recordingTask struct {
	queue    string
	payload  []byte
	acked    bool
	nacked   bool
	rejected bool
}

func (t *recordingTask) Type() string    { return t.queue }
func (t *recordingTask) Payload() []byte { return t.payload }
func (t *recordingTask) Ack() error      { t.acked = true; return nil }
func (t *recordingTask) Nack() error     { t.nacked = true; return nil }
func (t *recordingTask) Reject() error   { t.rejected = true; return nil }

func TestProcessorStartStop(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"bucket1/a.jpg": []byte("image-a"),
	}}
	f := setup(t, store, []string{"bucket1/a.jpg"})

	f.proc.Start()

	require.NoError(t, f.queue.PublishIngestTask(context.Background(), messaging.IngestTaskPayload{
		JobId:     f.job.Id,
		ProjectId: f.job.ProjectId,
		Host:      f.job.Host,
		Files:     f.job.ObjectRefs,
		Options:   []string{},
	}))

	require.Eventually(t, func() bool {
		var job database.IngestJob
		if err := f.db.First(&job, "id = ?", f.job.Id).Error; err != nil {
			return false
		}
		return job.Status == database.JobCompleted || job.Status == database.JobFailed
	}, 10*time.Second, 50*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		f.proc.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the queue was closed")
	}

	assert.Equal(t, database.JobCompleted, f.reloadJob(t).Status)
}

func TestDownstreamTaskAcknowledged(t *testing.T) {
	f := setup(t, &fakeStore{}, nil)

	payload, err := json.Marshal(messaging.ProcessTaskPayload{TaskId: uuid.New()})
	require.NoError(t, err)

	task := &recordingTask{queue: messaging.ProcessQueue, payload: payload}
	f.proc.ProcessTask(task)

	assert.True(t, task.acked)
	assert.False(t, task.nacked)
	assert.False(t, task.rejected)
}

func TestMalformedTasksRejected(t *testing.T) {
	f := setup(t, &fakeStore{}, nil)

	for _, queue := range []string{messaging.IngestQueue, messaging.ProcessQueue, "unknown_queue"} {
		task := &recordingTask{queue: queue, payload: []byte("not json")}
		f.proc.ProcessTask(task)

		assert.True(t, task.rejected, "queue: %s", queue)
		assert.False(t, task.acked, "queue: %s", queue)
	}
}

func TestIngestRecountIsAuthoritative(t *testing.T) {
	// Two refs share a basename, so the second download overwrites the first
	// in scratch and the second move fails on the missing source. The final
	// image count comes from the directory recount, not the download total.
	store := &fakeStore{objects: map[string][]byte{
		"bucket1/north/a.jpg": []byte("north"),
		"bucket1/south/a.jpg": []byte("south"),
	}}
	f := setup(t, store, []string{"bucket1/north/a.jpg", "bucket1/south/a.jpg"})

	f.run(t)

	job := f.reloadJob(t)
	assert.Equal(t, database.JobCompleted, job.Status)
	assert.Equal(t, 2, job.ImagesDownloaded)

	var task database.Task
	require.NoError(t, f.db.First(&task, "id = ?", job.TaskId.UUID).Error)
	assert.Equal(t, 1, task.ImagesCount)
}
