package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ingest-backend/internal/database"
	"ingest-backend/internal/messaging"
	"ingest-backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskProcessor struct {
	db *gorm.DB

	stores storage.ClientFactory

	publisher messaging.Publisher
	reciever  messaging.Reciever

	mediaRoot string

	done chan struct{}
}

func NewTaskProcessor(
	db *gorm.DB,
	stores storage.ClientFactory,
	publisher messaging.Publisher,
	reciever messaging.Reciever,
	mediaRoot string,
) *TaskProcessor {
	return &TaskProcessor{
		db:        db,
		stores:    stores,
		publisher: publisher,
		reciever:  reciever,
		mediaRoot: mediaRoot,
		done:      make(chan struct{}),
	}
}

func (proc *TaskProcessor) Start() {
	go func() {
		for task := range proc.reciever.Tasks() {
			proc.ProcessTask(task)
		}
		close(proc.done)
	}()
}

func (proc *TaskProcessor) Stop() {
	proc.reciever.Close()
	<-proc.done
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	slog.Info("processing task", "type", task.Type())

	switch task.Type() {
	case messaging.IngestQueue:
		var payload messaging.IngestTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error parsing ingest task payload", "error", err)
			task.Reject()
			return
		}
		if err := proc.processIngestTask(context.Background(), payload); err != nil {
			slog.Error("error processing ingest task", "job_id", payload.JobId, "error", err)
			task.Nack()
			return
		}
	case messaging.ProcessQueue:
		// Seen only in single process mode, where the in-memory queue carries
		// both queues. Image processing itself happens in the external engine.
		var payload messaging.ProcessTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error parsing process task payload", "error", err)
			task.Reject()
			return
		}
		slog.Info("task handed off for downstream processing", "task_id", payload.TaskId)
	default:
		slog.Error("unknown task type", "type", task.Type())
		task.Reject()
		return
	}

	task.Ack()
}

type ingestResult struct {
	TaskId           uuid.UUID
	ImagesDownloaded int
}

func (proc *TaskProcessor) processIngestTask(ctx context.Context, payload messaging.IngestTaskPayload) error {
	slog.Info("starting ingest job", "job_id", payload.JobId, "project_id", payload.ProjectId, "host", payload.Host, "files", len(payload.Files))

	if err := database.UpdateIngestJobStatus(ctx, proc.db, payload.JobId, database.JobRunning); err != nil {
		return err
	}

	result, err := proc.runIngest(ctx, payload)
	if err != nil {
		database.MarkIngestJobFailed(ctx, proc.db, payload.JobId, ErrorKind(err), err.Error())
		return err
	}

	if err := database.MarkIngestJobCompleted(ctx, proc.db, payload.JobId, result.TaskId, result.ImagesDownloaded); err != nil {
		return err
	}

	slog.Info("ingest job completed", "job_id", payload.JobId, "task_id", result.TaskId, "images", result.ImagesDownloaded)
	return nil
}

func (proc *TaskProcessor) runIngest(ctx context.Context, payload messaging.IngestTaskPayload) (ingestResult, error) {
	store, err := proc.stores.ClientFor(payload.Host)
	if err != nil {
		return ingestResult{}, fmt.Errorf("error creating object store client for host %s: %w", payload.Host, err)
	}

	scratchParent := ScratchRoot(proc.mediaRoot)
	if err := os.MkdirAll(scratchParent, os.ModePerm); err != nil {
		return ingestResult{}, fmt.Errorf("error creating scratch parent directory: %w", err)
	}

	scratchDir, err := os.MkdirTemp(scratchParent, "remote_dl_")
	if err != nil {
		return ingestResult{}, fmt.Errorf("error creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	downloaded := proc.downloadObjects(ctx, store, payload, scratchDir)
	if len(downloaded) == 0 {
		return ingestResult{}, &JobError{Kind: KindNoFilesAvailable, Err: fmt.Errorf("no files could be downloaded from %s", payload.Host)}
	}

	// Downloads are re-checked as a batch before any database writes so a
	// task is never created over files that vanished after their individual
	// post-download check.
	verified := make([]string, 0, len(downloaded))
	for _, path := range downloaded {
		if _, err := os.Stat(path); err != nil {
			slog.Error("downloaded file missing at verification", "path", path)
			continue
		}
		verified = append(verified, path)
	}
	if len(verified) == 0 {
		return ingestResult{}, &JobError{Kind: KindVerificationFailed, Err: fmt.Errorf("downloaded files failed verification")}
	}

	task := database.Task{
		Id:                 uuid.New(),
		ProjectId:          payload.ProjectId,
		Name:               fmt.Sprintf("Task from MinIO (%d images)", len(verified)),
		AutoProcessingNode: true,
		CreationTime:       time.Now().UTC(),
	}
	if err := proc.db.WithContext(ctx).Create(&task).Error; err != nil {
		return ingestResult{}, fmt.Errorf("error creating task: %w", err)
	}

	taskDir := TaskPath(proc.mediaRoot, payload.ProjectId, task.Id)
	if err := os.MkdirAll(taskDir, os.ModePerm); err != nil {
		return ingestResult{}, fmt.Errorf("error creating task directory: %w", err)
	}

	moved := 0
	for _, src := range verified {
		dest := filepath.Join(taskDir, filepath.Base(src))
		if err := os.Rename(src, dest); err != nil {
			slog.Error("error moving file into task directory", "src", src, "dest", dest, "error", err)
			continue
		}
		moved++
		if moved%50 == 0 {
			slog.Info("moving files into task directory", "moved", moved, "total", len(verified))
		}
	}

	// The task's image count reflects what actually landed in the task
	// directory, not what was queued or downloaded.
	imagesCount, err := countRegularFiles(taskDir)
	if err != nil {
		return ingestResult{}, fmt.Errorf("error counting task images: %w", err)
	}
	if err := proc.db.WithContext(ctx).Model(&database.Task{}).Where("id = ?", task.Id).Update("images_count", imagesCount).Error; err != nil {
		return ingestResult{}, fmt.Errorf("error updating task image count: %w", err)
	}

	if err := proc.publisher.PublishProcessTask(ctx, messaging.ProcessTaskPayload{TaskId: task.Id}); err != nil {
		return ingestResult{}, fmt.Errorf("error publishing process task: %w", err)
	}

	return ingestResult{TaskId: task.Id, ImagesDownloaded: len(verified)}, nil
}

func (proc *TaskProcessor) downloadObjects(ctx context.Context, store storage.ObjectStore, payload messaging.IngestTaskPayload, scratchDir string) []string {
	total := len(payload.Files)
	downloaded := make([]string, 0, total)

	for i, ref := range payload.Files {
		bucket, key, found := strings.Cut(ref, "/")
		if !found {
			slog.Error("invalid object reference, expected bucket/path", "ref", ref)
			continue
		}

		localPath := filepath.Join(scratchDir, filepath.Base(key))
		if err := store.DownloadObject(ctx, bucket, key, localPath); err != nil {
			slog.Error("error downloading object", "bucket", bucket, "key", key, "error", err)
		} else if _, err := os.Stat(localPath); err != nil {
			slog.Error("download completed but file is missing", "path", localPath)
		} else {
			downloaded = append(downloaded, localPath)
			slog.Info("downloaded object", "bucket", bucket, "key", key, "n", i+1, "total", total)
		}

		database.UpdateIngestJobProgress(ctx, proc.db, payload.JobId, (i+1)*100/total)
	}

	return downloaded
}

func countRegularFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			count++
		}
	}
	return count, nil
}
