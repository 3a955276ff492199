package database

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func UpdateIngestJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == JobCompleted || status == JobFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&IngestJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error updating ingest job status", "job_id", jobId, "status", status, "error", err)
		return err
	}
	return nil
}

// UpdateIngestJobProgress records download progress as a 0-100 percentage.
// Progress is advisory; failures here never abort the job.
func UpdateIngestJobProgress(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, progress int) {
	if err := txn.WithContext(ctx).Model(&IngestJob{Id: jobId}).UpdateColumn("progress", progress).Error; err != nil {
		slog.Error("error updating ingest job progress", "job_id", jobId, "progress", progress, "error", err)
	}
}

func MarkIngestJobFailed(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, kind, message string) {
	updates := map[string]any{
		"status":          JobFailed,
		"error_kind":      sql.NullString{String: kind, Valid: true},
		"error_message":   sql.NullString{String: message, Valid: true},
		"completion_time": time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&IngestJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error marking ingest job as failed", "job_id", jobId, "kind", kind, "error", err)
	}
}

func MarkIngestJobCompleted(ctx context.Context, txn *gorm.DB, jobId, taskId uuid.UUID, imagesDownloaded int) error {
	updates := map[string]any{
		"status":            JobCompleted,
		"progress":          100,
		"task_id":           uuid.NullUUID{UUID: taskId, Valid: true},
		"images_downloaded": imagesDownloaded,
		"completion_time":   time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&IngestJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error marking ingest job as completed", "job_id", jobId, "task_id", taskId, "error", err)
		return err
	}
	return nil
}
