package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	IsAdmin      bool   `gorm:"default:false"`

	CreationTime time.Time
}

type Project struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Active projects are unique per (name, owner); collisions are resolved
	// by renaming the previous project, never by merging.
	Name string `gorm:"not null;index:idx_project_name_owner"`

	OwnerId uuid.UUID `gorm:"type:uuid;index:idx_project_name_owner"`
	Owner   *User     `gorm:"foreignKey:OwnerId"`

	CreationTime time.Time

	Tasks []Task `gorm:"foreignKey:ProjectId;constraint:OnDelete:CASCADE"`
}

type Task struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProjectId uuid.UUID `gorm:"type:uuid;not null"`
	Project   *Project  `gorm:"foreignKey:ProjectId"`

	Name string

	ProcessingNode     sql.NullString
	AutoProcessingNode bool `gorm:"default:true"`

	// Set from a recount of the task directory after ingestion, not from the
	// running download counter.
	ImagesCount int `gorm:"default:0"`

	CreationTime time.Time
}

type IngestJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProjectId uuid.UUID `gorm:"type:uuid;not null"`
	Project   *Project  `gorm:"foreignKey:ProjectId;constraint:OnDelete:CASCADE"`

	Host      string `gorm:"not null"`
	FileCount int    `gorm:"default:0"`

	// Object references in "bucket/path" form, kept so a job that never ran
	// can be re-enqueued after a restart.
	ObjectRefs []string `gorm:"serializer:json"`

	Status   string `gorm:"size:20;not null"`
	Progress int    `gorm:"default:0"`

	TaskId           uuid.NullUUID `gorm:"type:uuid"`
	ImagesDownloaded int           `gorm:"default:0"`

	ErrorKind    sql.NullString
	ErrorMessage sql.NullString

	CreationTime   time.Time
	CompletionTime sql.NullTime
}
