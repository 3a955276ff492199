package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateFromRemoteResponse struct {
	Message     string    `json:"message"`
	ProjectId   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Host        string    `json:"host"`
	FileCount   int       `json:"file_count"`
	// TaskId carries the background job id. The field name is kept for
	// compatibility with existing upstream clients.
	TaskId uuid.UUID `json:"task_id"`
	Status string    `json:"status"`
}

type EndpointDescription struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Methods     []string `json:"methods"`
	QueryParams []string `json:"query_params"`
}

type JobResponse struct {
	JobId            uuid.UUID  `json:"job_id"`
	ProjectId        uuid.UUID  `json:"project_id"`
	Host             string     `json:"host"`
	FileCount        int        `json:"file_count"`
	Status           string     `json:"status"`
	Progress         int        `json:"progress"`
	TaskId           *uuid.UUID `json:"task_id,omitempty"`
	ImagesDownloaded int        `json:"images_downloaded"`
	ErrorKind        string     `json:"error_kind,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreationTime     time.Time  `json:"creation_time"`
	CompletionTime   *time.Time `json:"completion_time,omitempty"`
}

type TaskResponse struct {
	Id                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	ProcessingNode     string    `json:"processing_node,omitempty"`
	AutoProcessingNode bool      `json:"auto_processing_node"`
	ImagesCount        int       `json:"images_count"`
	CreationTime       time.Time `json:"creation_time"`
}

type ProjectResponse struct {
	Id           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	CreationTime time.Time      `json:"creation_time"`
	Tasks        []TaskResponse `json:"tasks"`
}
