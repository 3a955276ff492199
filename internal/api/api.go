package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ingest-backend/internal/core"
	"ingest-backend/internal/database"
	"ingest-backend/internal/messaging"
	"ingest-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Archived project names carry a timestamp in Indochina Time to match the
// convention of the upstream system that produces these payloads.
var indochinaTime = time.FixedZone("ICT", 7*60*60)

const archivedNameTimeFormat = "2006-01-02_15-04-05"

type BackendService struct {
	db        *gorm.DB
	publisher messaging.Publisher
}

func NewBackendService(db *gorm.DB, publisher messaging.Publisher) *BackendService {
	return &BackendService{db: db, publisher: publisher}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Get("/create_from_remote/", RestHandler(s.DescribeCreateFromRemote))
		r.Post("/create_from_remote/", RestHandler(s.CreateFromRemote))
		r.Get("/{project_id}", RestHandler(s.GetProject))
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/{job_id}", RestHandler(s.GetJob))
	})
}

type createFromRemoteParams struct {
	Host string `schema:"host"`
}

func (s *BackendService) CreateFromRemote(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[createFromRemoteParams](r)
	if err != nil {
		return nil, err
	}
	if params.Host == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "missing required query parameter 'host'")
	}

	user, ok := UserFromContext(r.Context())
	if !ok {
		return nil, CodedErrorf(http.StatusUnauthorized, "no authenticated user")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("error reading request body", "error", err)
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read request body")
	}

	norm, err := NormalizeRequest(body)
	if err != nil {
		return nil, err
	}

	project, err := s.createProject(r, norm.ProjectName, user)
	if err != nil {
		return nil, err
	}

	// Never leave an empty project behind. The project is created before
	// this check so the rename-then-create sequence stays in one place.
	if len(norm.ObjectRefs) == 0 {
		if err := s.db.WithContext(r.Context()).Delete(&project).Error; err != nil {
			slog.Error("error deleting empty project", "project_id", project.Id, "error", err)
		}
		return nil, CodedErrorf(http.StatusBadRequest, "no files referenced in request")
	}

	job := database.IngestJob{
		Id:           uuid.New(),
		ProjectId:    project.Id,
		Host:         params.Host,
		FileCount:    len(norm.ObjectRefs),
		ObjectRefs:   norm.ObjectRefs,
		Status:       database.JobQueued,
		CreationTime: time.Now().UTC(),
	}
	if err := s.db.WithContext(r.Context()).Create(&job).Error; err != nil {
		slog.Error("error creating ingest job record", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error creating ingest job")
	}

	payload := messaging.IngestTaskPayload{
		JobId:     job.Id,
		ProjectId: project.Id,
		Host:      params.Host,
		Files:     norm.ObjectRefs,
		Options:   []string{},
	}
	if err := s.publisher.PublishIngestTask(r.Context(), payload); err != nil {
		slog.Error("error publishing ingest task", "job_id", job.Id, "error", err)
		database.MarkIngestJobFailed(r.Context(), s.db, job.Id, core.KindUnexpectedFailure, "failed to enqueue ingest job")
		return nil, CodedErrorf(http.StatusInternalServerError, "error queueing ingest job")
	}

	slog.Info("queued ingest job", "job_id", job.Id, "project_id", project.Id, "project_name", project.Name, "files", len(norm.ObjectRefs))

	return WithStatus(http.StatusCreated, api.CreateFromRemoteResponse{
		Message:     "project created, file download has been queued",
		ProjectId:   project.Id,
		ProjectName: project.Name,
		Host:        params.Host,
		FileCount:   len(norm.ObjectRefs),
		TaskId:      job.Id,
		Status:      job.Status,
	}), nil
}

// createProject archives any existing project with the same name and owner
// by renaming it, then creates a fresh one. The two row operations are not
// wrapped in a transaction.
func (s *BackendService) createProject(r *http.Request, name string, owner database.User) (database.Project, error) {
	ctx := r.Context()

	var existing database.Project
	err := s.db.WithContext(ctx).Where("name = ? AND owner_id = ?", name, owner.Id).First(&existing).Error
	switch {
	case err == nil:
		archived := fmt.Sprintf("%s_old_%s", name, time.Now().In(indochinaTime).Format(archivedNameTimeFormat))
		if err := s.db.WithContext(ctx).Model(&existing).Update("name", archived).Error; err != nil {
			slog.Error("error archiving existing project", "project_id", existing.Id, "error", err)
			return database.Project{}, CodedErrorf(http.StatusInternalServerError, "error archiving existing project '%s'", name)
		}
		slog.Info("archived existing project", "project_id", existing.Id, "old_name", name, "new_name", archived)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		slog.Error("error looking up project", "name", name, "error", err)
		return database.Project{}, CodedErrorf(http.StatusInternalServerError, "error looking up project '%s'", name)
	}

	project := database.Project{
		Id:           uuid.New(),
		Name:         name,
		OwnerId:      owner.Id,
		CreationTime: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		slog.Error("error creating project", "name", name, "error", err)
		return database.Project{}, CodedErrorf(http.StatusInternalServerError, "error creating project '%s'", name)
	}

	return project, nil
}

func (s *BackendService) DescribeCreateFromRemote(r *http.Request) (any, error) {
	return api.EndpointDescription{
		Name:        "create_from_remote",
		Description: "Creates a project from remotely stored objects and queues a background job that downloads them into a new task.",
		Methods:     []string{"GET", "POST"},
		QueryParams: []string{"host"},
	}, nil
}

func (s *BackendService) GetJob(r *http.Request) (any, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	var job database.IngestJob
	if err := s.db.WithContext(r.Context()).First(&job, "id = ?", jobId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "job %v not found", jobId)
		}
		slog.Error("error retrieving ingest job", "job_id", jobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving job")
	}

	res := api.JobResponse{
		JobId:            job.Id,
		ProjectId:        job.ProjectId,
		Host:             job.Host,
		FileCount:        job.FileCount,
		Status:           job.Status,
		Progress:         job.Progress,
		ImagesDownloaded: job.ImagesDownloaded,
		ErrorKind:        job.ErrorKind.String,
		ErrorMessage:     job.ErrorMessage.String,
		CreationTime:     job.CreationTime,
	}
	if job.TaskId.Valid {
		res.TaskId = &job.TaskId.UUID
	}
	if job.CompletionTime.Valid {
		res.CompletionTime = &job.CompletionTime.Time
	}
	return res, nil
}

func (s *BackendService) GetProject(r *http.Request) (any, error) {
	projectId, err := URLParamUUID(r, "project_id")
	if err != nil {
		return nil, err
	}

	var project database.Project
	if err := s.db.WithContext(r.Context()).Preload("Tasks").First(&project, "id = ?", projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "project %v not found", projectId)
		}
		slog.Error("error retrieving project", "project_id", projectId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving project")
	}

	tasks := make([]api.TaskResponse, 0, len(project.Tasks))
	for _, task := range project.Tasks {
		tasks = append(tasks, api.TaskResponse{
			Id:                 task.Id,
			Name:               task.Name,
			ProcessingNode:     task.ProcessingNode.String,
			AutoProcessingNode: task.AutoProcessingNode,
			ImagesCount:        task.ImagesCount,
			CreationTime:       task.CreationTime,
		})
	}

	return api.ProjectResponse{
		Id:           project.Id,
		Name:         project.Name,
		CreationTime: project.CreationTime,
		Tasks:        tasks,
	}, nil
}
