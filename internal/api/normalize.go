package api

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Upstream producers send project payloads in two historical forms. The
// grouped form nests files under dated groups; the flat form carries a
// single payload list. Exactly one of the two top level keys must be
// present, and a body wrapped in a single element array is unwrapped
// before shape detection.
//
// Grouped: {"data": [{"date": ..., "task": ..., "files": [{"file_name": ..., "minio_path": ...}]}]}
// Flat:    {"TaskId": ..., "TaskName": ..., "payload": [{"filename": ..., "object_path": ..., "folder": ...}]}

type NormalizedRequest struct {
	ProjectName string
	ObjectRefs  []string
}

type groupedFile struct {
	FileName  *string `json:"file_name"`
	MinioPath *string `json:"minio_path"`
}

type fileGroup struct {
	Date  *string       `json:"date"`
	Task  *string       `json:"task"`
	Files []groupedFile `json:"files"`
}

type flatItem struct {
	Filename   *string `json:"filename"`
	ObjectPath *string `json:"object_path"`
	Folder     *string `json:"folder"`
}

type flatRequest struct {
	TaskId   *string    `json:"TaskId"`
	TaskName *string    `json:"TaskName"`
	Payload  []flatItem `json:"payload"`
}

const defaultProjectName = "Unnamed_Project"

func NormalizeRequest(body []byte) (NormalizedRequest, error) {
	raw := bytes.TrimSpace(body)

	if len(raw) > 0 && raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return NormalizedRequest{}, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
		}
		if len(items) == 0 {
			return NormalizedRequest{}, CodedErrorf(http.StatusBadRequest, "request body must contain either a 'data' or 'payload' key")
		}
		raw = items[0]
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return NormalizedRequest{}, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}

	if groups, ok := fields["data"]; ok {
		return normalizeGrouped(groups)
	}
	if _, ok := fields["payload"]; ok {
		return normalizeFlat(raw)
	}
	return NormalizedRequest{}, CodedErrorf(http.StatusBadRequest, "request body must contain either a 'data' or 'payload' key")
}

func normalizeGrouped(raw json.RawMessage) (NormalizedRequest, error) {
	var groups []fileGroup
	if err := json.Unmarshal(raw, &groups); err != nil {
		return NormalizedRequest{}, CodedErrorf(http.StatusBadRequest, "'data' must be a list of file groups")
	}
	if len(groups) == 0 || groups[0].Task == nil {
		return NormalizedRequest{}, CodedErrorf(http.StatusBadRequest, "unable to determine project name from 'data'")
	}

	// Flattening preserves input order across groups and never deduplicates.
	refs := make([]string, 0)
	for i, group := range groups {
		for j, file := range group.Files {
			if file.MinioPath == nil {
				return NormalizedRequest{}, CodedErrorf(http.StatusBadRequest, "missing 'minio_path' in data[%d].files[%d]", i, j)
			}
			refs = append(refs, *file.MinioPath)
		}
	}

	return NormalizedRequest{ProjectName: *groups[0].Task, ObjectRefs: refs}, nil
}

func normalizeFlat(raw json.RawMessage) (NormalizedRequest, error) {
	var req flatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NormalizedRequest{}, CodedErrorf(http.StatusBadRequest, "'payload' must be a list of file entries")
	}

	// Name fallback chain: first item's folder, then TaskName, then the
	// default. Empty strings are treated the same as absent values.
	name := defaultProjectName
	if req.TaskName != nil && *req.TaskName != "" {
		name = *req.TaskName
	}
	if len(req.Payload) > 0 && req.Payload[0].Folder != nil && *req.Payload[0].Folder != "" {
		name = *req.Payload[0].Folder
	}

	refs := make([]string, 0, len(req.Payload))
	for i, item := range req.Payload {
		if item.ObjectPath == nil {
			return NormalizedRequest{}, CodedErrorf(http.StatusBadRequest, "missing 'object_path' in payload[%d]", i)
		}
		refs = append(refs, *item.ObjectPath)
	}

	return NormalizedRequest{ProjectName: name, ObjectRefs: refs}, nil
}
