package api_test

import (
	"testing"

	backend "ingest-backend/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRejectsUnknownShapes(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"files": []}`,
		`[]`,
		`[{}]`,
		`not json`,
	} {
		_, err := backend.NormalizeRequest([]byte(body))
		assert.Error(t, err, "body: %s", body)
	}
}

func TestNormalizeGrouped(t *testing.T) {
	body := `{"data":[{"date":"2024-01-01","task":"Farm1","files":[{"minio_path":"bucket1/a.jpg"},{"minio_path":"bucket1/b.jpg"}]}]}`

	norm, err := backend.NormalizeRequest([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "Farm1", norm.ProjectName)
	assert.Equal(t, []string{"bucket1/a.jpg", "bucket1/b.jpg"}, norm.ObjectRefs)
}

func TestNormalizeGroupedFlattensAcrossGroups(t *testing.T) {
	body := `{"data":[
		{"task":"Farm1","files":[{"minio_path":"b/1.jpg"},{"minio_path":"b/2.jpg"}]},
		{"task":"ignored","files":[{"minio_path":"b/3.jpg"},{"minio_path":"b/2.jpg"}]}
	]}`

	norm, err := backend.NormalizeRequest([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "Farm1", norm.ProjectName)
	// Order is preserved and duplicates are kept.
	assert.Equal(t, []string{"b/1.jpg", "b/2.jpg", "b/3.jpg", "b/2.jpg"}, norm.ObjectRefs)
}

func TestNormalizeGroupedMissingName(t *testing.T) {
	for _, body := range []string{
		`{"data":[]}`,
		`{"data":[{"files":[{"minio_path":"b/1.jpg"}]}]}`,
		`{"data":"nope"}`,
	} {
		_, err := backend.NormalizeRequest([]byte(body))
		assert.Error(t, err, "body: %s", body)
	}
}

func TestNormalizeGroupedMissingObjectRef(t *testing.T) {
	body := `{"data":[{"task":"Farm1","files":[{"minio_path":"b/1.jpg"},{"file_name":"2.jpg"}]}]}`

	_, err := backend.NormalizeRequest([]byte(body))
	assert.Error(t, err)
}

func TestNormalizeGroupedEmptyFiles(t *testing.T) {
	norm, err := backend.NormalizeRequest([]byte(`{"data":[{"task":"Farm1","files":[]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Farm1", norm.ProjectName)
	assert.Empty(t, norm.ObjectRefs)
}

func TestNormalizeFlat(t *testing.T) {
	body := `{"TaskName":"T1","payload":[{"object_path":"bucketX/img1.png"}]}`

	norm, err := backend.NormalizeRequest([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "T1", norm.ProjectName)
	assert.Equal(t, []string{"bucketX/img1.png"}, norm.ObjectRefs)
}

func TestNormalizeFlatNameFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"folder wins", `{"TaskName":"T1","payload":[{"object_path":"b/1.png","folder":"Greenhouse"}]}`, "Greenhouse"},
		{"empty folder falls back", `{"TaskName":"T1","payload":[{"object_path":"b/1.png","folder":""}]}`, "T1"},
		{"task name when no folder", `{"TaskName":"T1","payload":[{"object_path":"b/1.png"}]}`, "T1"},
		{"default when nothing", `{"payload":[{"object_path":"b/1.png"}]}`, "Unnamed_Project"},
		{"default on empty payload", `{"payload":[]}`, "Unnamed_Project"},
		{"task name on empty payload", `{"TaskName":"T1","payload":[]}`, "T1"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			norm, err := backend.NormalizeRequest([]byte(test.body))
			require.NoError(t, err)
			assert.Equal(t, test.want, norm.ProjectName)
		})
	}
}

func TestNormalizeFlatMissingObjectRef(t *testing.T) {
	body := `{"TaskName":"T1","payload":[{"object_path":"b/1.png"},{"filename":"2.png"}]}`

	_, err := backend.NormalizeRequest([]byte(body))
	assert.Error(t, err)
}

func TestNormalizeArrayWrappedBody(t *testing.T) {
	wrapped := `[{"TaskName":"T1","payload":[{"object_path":"bucketX/img1.png"}]}]`
	unwrapped := `{"TaskName":"T1","payload":[{"object_path":"bucketX/img1.png"}]}`

	fromWrapped, err := backend.NormalizeRequest([]byte(wrapped))
	require.NoError(t, err)

	fromUnwrapped, err := backend.NormalizeRequest([]byte(unwrapped))
	require.NoError(t, err)

	assert.Equal(t, fromUnwrapped, fromWrapped)
}
