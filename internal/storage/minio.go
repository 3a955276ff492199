package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioClientFactory struct {
	creds Credentials
}

var _ ClientFactory = (*MinioClientFactory)(nil)

func NewMinioClientFactory(creds Credentials) *MinioClientFactory {
	return &MinioClientFactory{creds: creds}
}

func (f *MinioClientFactory) ClientFor(host string) (ObjectStore, error) {
	endpoint, secure, err := ParseHostURL(host)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(f.creds.AccessKeyID, f.creds.SecretAccessKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client for %s: %w", endpoint, err)
	}

	return &MinioObjectStore{client: client}, nil
}

type MinioObjectStore struct {
	client *minio.Client
}

var _ ObjectStore = (*MinioObjectStore)(nil)

func (s *MinioObjectStore) DownloadObject(ctx context.Context, bucket, key, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for download %s: %w", filepath.Dir(filename), err)
	}

	// FGetObject downloads to a temp file and renames, so a failed download
	// leaves no partial file at filename.
	if err := s.client.FGetObject(ctx, bucket, key, filename, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download object %s/%s: %w", bucket, key, err)
	}

	return nil
}
