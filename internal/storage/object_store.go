package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ObjectStore is the client surface ingestion needs from an S3-compatible
// store. Implementations must leave no file behind when a download fails.
type ObjectStore interface {
	DownloadObject(ctx context.Context, bucket, key, filename string) error
}

// ClientFactory builds a store client for the host URL carried by each
// ingest request. The host is remote-supplied, so clients are constructed per
// job rather than once at startup.
type ClientFactory interface {
	ClientFor(host string) (ObjectStore, error)
}

type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// ParseHostURL splits a store host URL into the endpoint (host:port) and
// whether TLS should be used. A bare "host:port" with no scheme is accepted
// and treated as insecure.
func ParseHostURL(host string) (endpoint string, secure bool, err error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", false, fmt.Errorf("empty store host")
	}

	if !strings.Contains(host, "://") {
		return strings.TrimSuffix(host, "/"), false, nil
	}

	u, err := url.Parse(host)
	if err != nil {
		return "", false, fmt.Errorf("invalid store host %q: %w", host, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("store host %q has no host component", host)
	}

	return u.Host, u.Scheme == "https", nil
}

// NewClientFactory selects the store implementation by provider name.
// Provider "s3" uses the AWS SDK; everything else defaults to minio.
func NewClientFactory(provider, region string, creds Credentials) ClientFactory {
	if provider == "s3" {
		return NewS3ClientFactory(region, creds)
	}
	return NewMinioClientFactory(creds)
}
