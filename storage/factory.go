package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/tee-ta-bridge/interfaces"
)

// FailureStoreFactory creates failure stores from location URIs.
type FailureStoreFactory struct {
	log *slog.Logger
}

// NewFailureStoreFactory creates a new factory instance.
func NewFailureStoreFactory(logger *slog.Logger) *FailureStoreFactory {
	return &FailureStoreFactory{log: logger}
}

// FailureStoreFor creates an instrumented failure store from a location URI.
//
// Supported schemes:
//   - file:///absolute/path - existing local directory (checked, never created)
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-east-1&endpoint=http://minio:9000
//   - vault://[TOKEN@]host:port/mount/path?tls=false
func (sf *FailureStoreFactory) FailureStoreFor(location interfaces.StorageBackendLocation) (interfaces.FailureStore, error) {
	var (
		store   interfaces.FailureStore
		backend string
		err     error
	)

	switch strings.ToLower(location.Scheme) {
	case "file":
		store, err = sf.createFileStore(location)
		backend = "file"
	case "s3":
		store, err = sf.createS3Store(location)
		backend = "s3"
	case "vault":
		store, err = sf.createVaultStore(location)
		backend = "vault"
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
	if err != nil {
		return nil, err
	}

	return NewInstrumentedStore(store, backend), nil
}

// createFileStore enforces the directory precondition: a missing directory is a
// deployment error and is never papered over by creating it.
// URI format: file:///absolute/path or file://./relative/path
func (sf *FailureStoreFactory) createFileStore(location interfaces.StorageBackendLocation) (interfaces.FailureStore, error) {
	sf.log.Debug("Creating file failure store", slog.String("uri", location.String()))

	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, location.String())
	}

	if err := CheckDirectory(path); err != nil {
		return nil, err
	}
	return NewFileStore(path, sf.log), nil
}

// createS3Store creates an S3 or S3-compatible failure store.
func (sf *FailureStoreFactory) createS3Store(location interfaces.StorageBackendLocation) (interfaces.FailureStore, error) {
	sf.log.Debug("Creating S3 failure store", slog.String("bucket", location.Host), slog.String("prefix", location.Path))

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if location.User != nil {
		accessKey = location.User.Username()
		secretKey, _ = location.User.Password()
	}

	return NewS3Store(location.Host, location.Path, region, location.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createVaultStore creates a Vault KV v2 failure store. The first path segment is the
// mount, the rest is the path inside it.
func (sf *FailureStoreFactory) createVaultStore(location interfaces.StorageBackendLocation) (interfaces.FailureStore, error) {
	sf.log.Debug("Creating Vault failure store", slog.String("host", location.Host), slog.String("path", location.Path))

	mount, dataPath, found := strings.Cut(strings.TrimPrefix(location.Path, "/"), "/")
	if !found {
		return nil, fmt.Errorf("%w: expected vault://host:port/mount/path", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if location.GetParam("tls") == "false" {
		scheme = "http"
	}

	var token string
	if location.User != nil {
		token = location.User.Username()
	}

	return NewVaultStore(fmt.Sprintf("%s://%s", scheme, location.Host), mount, dataPath, token, sf.log)
}
