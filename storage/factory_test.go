package storage

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruteri/tee-ta-bridge/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureStoreFactory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := NewFailureStoreFactory(logger)
	dir := t.TempDir()

	vault := httptest.NewServer(newFakeKV("secret"))
	t.Cleanup(vault.Close)
	vaultHost := strings.TrimPrefix(vault.URL, "http://")

	tests := []struct {
		name        string
		uri         string
		wantErr     error
		wantBackend any
	}{
		{name: "file", uri: "file://" + dir, wantBackend: &FileStore{}},
		{name: "missing directory", uri: "file://" + filepath.Join(dir, "missing"), wantErr: errAny},
		{name: "s3", uri: "s3://access:secret@bucket/prefix?region=eu-west-1&endpoint=http://127.0.0.1:9000", wantBackend: &S3Store{}},
		{name: "vault", uri: "vault://token@" + vaultHost + "/secret/gatekeeper?tls=false", wantBackend: &VaultStore{}},
		{name: "vault unknown mount", uri: "vault://token@" + vaultHost + "/kv/gatekeeper?tls=false", wantErr: interfaces.ErrInternal},
		{name: "vault without path", uri: "vault://token@127.0.0.1:8200/secret", wantErr: interfaces.ErrInvalidLocationURI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := interfaces.NewStorageBackendLocation(tt.uri)
			require.NoError(t, err)

			store, err := factory.FailureStoreFor(loc)
			if tt.wantErr != nil {
				require.Error(t, err)
				if tt.wantErr != errAny {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)

			instrumented, ok := store.(*InstrumentedStore)
			require.True(t, ok)
			assert.IsType(t, tt.wantBackend, instrumented.Unwrap())
		})
	}
}

func TestFailureStoreFactory_FileStoreWorks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	loc, err := interfaces.NewStorageBackendLocation("file://" + dir)
	require.NoError(t, err)
	store, err := NewFailureStoreFactory(logger).FailureStoreFor(loc)
	require.NoError(t, err)

	require.NoError(t, store.Write("user", []byte("record")))
	data, err := store.Read("user")
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), data)
}

func TestNewStorageBackendLocation_RejectsUnknownScheme(t *testing.T) {
	_, err := interfaces.NewStorageBackendLocation("ipfs://host/path")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

var errAny = &anyError{}

type anyError struct{}

func (*anyError) Error() string { return "any error" }
