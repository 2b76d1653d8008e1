// Package storage provides failure-record stores for TA engines.
//
// A failure store is a flat named-blob store (interfaces.FailureStore) in which an
// engine persists authentication failure counters so that throttling survives process
// restarts. The record layout belongs to the engine; stores only move opaque bytes.
//
// # Backends
//
//   - FileStore: one file per record in a pre-existing directory (the reference backend)
//   - S3Store: one object per record under a bucket prefix
//   - VaultStore: one KV v2 secret per record
//
// # Storage URI Format
//
// Stores are selected with URIs:
//
//	file:///data/vendor/gatekeeper/nonsecure
//	s3://ACCESS_KEY:SECRET_KEY@bucket/prefix?region=us-west-2&endpoint=http://minio:9000
//	vault://TOKEN@vault.example.com:8200/secret/gatekeeper
//
// # Error contract
//
// Every backend returns interfaces.ErrNotFound for a missing record on Read and
// Delete, and wraps interfaces.ErrInternal for I/O faults. Listing is best effort:
// entries that do not decode as record names are logged and skipped.
//
// # Security
//
// None of these backends are secure. The file store in particular lets root on the
// host reset failure counts, which allows unlimited password attempts. A real
// deployment must keep equivalent storage behind the isolated execution boundary.
//
// Stores are not internally synchronized; they are only called from the TA goroutine.
package storage
