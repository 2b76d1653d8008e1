package interfaces

import (
	"fmt"
	"iter"
	"net/url"
)

// FailureStore is a flat named-blob store used by TA engines to persist
// authentication failure records across restarts.
//
// Implementations are only ever called from the TA goroutine and are not
// required to be safe for concurrent use.
type FailureStore interface {
	// Read returns the contents of name, or ErrNotFound if it does not exist.
	Read(name string) ([]byte, error)

	// Write replaces the contents of name. Partial updates are never visible.
	Write(name string, data []byte) error

	// Delete removes name, or returns ErrNotFound if it does not exist.
	Delete(name string) error

	// List returns a lazy, one-shot sequence of the names currently stored.
	// Entries that cannot be decoded as names are skipped and logged.
	List() (iter.Seq[string], error)
}

// StorageBackendLocation represents a failure store URI.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	User   *url.Userinfo
}

// NewStorageBackendLocation parses and validates a failure store URI.
// Supported schemes are file, s3 and vault.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "vault":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		User:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// IsFile checks if this is a directory-backed location.
func (loc StorageBackendLocation) IsFile() bool {
	return loc.Scheme == "file"
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}
