package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ruteri/tee-ta-bridge/interfaces"
)

const (
	tempFilePrefix = ".tmp-"
	listBatchSize  = 64
)

// FileStore keeps failure records as files in a single flat directory.
//
// This store is NOT secure: anyone with root on the host can rewrite or remove the
// records, which resets failure counts and defeats throttling. A real deployment must
// keep equivalent storage behind the isolated execution boundary.
//
// The directory must exist before the store is used; FileStore never creates it.
type FileStore struct {
	dir         string
	log         *slog.Logger
	locationURI string
}

// NewFileStore creates a store over an existing directory. Use CheckDirectory first.
func NewFileStore(dir string, log *slog.Logger) *FileStore {
	return &FileStore{
		dir:         dir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", dir),
	}
}

// CheckDirectory verifies that dir exists and is a directory.
// Service startup must fail when it returns an error.
func CheckDirectory(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("required directory %q does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("failed to determine if %q exists: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("required directory %q is not a directory", dir)
	}
	return nil
}

// Read returns the contents of the named record.
func (s *FileStore) Read(name string) ([]byte, error) {
	path, err := s.recordPath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Debug("Failure record not found", slog.String("path", path))
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		s.log.Error("Failed to read failure record", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: failed to read %s: %v", interfaces.ErrInternal, path, err)
	}

	return data, nil
}

// Write replaces the named record. The data goes to a temporary file (created 0600)
// that is renamed over the record, so readers never observe a partial write.
func (s *FileStore) Write(name string, data []byte) error {
	path, err := s.recordPath(name)
	if err != nil {
		return err
	}

	if err := s.writeFile(path, name, data); err != nil {
		s.log.Error("Failed to write failure record", slog.String("path", path), "err", err)
		return fmt.Errorf("%w: failed to write %s: %v", interfaces.ErrInternal, path, err)
	}

	s.log.Debug("Stored failure record", slog.String("path", path), slog.Int("size", len(data)))
	return nil
}

func (s *FileStore) writeFile(path, name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, tempFilePrefix+name+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Delete removes the named record.
func (s *FileStore) Delete(name string) error {
	path, err := s.recordPath(name)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Debug("Failure record to delete not found", slog.String("path", path))
		return interfaces.ErrNotFound
	}
	if err != nil {
		s.log.Warn("Failed to delete failure record", slog.String("path", path), "err", err)
		return fmt.Errorf("%w: failed to delete %s: %v", interfaces.ErrInternal, path, err)
	}
	return nil
}

// List returns the names of all records. The directory is checked up front but only
// opened once the sequence is ranged over, and is read in batches while the sequence
// is consumed. The sequence can be ranged over once; a sequence that is never ranged
// over holds no resources.
func (s *FileStore) List() (iter.Seq[string], error) {
	if info, err := os.Stat(s.dir); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", s.dir)
		}
		s.log.Error("Failed to list failure records", slog.String("dir", s.dir), "err", err)
		return nil, fmt.Errorf("%w: failed to list %s: %v", interfaces.ErrInternal, s.dir, err)
	}

	consumed := false
	return func(yield func(string) bool) {
		if consumed {
			s.log.Warn("Failure record listing already consumed", slog.String("dir", s.dir))
			return
		}
		consumed = true

		dir, err := os.Open(s.dir)
		if err != nil {
			s.log.Error("Failed to open failure record directory", slog.String("dir", s.dir), "err", err)
			return
		}
		defer dir.Close()

		for {
			entries, err := dir.ReadDir(listBatchSize)
			for _, entry := range entries {
				name, ok := s.entryName(entry)
				if !ok {
					continue
				}
				if !yield(name) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.log.Error("Failed to get next directory entry", slog.String("dir", s.dir), "err", err)
				}
				return
			}
		}
	}, nil
}

// LocationURI returns the URI that identifies this store.
func (s *FileStore) LocationURI() string {
	return s.locationURI
}

// entryName decodes a directory entry as a record name, logging entries that are skipped.
func (s *FileStore) entryName(entry fs.DirEntry) (string, bool) {
	name := entry.Name()
	switch {
	case strings.HasPrefix(name, tempFilePrefix):
		return "", false
	case entry.IsDir():
		s.log.Warn("Skipping sub-directory in failure record directory", slog.String("name", name))
		return "", false
	case !utf8.ValidString(name):
		s.log.Error("Directory entry does not have a valid UTF-8 name", slog.String("name", fmt.Sprintf("%q", name)))
		return "", false
	}
	return name, true
}

// recordPath maps a record name to its file. Names must be a single path element.
func (s *FileStore) recordPath(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: invalid record name %q", interfaces.ErrInternal, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: record name %q must be a single path element", interfaces.ErrInternal, name)
	case strings.HasPrefix(name, tempFilePrefix):
		return fmt.Errorf("%w: record name %q uses a reserved prefix", interfaces.ErrInternal, name)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: record name %q is not valid UTF-8", interfaces.ErrInternal, name)
	}
	return nil
}
