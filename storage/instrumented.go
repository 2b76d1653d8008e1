package storage

import (
	"errors"
	"iter"
	"time"

	"github.com/ruteri/tee-ta-bridge/interfaces"
	"github.com/ruteri/tee-ta-bridge/metrics"
)

// InstrumentedStore records Prometheus metrics around another failure store.
type InstrumentedStore struct {
	store   interfaces.FailureStore
	backend string
}

// NewInstrumentedStore wraps store; backend is used as the metrics label.
func NewInstrumentedStore(store interfaces.FailureStore, backend string) *InstrumentedStore {
	return &InstrumentedStore{store: store, backend: backend}
}

func (s *InstrumentedStore) Read(name string) ([]byte, error) {
	start := time.Now()
	data, err := s.store.Read(name)
	s.record(metrics.OpRead, start, err)
	return data, err
}

func (s *InstrumentedStore) Write(name string, data []byte) error {
	start := time.Now()
	err := s.store.Write(name, data)
	s.record(metrics.OpWrite, start, err)
	return err
}

func (s *InstrumentedStore) Delete(name string) error {
	start := time.Now()
	err := s.store.Delete(name)
	s.record(metrics.OpDelete, start, err)
	return err
}

func (s *InstrumentedStore) List() (iter.Seq[string], error) {
	start := time.Now()
	names, err := s.store.List()
	s.record(metrics.OpList, start, err)
	return names, err
}

// Unwrap returns the underlying store.
func (s *InstrumentedStore) Unwrap() interfaces.FailureStore {
	return s.store
}

func (s *InstrumentedStore) record(op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		status = metrics.StatusNotFound
	case err != nil:
		status = metrics.StatusError
	}
	metrics.RecordStoreOperation(op, s.backend, status, time.Since(start).Seconds())
}
