package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/tee-ta-bridge/interfaces"
	"github.com/ruteri/tee-ta-bridge/metrics"
)

const (
	// RequestIDHeader carries the id assigned to each TA request.
	RequestIDHeader = "X-Request-Id"

	contentTypeBinary = "application/octet-stream"
)

var (
	// ErrServiceExists is returned when a service name is registered twice.
	ErrServiceExists = errors.New("service already registered")

	// ErrInvalidServiceName is returned for names that cannot appear in a URL path segment.
	ErrInvalidServiceName = errors.New("invalid service name")

	serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)
)

// Handler exposes one serialized channel under any number of service names.
// Every service shares the same channel, so requests to different services are
// still executed one at a time.
type Handler struct {
	channel  interfaces.SerializedChannel
	mu       sync.RWMutex
	services map[string]struct{}
	log      *slog.Logger
}

// NewHandler creates a handler in front of channel with no services registered.
func NewHandler(channel interfaces.SerializedChannel, log *slog.Logger) *Handler {
	return &Handler{
		channel:  channel,
		services: make(map[string]struct{}),
		log:      log,
	}
}

// RegisterService makes the channel reachable under name.
func (h *Handler) RegisterService(name string) error {
	if !serviceNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidServiceName, name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.services[name]; exists {
		return fmt.Errorf("failed to register service %s: %w", name, ErrServiceExists)
	}
	h.services[name] = struct{}{}

	h.log.Info("Registered TA service", "service", name)
	return nil
}

// Services returns the registered service names in sorted order.
func (h *Handler) Services() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.services))
	for name := range h.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (h *Handler) registered(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.services[name]
	return ok
}

// HandleExecute forwards the request body to the TA and writes back its response.
//
// URL format: POST /api/v1/ta/{service}
//
// Request body: opaque TA request bytes
//
// Response: opaque TA response bytes, with an X-Request-Id header. Oversized
// requests get 413. A cancelled client does not cancel a request the TA has
// already accepted.
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	requestID := uuid.NewString()
	w.Header().Set(RequestIDHeader, requestID)
	log := h.log.With("service", service, "requestID", requestID)

	if !h.registered(service) {
		metrics.RecordServiceRequest("unknown", metrics.StatusNotFound)
		http.Error(w, "Unknown service", http.StatusNotFound)
		return
	}

	body := r.Body
	if maxSize := h.channel.MaxSize(); maxSize < math.MaxInt {
		body = http.MaxBytesReader(w, r.Body, int64(maxSize))
	}
	req, err := io.ReadAll(body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			metrics.RecordServiceRequest(service, metrics.StatusTooLarge)
			log.Warn("Request exceeds maximum message size", "limit", maxBytesErr.Limit)
			http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
			return
		}
		metrics.RecordServiceRequest(service, metrics.StatusError)
		log.Error("Failed to read request body", "err", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	rsp, err := h.channel.Execute(req)
	switch {
	case errors.Is(err, interfaces.ErrRequestTooLarge):
		metrics.RecordServiceRequest(service, metrics.StatusTooLarge)
		log.Warn("Request exceeds maximum message size", "size", len(req))
		http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		return
	case errors.Is(err, interfaces.ErrChannelFault):
		metrics.RecordServiceRequest(service, metrics.StatusFault)
		log.Error("TA channel fault", "err", err)
		http.Error(w, "TA unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		metrics.RecordServiceRequest(service, metrics.StatusError)
		log.Error("TA request failed", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	metrics.RecordServiceRequest(service, metrics.StatusSuccess)
	log.Debug("TA request served", "requestSize", len(req), "responseSize", len(rsp))

	w.Header().Set("Content-Type", contentTypeBinary)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(rsp); err != nil {
		log.Warn("Failed to write TA response", "err", err)
	}
}

// HandleListServices returns the registered service names.
//
// URL format: GET /api/v1/services
func (h *Handler) HandleListServices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"services": h.Services(),
		"max_size": h.channel.MaxSize(),
	}); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
