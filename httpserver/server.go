package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ruteri/tee-ta-bridge/metrics"
	"go.uber.org/atomic"
)

type Server struct {
	cfg     *HTTPServerConfig
	isReady *atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	adminSrv   *http.Server
	metricsSrv *metrics.MetricsServer
	handler    *Handler
	admin      *AdminHandler
}

// New creates the TA API server. admin may be nil when the preshared key is
// not split into shares.
func New(cfg *HTTPServerConfig, handler *Handler, admin *AdminHandler) *Server {
	srv := &Server{
		cfg:        cfg,
		isReady:    atomic.NewBool(true),
		log:        cfg.Log,
		metricsSrv: metrics.New(cfg.MetricsAddr),
		handler:    handler,
		admin:      admin,
	}

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if admin != nil && cfg.AdminAddr != "" {
		mux := chi.NewRouter()
		mux.Use(srv.httpLogger)
		mux.Mount("/admin", admin.AdminRouter())
		srv.adminSrv = &http.Server{
			Addr:         cfg.AdminAddr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}
	}

	return srv
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.With(srv.httpLogger).Post("/api/v1/ta/{service}", srv.handler.HandleExecute)
	mux.With(srv.httpLogger).Get("/api/v1/services", srv.handler.HandleListServices)

	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)
	mux.With(srv.httpLogger).Get("/drain", srv.handleDrain)
	mux.With(srv.httpLogger).Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

// Router exposes the API routes, mostly for tests.
func (srv *Server) Router() http.Handler {
	return srv.srv.Handler
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

// handleReadinessCheck reports not ready while draining or while the
// preshared key is still waiting for shares.
func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	if srv.admin != nil && !srv.admin.Unlocked() {
		writeStatus(w, http.StatusServiceUnavailable, "locked")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}
	srv.log.Info("Server marked as not ready")
	writeStatus(w, http.StatusOK, "draining")
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}
	srv.log.Info("Server marked as ready")
	writeStatus(w, http.StatusOK, "ready")
}

func (srv *Server) RunInBackground() {
	if srv.cfg.MetricsAddr != "" {
		go func() {
			srv.log.With("metricsAddress", srv.cfg.MetricsAddr).Info("Starting metrics server")
			err := srv.metricsSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	if srv.adminSrv != nil {
		go func() {
			srv.log.Info("Starting admin server", "adminAddress", srv.cfg.AdminAddr)
			if err := srv.adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("Admin server failed", "err", err)
			}
		}()
	}

	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown marks the server not ready, waits DrainDuration, then stops every listener.
func (srv *Server) Shutdown() {
	if srv.isReady.Swap(false) && srv.cfg.DrainDuration > 0 {
		srv.log.Info("Draining before shutdown", "duration", srv.cfg.DrainDuration)
		time.Sleep(srv.cfg.DrainDuration)
	}

	srv.shutdownOne("HTTP server", srv.srv.Shutdown)
	if srv.adminSrv != nil {
		srv.shutdownOne("Admin server", srv.adminSrv.Shutdown)
	}
	if srv.cfg.MetricsAddr != "" {
		srv.shutdownOne("Metrics server", srv.metricsSrv.Shutdown)
	}
}

func (srv *Server) shutdownOne(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		srv.log.Error("Graceful shutdown failed", "server", name, "err", err)
	} else {
		srv.log.Info("Gracefully stopped", "server", name)
	}
}
