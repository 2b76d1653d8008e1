/*
Package httpserver exposes a serialized TA channel over HTTP.

Any number of service names can be registered on one Handler; all of them
forward to the same channel, so requests stay serialized across services.

# API Endpoints

  - POST /api/v1/ta/{service} - Execute one opaque TA request
  - GET /api/v1/services - List registered services and the maximum message size
  - GET /livez - Liveness check
  - GET /readyz - Readiness check, not ready while draining or while the preshared key is locked
  - GET /drain - Mark server as not ready
  - GET /undrain - Mark server as ready

# Admin Endpoints

Served on a separate listener when the preshared key is split into Shamir shares:

  - GET /admin/status - Lock state
  - POST /admin/share - Submit a share, signed with the admin's ECDSA key

# Example Usage

	handler := httpserver.NewHandler(channel, logger)
	if err := handler.RegisterService("gatekeeper"); err != nil {
		return err
	}

	server := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		Log:                      logger,
		GracefulShutdownDuration: 30 * time.Second,
	}, handler, nil)
	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
