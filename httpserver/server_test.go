package httpserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ruteri/tee-ta-bridge/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, admin *AdminHandler) *Server {
	h := NewHandler(newEchoChannel(), discardLogger())
	require.NoError(t, h.RegisterService("gatekeeper"))
	return New(&HTTPServerConfig{
		ListenAddr: "127.0.0.1:0",
		AdminAddr:  "127.0.0.1:0",
		Log:        discardLogger(),
	}, h, admin)
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestServer_Routes(t *testing.T) {
	router := newTestServer(t, nil).Router()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ta/gatekeeper", bytes.NewReader([]byte{0x07}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []byte{0x07, 0xFF}, rr.Body.Bytes())

	assert.Equal(t, http.StatusOK, get(router, "/api/v1/services").Code)
	assert.Equal(t, http.StatusOK, get(router, "/livez").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/debug/pprof/").Code)
}

func TestServer_DrainUndrain(t *testing.T) {
	router := newTestServer(t, nil).Router()

	assert.Equal(t, http.StatusOK, get(router, "/readyz").Code)

	rr := get(router, "/drain")
	assert.JSONEq(t, `{"status":"draining"}`, rr.Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/readyz").Code)
	assert.JSONEq(t, `{"status":"already draining"}`, get(router, "/drain").Body.String())

	rr = get(router, "/undrain")
	assert.JSONEq(t, `{"status":"ready"}`, rr.Body.String())
	assert.Equal(t, http.StatusOK, get(router, "/readyz").Code)
	assert.JSONEq(t, `{"status":"already ready"}`, get(router, "/undrain").Body.String())
}

func TestServer_NotReadyWhileLocked(t *testing.T) {
	key, err := hal.NewShamirPresharedKey(2)
	require.NoError(t, err)
	admin := NewAdminHandler(discardLogger(), nil, key)
	srv := newTestServer(t, admin)
	router := srv.Router()

	rr := get(router, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"locked"}`, rr.Body.String())
	assert.NotNil(t, srv.adminSrv)

	// Liveness does not depend on the key.
	assert.Equal(t, http.StatusOK, get(router, "/livez").Code)
}

func TestServer_PprofEnabled(t *testing.T) {
	h := NewHandler(newEchoChannel(), discardLogger())
	srv := New(&HTTPServerConfig{Log: discardLogger(), EnablePprof: true}, h, nil)
	assert.Equal(t, http.StatusOK, get(srv.Router(), "/debug/pprof/").Code)
	assert.Nil(t, srv.adminSrv)
}
