package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectbox/captiveportal/internal/adminlog"
	"github.com/connectbox/captiveportal/internal/config"
	"github.com/connectbox/captiveportal/internal/metrics"
	"github.com/connectbox/captiveportal/internal/policy"
	"github.com/connectbox/captiveportal/internal/registry"
	"github.com/connectbox/captiveportal/internal/render"
)

func newTestServer(t *testing.T, webAdminPassword string) *Server {
	t.Helper()
	cfg := &config.Config{
		BindAddress:           ":0",
		LocalURL:              "http://go",
		ClientIDSource:        config.ClientIDSource{Kind: "remote_addr"},
		MaxAssumedSessionTime: 300 * time.Second,
		MaxTimeWithoutShowing: 86400 * time.Second,
		WebAdminPassword:      webAdminPassword,
	}
	reg := registry.New()
	engine := policy.New(policy.Config{
		Registry:              reg,
		LocalURL:              cfg.LocalURL,
		MaxAssumedSessionTime: cfg.MaxAssumedSessionTime,
		MaxTimeWithoutShowing: cfg.MaxTimeWithoutShowing,
	})
	return New(cfg, reg, engine, render.New(), metrics.New(), adminlog.New())
}

func doRequest(s *Server, method, path, ua string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "203.0.113.7:54321"
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestAppleSuccessEndpoint_NewSessionLands(t *testing.T) {
	s := newTestServer(t, "")
	rec := doRequest(s, http.MethodGet, "/success.html", "CaptiveNetworkSupport/1.0 wispr")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Connected to ConnectBox Wifi")
}

func TestAppleSuccessEndpoint_RejoinGetsBitExactSuccessBody(t *testing.T) {
	s := newTestServer(t, "")
	s.registry.Touch("203.0.113.7", time.Now().Add(-301*time.Second))

	rec := doRequest(s, http.MethodGet, "/success.html", "CaptiveNetworkSupport/1.0 wispr")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, render.AppleSuccessBody, rec.Body.String())
}

// All five non-Android probe routes must accept POST as well as GET — some
// CPAs issue POST against these same paths, and a path matching a route with
// the wrong method must never fall through to chi's bare 405.
func TestFixedRoutes_AcceptBothGetAndPost(t *testing.T) {
	paths := []string{
		"/success.html",
		"/library/test/success.html",
		"/hotspot-detect.html",
		"/ncsi.txt",
		"/kindle-wifi/wifistub.html",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			s := newTestServer(t, "")
			rec := doRequest(s, http.MethodPost, path, "CaptiveNetworkSupport/1.0 wispr")
			assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code)
			assert.NotEqual(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestAndroidGenerate204_AcknowledgedFlowsTo204(t *testing.T) {
	s := newTestServer(t, "")
	ua := "Dalvik/2.1.0 (Linux; U; Android 9)"

	rec := doRequest(s, http.MethodGet, "/generate_204", ua)
	assert.Equal(t, http.StatusOK, rec.Code) // first probe: unacknowledged, lands

	doRequest(s, http.MethodPost, "/generate_204", ua) // OK press

	rec = doRequest(s, http.MethodGet, "/generate_204", ua)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNCSI_AlwaysLands(t *testing.T) {
	s := newTestServer(t, "")
	rec := doRequest(s, http.MethodGet, "/ncsi.txt", "Microsoft NCSI")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCatchAll_Lands(t *testing.T) {
	s := newTestServer(t, "")
	rec := doRequest(s, http.MethodGet, "/some/random/path", "curl/8.0")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Connected to ConnectBox Wifi")
}

func TestForgetClient_ResetsRegistryEntry(t *testing.T) {
	s := newTestServer(t, "")
	s.registry.Touch("203.0.113.7", time.Now())
	require.Equal(t, 1, s.registry.Len())

	rec := doRequest(s, http.MethodDelete, "/_authorised_clients", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.registry.Len())
}

func TestAdminSurface_RequiresAuthWhenConfigured(t *testing.T) {
	s := newTestServer(t, "secret")

	rec := doRequest(s, http.MethodGet, "/web/api/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/web/api/status", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminSurface_NotMountedWithoutPassword(t *testing.T) {
	s := newTestServer(t, "")
	rec := doRequest(s, http.MethodGet, "/web/api/status", "")
	// Falls through to the catch-all landing handler rather than 401/404,
	// since /web is simply never mounted.
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientID_HeaderSourceFallsBackToPortStrippedRemoteAddr(t *testing.T) {
	s := newTestServer(t, "")
	s.cfg.ClientIDSource = config.ClientIDSource{Kind: "header", Header: "X-Client-Id"}

	req := httptest.NewRequest(http.MethodGet, "/ncsi.txt", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	assert.Equal(t, "203.0.113.7", s.clientID(req))

	req.Header.Set("X-Client-Id", "device-42")
	assert.Equal(t, "device-42", s.clientID(req))
}

func TestMetricsEndpoint_Exposed(t *testing.T) {
	s := newTestServer(t, "")
	doRequest(s, http.MethodGet, "/ncsi.txt", "Microsoft NCSI")

	rec := doRequest(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "captiveportal_probes_total")
}
