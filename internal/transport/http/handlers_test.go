package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linkhub/internal/linking/models"
	"linkhub/internal/linking/service"
	"linkhub/internal/platform/health"
	"linkhub/internal/platform/middleware"
	id "linkhub/pkg/domain"
	dErrors "linkhub/pkg/domain-errors"
)

type stubService struct {
	connectOut  service.ConnectOutcome
	connectErr  error
	disconnects []bool
	statusSnap  models.StatusSnapshot
	sendErr     error
	sent        []models.OutboundMessage
	active      []id.TenantID
}

func (s *stubService) Connect(_ context.Context, _ string) (service.ConnectOutcome, error) {
	return s.connectOut, s.connectErr
}

func (s *stubService) Disconnect(_ context.Context, _ string, logout bool) error {
	s.disconnects = append(s.disconnects, logout)
	return nil
}

func (s *stubService) Status(_ context.Context, _ string) (models.StatusSnapshot, error) {
	return s.statusSnap, nil
}

func (s *stubService) Send(_ context.Context, msg models.OutboundMessage) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubService) ListActive(_ context.Context) []id.TenantID {
	return s.active
}

type stubValidator struct {
	tenantID string
	err      error
}

func (v stubValidator) ValidateToken(string) (*middleware.TokenClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	return &middleware.TokenClaims{TenantID: v.tenantID, Subject: "dashboard"}, nil
}

func newTestRouter(svc *stubService, validator middleware.TokenValidator) http.Handler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewRouter(NewHandler(svc, logger), RouterConfig{
		TokenValidator: validator,
		AdminToken:     "admin-secret",
		Health:         health.New("test"),
		Logger:         logger,
	})
}

func doRequest(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestConnect_ReturnsPairingChallenge(t *testing.T) {
	svc := &stubService{connectOut: service.ConnectOutcome{Status: service.StatusPairingStarted, QR: "qr-payload"}}
	router := newTestRouter(svc, stubValidator{tenantID: "t1"})

	w := doRequest(router, http.MethodPost, "/tenants/t1/session/connect", "tok", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "pairing_started", resp["status"])
	require.Equal(t, "qr-payload", resp["qr"])
}

func TestConnect_SessionFailureMapsToBadGateway(t *testing.T) {
	svc := &stubService{connectErr: dErrors.New(dErrors.CodeSessionFailed, "gave up after 10 attempts")}
	router := newTestRouter(svc, stubValidator{tenantID: "t1"})

	w := doRequest(router, http.MethodPost, "/tenants/t1/session/connect", "tok", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "session_failed", resp["error"])
}

func TestDisconnect_BodyIsOptional(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc, stubValidator{tenantID: "t1"})

	w := doRequest(router, http.MethodPost, "/tenants/t1/session/disconnect", "tok", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/tenants/t1/session/disconnect", "tok", map[string]bool{"logout": true})
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, []bool{false, true}, svc.disconnects)
}

func TestStatus_ReportsSnapshot(t *testing.T) {
	svc := &stubService{statusSnap: models.StatusSnapshot{
		State: models.StatePairingPending,
		QR:    "qr-1",
		Since: time.Now(),
	}}
	router := newTestRouter(svc, stubValidator{tenantID: "t1"})

	w := doRequest(router, http.MethodGet, "/tenants/t1/session", "tok", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "pairing_pending", resp.State)
	require.False(t, resp.Connected)
	require.Equal(t, "qr-1", resp.QR)
}

func TestSend_DeliversMessage(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc, stubValidator{tenantID: "t1"})

	w := doRequest(router, http.MethodPost, "/tenants/t1/messages", "tok", map[string]any{
		"external_id": "reply-1",
		"payload":     []byte("hello"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, svc.sent, 1)
	require.Equal(t, id.TenantID("t1"), svc.sent[0].TenantID)
	require.Equal(t, "reply-1", svc.sent[0].ExternalID)
	require.Equal(t, "text/plain", svc.sent[0].ContentType, "content type defaults")
}

func TestSend_MissingPayloadRejected(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc, stubValidator{tenantID: "t1"})

	w := doRequest(router, http.MethodPost, "/tenants/t1/messages", "tok", map[string]any{
		"external_id": "reply-1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, svc.sent)
}

func TestSend_NotConnectedMapsToConflict(t *testing.T) {
	svc := &stubService{sendErr: dErrors.New(dErrors.CodeNotConnected, "session is not connected")}
	router := newTestRouter(svc, stubValidator{tenantID: "t1"})

	w := doRequest(router, http.MethodPost, "/tenants/t1/messages", "tok", map[string]any{
		"payload": []byte("hello"),
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "not_connected", resp["error"])
}

func TestTenantAuth_Enforced(t *testing.T) {
	svc := &stubService{}

	// No token at all.
	router := newTestRouter(svc, stubValidator{tenantID: "t1"})
	w := doRequest(router, http.MethodGet, "/tenants/t1/session", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Invalid token.
	router = newTestRouter(svc, stubValidator{err: errors.New("expired")})
	w = doRequest(router, http.MethodGet, "/tenants/t1/session", "tok", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Token scoped to another tenant.
	router = newTestRouter(svc, stubValidator{tenantID: "t2"})
	w = doRequest(router, http.MethodGet, "/tenants/t1/session", "tok", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminSessions_RequiresAdminToken(t *testing.T) {
	svc := &stubService{
		active:     []id.TenantID{"t1"},
		statusSnap: models.StatusSnapshot{State: models.StateConnected, Since: time.Now()},
	}
	router := newTestRouter(svc, stubValidator{tenantID: "t1"})

	w := doRequest(router, http.MethodGet, "/admin/sessions", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	req.Header.Set("X-Admin-Token", "admin-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []adminSessionView `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	require.Equal(t, "t1", resp.Sessions[0].TenantID)
	require.True(t, resp.Sessions[0].Connected)
}

func TestHealthEndpointsAreOpen(t *testing.T) {
	router := newTestRouter(&stubService{}, stubValidator{tenantID: "t1"})

	w := doRequest(router, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
