package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"linkhub/internal/linking/models"
	"linkhub/internal/linking/service"
	"linkhub/internal/platform/middleware"
	id "linkhub/pkg/domain"
	"linkhub/pkg/platform/httputil"
)

// SessionService is the slice of the linking service the HTTP layer uses.
type SessionService interface {
	Connect(ctx context.Context, tenantID string) (service.ConnectOutcome, error)
	Disconnect(ctx context.Context, tenantID string, logout bool) error
	Status(ctx context.Context, tenantID string) (models.StatusSnapshot, error)
	Send(ctx context.Context, msg models.OutboundMessage) error
	ListActive(ctx context.Context) []id.TenantID
}

// Handler is the thin HTTP layer over the session service. It decodes,
// delegates, and encodes; session semantics stay out of here.
type Handler struct {
	sessions SessionService
	logger   *slog.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(sessions SessionService, logger *slog.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logger}
}

type connectResponse struct {
	Status string `json:"status"`
	QR     string `json:"qr,omitempty"`
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	out, err := h.sessions.Connect(r.Context(), tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, connectResponse{Status: out.Status, QR: out.QR})
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantID")

	// The body is optional; absence means a plain disconnect.
	var logout bool
	if r.ContentLength != 0 {
		req, ok := httputil.DecodeJSON[disconnectRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
		if !ok {
			return
		}
		logout = req.Logout
	}

	if err := h.sessions.Disconnect(ctx, tenantID, logout); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	State     string    `json:"state"`
	Connected bool      `json:"connected"`
	QR        string    `json:"qr,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	snap, err := h.sessions.Status(r.Context(), tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{
		State:     snap.State.String(),
		Connected: snap.Connected(),
		QR:        snap.QR,
		LastError: snap.LastError,
		Since:     snap.Since,
	})
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndValidate[sendRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	msg := models.OutboundMessage{
		TenantID:    tenantID,
		ExternalID:  req.ExternalID,
		Direction:   models.DirectionOutbound,
		ContentType: req.ContentType,
		Payload:     req.Payload,
		Timestamp:   time.Now(),
	}
	if err := h.sessions.Send(ctx, msg); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type adminSessionView struct {
	TenantID  string    `json:"tenant_id"`
	State     string    `json:"state"`
	Connected bool      `json:"connected"`
	Since     time.Time `json:"since"`
}

func (h *Handler) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenants := h.sessions.ListActive(ctx)
	sessions := make([]adminSessionView, 0, len(tenants))
	for _, tenantID := range tenants {
		snap, err := h.sessions.Status(ctx, tenantID.String())
		if err != nil {
			// The supervisor may have been evicted mid-listing.
			continue
		}
		sessions = append(sessions, adminSessionView{
			TenantID:  tenantID.String(),
			State:     snap.State.String(),
			Connected: snap.Connected(),
			Since:     snap.Since,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
