package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phrazzld/pintask/internal/api/shared"
	"github.com/phrazzld/pintask/internal/domain"
	"github.com/phrazzld/pintask/internal/notify"
	"github.com/phrazzld/pintask/internal/platform/logger"
	"github.com/phrazzld/pintask/internal/scheduler"
)

// Lifecycle is the part of the reconciliation scheduler the app shell drives.
type Lifecycle interface {
	EnterForeground(ctx context.Context) (scheduler.RunResult, error)
	EnterBackground()
	RunOnce(ctx context.Context, trigger string) (scheduler.RunResult, error)
	State() scheduler.State
	HeartbeatActive() bool
}

// Inbox holds what the app shell has not displayed yet.
type Inbox interface {
	DrainNotifications() []notify.Notification
	DrainAlerts() []domain.Alert
}

var (
	_ Lifecycle = (*scheduler.Scheduler)(nil)
	_ Inbox     = (*notify.Inbox)(nil)
)

// AppHandler handles app lifecycle transitions and inbox reads.
type AppHandler struct {
	lifecycle Lifecycle
	inbox     Inbox
	logger    *slog.Logger
}

// NewAppHandler creates a new AppHandler
func NewAppHandler(lifecycle Lifecycle, inbox Inbox, logger *slog.Logger) *AppHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppHandler{
		lifecycle: lifecycle,
		inbox:     inbox,
		logger:    logger.With(slog.String("component", "app_handler")),
	}
}

// Foreground handles POST /api/app/foreground requests. It arms the
// heartbeat and answers with the catch-up run.
func (h *AppHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	run, err := h.lifecycle.EnterForeground(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reconcile tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.state(&run))
}

// Background handles POST /api/app/background requests
func (h *AppHandler) Background(w http.ResponseWriter, r *http.Request) {
	h.lifecycle.EnterBackground()
	logger.FromContextOrDefault(r.Context(), h.logger).Debug("app entered background")
	shared.RespondWithJSON(w, r, http.StatusOK, h.state(nil))
}

// Reconcile handles POST /api/reconcile requests
func (h *AppHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	run, err := h.lifecycle.RunOnce(r.Context(), scheduler.TriggerManual)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reconcile tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, runToResponse(run))
}

// Notifications handles GET /api/notifications requests
func (h *AppHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	notifications := h.inbox.DrainNotifications()
	if notifications == nil {
		notifications = []notify.Notification{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, NotificationListResponse{Notifications: notifications})
}

// Alerts handles GET /api/alerts requests
func (h *AppHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.inbox.DrainAlerts()
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, AlertListResponse{Alerts: alerts})
}

func (h *AppHandler) state(run *scheduler.RunResult) AppStateResponse {
	resp := AppStateResponse{
		State:           string(h.lifecycle.State()),
		HeartbeatActive: h.lifecycle.HeartbeatActive(),
	}
	if run != nil {
		resp.Run = runToResponse(*run)
	}
	return resp
}
