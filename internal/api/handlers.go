package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sos-service/internal/alert"
	"sos-service/internal/auth"
	"sos-service/internal/db"
	"sos-service/internal/geo"
	"sos-service/internal/logging"
	"sos-service/internal/models"
	"sos-service/internal/notify"
	"sos-service/internal/realtime"
	"sos-service/internal/recipient"
	"sos-service/internal/session"
)

// AlertService is the submission and admin surface the handlers drive.
type AlertService interface {
	Submit(ctx context.Context, sess *session.Context, req alert.SubmitRequest) (uuid.UUID, error)
	Recent(ctx context.Context, limit int) ([]models.Alert, error)
	Resolve(ctx context.Context, id uuid.UUID) (models.Alert, error)
	Dispatches(ctx context.Context, alertID uuid.UUID) ([]models.Dispatch, error)
}

type Handler struct {
	alerts        AlertService
	sessions      *session.Store
	broker        *realtime.Broker
	mail          notify.Dispatcher
	policy        recipient.Policy
	logger        *logging.Logger
	dashboardSize int
}

// NewHandler wires the handlers. mail backs POST /send-sos and may be nil; policy
// screens the addresses that endpoint is asked to mail.
func NewHandler(alerts AlertService, sessions *session.Store, broker *realtime.Broker, mail notify.Dispatcher, policy recipient.Policy, logger *logging.Logger, dashboardSize int) *Handler {
	if dashboardSize <= 0 {
		dashboardSize = 10
	}
	return &Handler{
		alerts:        alerts,
		sessions:      sessions,
		broker:        broker,
		mail:          mail,
		policy:        policy,
		logger:        logger,
		dashboardSize: dashboardSize,
	}
}

type sessionRequest struct {
	Position *geo.ReportedPosition `json:"position"`
}

type sessionResponse struct {
	*session.Context
	ReporterName string `json:"reporter_name"`
}

func (h *Handler) InitSession(c *gin.Context) {
	user, ok := auth.User(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in to continue"})
		return
	}

	var req sessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Errorf("Invalid session request: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	sc, err := h.sessions.Init(c.Request.Context(), user)
	if err != nil {
		h.logger.Errorf("Session init for %s failed: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
		return
	}
	if req.Position != nil {
		if sc, err = h.sessions.SetLocation(user.ID, geo.Capture(c.Request.Context(), *req.Position)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store location"})
			return
		}
	}
	c.JSON(http.StatusOK, sessionResponse{Context: sc, ReporterName: sc.ReporterName()})
}

func (h *Handler) UpdateLocation(c *gin.Context) {
	user, ok := auth.User(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in to continue"})
		return
	}

	var pos geo.ReportedPosition
	if err := c.ShouldBindJSON(&pos); err != nil {
		h.logger.Errorf("Invalid location report: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.currentSession(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
		return
	}

	snap := geo.Capture(c.Request.Context(), pos)
	if snap.Err != nil {
		h.logger.Infof("Location unavailable for %s: %v", user.ID, snap.Err)
	}
	sc, err := h.sessions.SetLocation(user.ID, snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store location"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"coordinates": sc.Coordinates,
		"warning":     snap.Warning,
	})
}

func (h *Handler) ClearSession(c *gin.Context) {
	if user, ok := auth.User(c); ok {
		h.sessions.Clear(user.ID)
	}
	c.Status(http.StatusNoContent)
}

// currentSession returns the user's session, starting one if the client skipped init.
func (h *Handler) currentSession(ctx context.Context, user models.User) (*session.Context, error) {
	if sc, ok := h.sessions.Get(user.ID); ok {
		return sc, nil
	}
	return h.sessions.Init(ctx, user)
}

func (h *Handler) SubmitAlert(c *gin.Context) {
	var req alert.SubmitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Errorf("Invalid alert request: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Coordinates != nil && !req.Coordinates.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Coordinates out of range"})
		return
	}

	var sess *session.Context
	if user, ok := auth.User(c); ok {
		sc, err := h.currentSession(c.Request.Context(), user)
		if err != nil {
			h.logger.Errorf("Session for %s unavailable: %v", user.ID, err)
		}
		sess = sc
	}

	id, err := h.alerts.Submit(c.Request.Context(), sess, req)
	var dispatchErr *alert.DispatchError
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{
			"id":      id,
			"message": "Emergency alert sent! Help is on the way.",
		})
	case errors.Is(err, alert.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required. Please sign in to send an SOS alert."})
	case errors.Is(err, alert.ErrInvalidRecipient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid recipient email. " + err.Error()})
	case alert.IsRetryable(err):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Your alert could not be recorded. Please try again.",
			"retryable": true,
		})
	case errors.As(err, &dispatchErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"id":    dispatchErr.AlertID,
			"error": "Your alert was recorded but the email notification failed.",
		})
	default:
		h.logger.Errorf("Unexpected submission error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unexpected error"})
	}
}

func (h *Handler) ListAlerts(c *gin.Context) {
	limit := h.dashboardSize
	if c.Query("all") == "true" {
		limit = 0
	} else if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	alerts, err := h.alerts.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Errorf("Get alerts failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}
	h.logger.Debugf("Retrieved %d alerts", len(alerts))
	c.JSON(http.StatusOK, alerts)
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}

	a, err := h.alerts.Resolve(c.Request.Context(), id)
	if errors.Is(err, db.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found or already resolved"})
		return
	}
	if err != nil {
		h.logger.Errorf("Resolve alert %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve alert"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) ListDispatches(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}
	list, err := h.alerts.Dispatches(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Get dispatches for %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch dispatches"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// SendSOS is the notification boundary: one email per call, no retry.
// Callers must be signed in and the recipient must pass the same policy as submissions.
func (h *Handler) SendSOS(c *gin.Context) {
	user, ok := auth.User(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in to continue"})
		return
	}
	if h.mail == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Email delivery is not configured"})
		return
	}

	var p notify.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		h.logger.Errorf("Invalid send-sos request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (p.LocationLat == nil) != (p.LocationLng == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location_lat and location_lng must be sent together"})
		return
	}
	if h.policy != nil {
		if err := h.policy.Check(p.RecipientEmail); err != nil {
			h.logger.Warnf("send-sos from %s refused: %v", user.ID, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid recipient email. " + err.Error()})
			return
		}
	}

	if err := h.mail.Dispatch(c.Request.Context(), p); err != nil {
		h.logger.Errorf("send-sos failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}
