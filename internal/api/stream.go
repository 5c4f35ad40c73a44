package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sos-service/internal/models"
	"sos-service/internal/realtime"
)

const (
	frameSnapshot     = "snapshot"
	frameAlertCreated = "alert_created"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type streamFrame struct {
	Type   string         `json:"type"`
	Alerts []models.Alert `json:"alerts,omitempty"`
	Alert  *models.Alert  `json:"alert,omitempty"`
}

// StreamAlerts pushes the current list and then every new alert over a WebSocket.
// view=reports streams the full history instead of the dashboard window.
func (h *Handler) StreamAlerts(c *gin.Context) {
	limit := h.dashboardSize
	if c.Query("view") == "reports" {
		limit = 0
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	viewer, err := realtime.OpenViewer(ctx, h.broker, realtime.LoaderFunc(h.alerts.Recent), limit)
	if err != nil {
		h.logger.Errorf("Open viewer failed: %v", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "failed to load alerts"),
			time.Now().Add(writeWait))
		return
	}
	defer viewer.Close()

	if err := writeFrame(conn, streamFrame{Type: frameSnapshot, Alerts: viewer.Items()}); err != nil {
		return
	}

	// The read loop only exists to notice the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-viewer.Events():
			if !ok {
				h.logger.Warnf("Viewer subscription closed by broker")
				return
			}
			if !viewer.Apply(a) {
				continue
			}
			if err := writeFrame(conn, streamFrame{Type: frameAlertCreated, Alert: &a}); err != nil {
				h.logger.Debugf("WebSocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f streamFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
