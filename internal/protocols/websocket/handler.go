package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"classhub/internal/core"
	"classhub/internal/realtime"
	"classhub/pkg/models"
)

// Handler upgrades authenticated HTTP requests to WebSocket connections
// and runs the per-connection read loop.
type Handler struct {
	dispatcher *Dispatcher
	authSvc    core.AuthService
	rooms      *realtime.RoomRegistry

	allowedOrigins []string
	ratePerSecond  float64
	rateBurst      int

	metrics struct {
		sync.Mutex
		totalConnections  uint64
		activeConnections int
	}
}

// NewHandler creates the WebSocket entry point.
func NewHandler(
	dispatcher *Dispatcher,
	authSvc core.AuthService,
	rooms *realtime.RoomRegistry,
	allowedOrigins []string,
	ratePerSecond float64,
	rateBurst int,
) *Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 20
	}
	if rateBurst <= 0 {
		rateBurst = 40
	}
	return &Handler{
		dispatcher:     dispatcher,
		authSvc:        authSvc,
		rooms:          rooms,
		allowedOrigins: allowedOrigins,
		ratePerSecond:  ratePerSecond,
		rateBurst:      rateBurst,
	}
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		EnableCompression: true,
		CheckOrigin:       h.checkOrigin,
	}
}

// HandleWebSocket authenticates the request and hands the upgraded
// connection to the dispatcher loop.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token, err := extractToken(c)
	if err != nil {
		appErr := models.NewHTTPError(models.ErrCodeUnauthorized, "authentication required", http.StatusUnauthorized, err)
		c.JSON(appErr.StatusCode, appErr)
		return
	}

	user, err := h.authSvc.ValidateToken(c.Request.Context(), token)
	if err != nil {
		appErr := models.NewHTTPError(models.ErrCodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
		c.JSON(appErr.StatusCode, appErr)
		return
	}

	upgrader := h.upgrader()
	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// gorilla writes its own HTTP response on upgrade failure.
		logrus.Errorf("websocket upgrade failed for %s: %v", user.Email, err)
		return
	}

	h.trackConnection(1)
	logrus.Infof("websocket connected: %s", user.Email)

	socket := newSocket(wsConn)
	go socket.writePump()
	go h.readLoop(socket, user)
}

// readLoop pulls frames off the connection and dispatches them
// sequentially. A closed or misbehaving connection always ends in a
// disconnect dispatch so room and instance state stays consistent.
func (h *Handler) readLoop(socket *wsSocket, user *models.User) {
	conn := h.dispatcher.newConn(socket, user)
	limiter := rate.NewLimiter(rate.Limit(h.ratePerSecond), h.rateBurst)
	rateViolations := 0

	defer func() {
		h.dispatcher.Disconnect(conn)
		socket.Close()
		h.trackConnection(-1)
		logrus.Infof("websocket disconnected: %s", user.Email)
	}()

	socket.conn.SetReadLimit(maxMessageSize)
	socket.conn.SetReadDeadline(time.Now().Add(pongWait))
	socket.conn.SetPongHandler(func(string) error {
		socket.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, data, err := socket.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logrus.Warnf("websocket read error for %s: %v", user.Email, err)
			}
			return
		}

		if !limiter.Allow() {
			rateViolations++
			if rateViolations >= maxRateViolations {
				logrus.Warnf("websocket closing %s: sustained rate-limit abuse", user.Email)
				socket.closeWithError(models.NewWebSocketError(0, models.ErrCodeRateLimited, "rate limit exceeded", nil))
				return
			}
			conn.sendError(models.ErrCodeRateLimited, "too many messages, slow down")
			continue
		}
		rateViolations = 0

		var frame envelope
		if err := json.Unmarshal(data, &frame); err != nil {
			conn.sendError(models.ErrCodeBadRequest, "malformed frame: "+err.Error())
			continue
		}
		h.dispatcher.Handle(ctx, conn, frame)
	}
}

// GetRoomStatus reports one room's presence and chat summary.
func (h *Handler) GetRoomStatus(c *gin.Context) {
	namespace := c.Param("namespace")
	lesson := c.Param("lesson")
	if namespace == "" || lesson == "" {
		appErr := models.NewHTTPError(models.ErrCodeValidation, "namespace and lesson parameters are required", http.StatusBadRequest, nil)
		c.JSON(appErr.StatusCode, appErr)
		return
	}

	name := models.RoomName(namespace, lesson)
	room, ok := h.rooms.Lookup(name)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"room":   name,
			"active": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":            name,
		"active":          true,
		"member_count":    room.MemberCount(),
		"owner_count":     room.OwnerCount(),
		"members":         room.Roster(),
		"chat_statistics": room.ChatStatistics(),
		"started_at":      room.StartTime().UTC(),
	})
}

// GetGlobalStatus reports process-wide realtime metrics.
func (h *Handler) GetGlobalStatus(c *gin.Context) {
	h.metrics.Lock()
	total := h.metrics.totalConnections
	active := h.metrics.activeConnections
	h.metrics.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"total_connections":  total,
		"active_connections": active,
		"active_rooms":       h.rooms.Count(),
		"rooms":              h.rooms.Names(),
		"server_time":        time.Now().UTC(),
	})
}

func (h *Handler) trackConnection(delta int) {
	h.metrics.Lock()
	defer h.metrics.Unlock()
	if delta > 0 {
		h.metrics.totalConnections++
	}
	h.metrics.activeConnections += delta
	if h.metrics.activeConnections < 0 {
		h.metrics.activeConnections = 0
	}
}

// extractToken pulls the bearer token from query, header or cookie.
func extractToken(c *gin.Context) (string, error) {
	if token := c.Query("token"); token != "" {
		return token, nil
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1], nil
		}
	}

	cookie, err := c.Request.Cookie("token")
	if err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", models.ErrUnauthorized
}

// checkOrigin validates the request origin against the configured list.
// Non-browser clients omit Origin and are allowed.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if u, err := url.Parse(origin); err == nil {
		host := strings.ToLower(u.Hostname())
		if host == "localhost" || host == "127.0.0.1" {
			return true
		}
	}

	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
