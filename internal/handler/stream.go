package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/handler/respond"
	"github.com/wencestudios/freelancehub/internal/observability/metrics"
)

// Subscriber delivers live notifications for one user until the returned
// close function is called or ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan domain.Notification, func() error, error)
}

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// StreamHandler pushes the caller's notifications over a websocket.
type StreamHandler struct {
	subscriber     Subscriber
	allowedOrigins []string
	logger         *slog.Logger
}

func NewStreamHandler(subscriber Subscriber, allowedOrigins []string, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{subscriber: subscriber, allowedOrigins: allowedOrigins, logger: logger}
}

func (h *StreamHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" || origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/notifications
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before upgrading so a bus failure is still a plain HTTP error.
	feed, unsubscribe, err := h.subscriber.Subscribe(ctx, a.UserID)
	if err != nil {
		respond.Error(w, h.logger, fmt.Errorf("subscribe: %w: %w", domain.ErrStoreUnavailable, err))
		return
	}
	defer func() { _ = unsubscribe() }()

	up := h.upgrader()
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	metrics.StreamConnected()
	defer metrics.StreamDisconnected()
	h.logger.Debug("notification stream opened", slog.String("user_id", a.UserID))

	// The read loop only services pongs and notices the client going away.
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(streamPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteWait))
			return
		case n, ok := <-feed:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := ws.WriteJSON(n); err != nil {
				h.logger.Debug("notification stream write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
