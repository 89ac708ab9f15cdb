package handler

import (
	"net/http"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/GoPolymarket/frontdoor/internal/poller"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPingPeriod = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The companion API is bound to localhost and guarded by the API key.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Stream pushes poll updates to a websocket until the launch is terminal or
// the client goes away. The current status is sent first.
func (h *FrontdoorHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates := make(chan poller.Update, 16)
	cancel := h.flow.Subscribe(func(u poller.Update) {
		select {
		case updates <- u:
		default:
			logger.Warn("Dropping stream update for slow client", "session_id", u.SessionID)
		}
	})
	defer cancel()

	if ls, err := h.flow.Status(); err == nil {
		snapshot := poller.Update{
			SessionID: ls.SessionID,
			Status:    ls.Status,
			Progress:  ls.Progress,
			Detail:    ls.Detail,
			Error:     ls.Error,
			Terminal:  ls.Status.Terminal(),
		}
		if err := writeUpdate(conn, snapshot); err != nil || snapshot.Terminal {
			return
		}
	}

	// Reads only detect the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case u := <-updates:
			if err := writeUpdate(conn, u); err != nil {
				return
			}
			if u.Terminal {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(u.Status)),
					time.Now().Add(streamWriteWait))
				return
			}
		}
	}
}

func writeUpdate(conn *websocket.Conn, u poller.Update) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(u)
}
