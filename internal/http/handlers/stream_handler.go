// README: Websocket stream pushing one snapshot per tick to renderers.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	streamBuffer = 16
	writeWait    = 5 * time.Second
)

type StreamHandler struct {
	runner   SimRunner
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewStreamHandler(runner SimRunner, log logrus.FieldLogger) *StreamHandler {
	return &StreamHandler{
		runner: runner,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream sends the current snapshot on connect and then every tick until
// the client goes away. Incoming messages are ignored.
func (h *StreamHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.runner.Subscribe(streamBuffer)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !h.send(conn, h.runner.Snapshot()) {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok || !h.send(conn, snap) {
				return
			}
		}
	}
}

func (h *StreamHandler) send(conn *websocket.Conn, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).Warn("encode snapshot failed")
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b) == nil
}
