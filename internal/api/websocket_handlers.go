// internal/api/websocket_handlers.go
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionWebSocket 订阅会话事件：阶段变化、版本保存、分析完成等
func (h *Handler) SessionWebSocket(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket 升级失败", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}

	client := newWebSocketClient(conn, sess.ID)
	h.WS.Register(client)
	defer h.WS.Unregister(client)

	go h.writePump(client)

	client.SendMessage(gin.H{
		"type":       "connected",
		"session_id": sess.ID,
		"stage":      sess.Stage(),
		"timestamp":  time.Now(),
	})

	h.readPump(client)
}

// readPump 只处理心跳，读失败即断开
func (h *Handler) readPump(client *WebSocketClient) {
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket 读取结束", zap.String("session_id", client.sessionID), zap.Error(err))
			}
			return
		}
		client.UpdatePing()
		if string(data) == "ping" {
			client.SendMessage(gin.H{"type": "pong", "timestamp": time.Now()})
		}
	}
}

// writePump 串行写出队列中的消息并定期发送 ping
func (h *Handler) writePump(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok || client.IsClosed() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if client.IsClosed() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetWebSocketStatus 连接统计
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.Response.Success(c, h.WS.GetStatus())
}
