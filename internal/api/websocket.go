// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Corphon/HealthScriptMCP/internal/models"
	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

const (
	wsPingInterval = 54 * time.Second
	wsPongWait     = 60 * time.Second
	wsWriteWait    = 10 * time.Second
	wsSendBuffer   = 64
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 一个订阅会话事件的连接
type WebSocketClient struct {
	conn      WebSocketConnection
	sessionID string
	send      chan []byte
	closed    int32 // 0=开启，1=关闭
	lastPing  atomic.Int64
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection, sessionID string) *WebSocketClient {
	client := &WebSocketClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, wsSendBuffer),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后活跃时间
func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// SendMessage 非阻塞发送，队列满时丢弃
func (client *WebSocketClient) SendMessage(message interface{}) bool {
	if client.IsClosed() {
		return false
	}
	data, err := json.Marshal(message)
	if err != nil {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

// WebSocketManager 按会话管理连接，并把会话事件推送给订阅者
type WebSocketManager struct {
	connections map[string]map[*WebSocketClient]struct{} // sessionID -> clients
	mutex       sync.RWMutex
	pingTimeout time.Duration
	logger      *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWebSocketManager 创建管理器并启动过期连接清理
func NewWebSocketManager() *WebSocketManager {
	manager := &WebSocketManager{
		connections: make(map[string]map[*WebSocketClient]struct{}),
		pingTimeout: wsPongWait * 2,
		logger:      utils.GetLogger().Named("websocket"),
		stop:        make(chan struct{}),
	}
	go manager.run()
	return manager
}

func (manager *WebSocketManager) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			manager.cleanupExpiredConnections()
		case <-manager.stop:
			manager.shutdown()
			return
		}
	}
}

// Register 注册客户端
func (manager *WebSocketManager) Register(client *WebSocketClient) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.connections[client.sessionID] == nil {
		manager.connections[client.sessionID] = make(map[*WebSocketClient]struct{})
	}
	manager.connections[client.sessionID][client] = struct{}{}
	manager.logger.Debug("WebSocket 客户端已连接", zap.String("session_id", client.sessionID))
}

// Unregister 注销并关闭客户端
func (manager *WebSocketManager) Unregister(client *WebSocketClient) {
	manager.mutex.Lock()
	if clients, exists := manager.connections[client.sessionID]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(manager.connections, client.sessionID)
		}
	}
	manager.mutex.Unlock()

	client.Close()
	manager.logger.Debug("WebSocket 客户端已断开", zap.String("session_id", client.sessionID))
}

// cleanupExpiredConnections 清理过期和已关闭的连接
func (manager *WebSocketManager) cleanupExpiredConnections() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	removed := 0
	for sessionID, clients := range manager.connections {
		for client := range clients {
			if client.IsClosed() || client.IsExpired(manager.pingTimeout) {
				delete(clients, client)
				client.Close()
				removed++
			}
		}
		if len(clients) == 0 {
			delete(manager.connections, sessionID)
		}
	}
	return removed
}

// Publish 实现 services.EventPublisher
func (manager *WebSocketManager) Publish(event models.SessionEvent) {
	manager.BroadcastToSession(event.SessionID, event)
}

// BroadcastToSession 向会话的所有连接广播消息
func (manager *WebSocketManager) BroadcastToSession(sessionID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		manager.logger.Error("序列化广播消息失败", zap.Error(err))
		return
	}

	manager.mutex.RLock()
	clients := make([]*WebSocketClient, 0, len(manager.connections[sessionID]))
	for client := range manager.connections[sessionID] {
		if !client.IsClosed() {
			clients = append(clients, client)
		}
	}
	manager.mutex.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// 队列满说明客户端已失去响应
			manager.logger.Warn("WebSocket 客户端消息队列已满，断开连接", zap.String("session_id", sessionID))
			go manager.Unregister(client)
		}
	}
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	sessions := make(map[string]int, len(manager.connections))
	total := 0
	for sessionID, clients := range manager.connections {
		active := 0
		for client := range clients {
			if !client.IsClosed() {
				active++
			}
		}
		sessions[sessionID] = active
		total += active
	}

	return map[string]interface{}{
		"total_sessions":       len(manager.connections),
		"total_connections":    total,
		"sessions":             sessions,
		"ping_timeout_seconds": int(manager.pingTimeout.Seconds()),
	}
}

// Stop 关闭所有连接并停止清理
func (manager *WebSocketManager) Stop() {
	manager.stopOnce.Do(func() {
		close(manager.stop)
	})
}

func (manager *WebSocketManager) shutdown() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for _, clients := range manager.connections {
		for client := range clients {
			client.Close()
		}
	}
	manager.connections = make(map[string]map[*WebSocketClient]struct{})
	manager.logger.Info("WebSocket 管理器已关闭")
}
