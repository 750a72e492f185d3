// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/VogueVault/internal/utils"
	"github.com/gorilla/websocket"
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

// WebSocketClient 表示一个会话的一条 WebSocket 连接
type WebSocketClient struct {
	conn      WebSocketConnection
	sessionID string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    int32 // 0=开启，1=关闭
	lastPing  atomic.Int64
	createdAt time.Time
}

// NewWebSocketClient 创建客户端
func NewWebSocketClient(conn WebSocketConnection, sessionID string) *WebSocketClient {
	client := &WebSocketClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 64),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	client.closeOnce.Do(func() {
		atomic.StoreInt32(&client.closed, 1)
		close(client.done)
		if client.conn != nil {
			client.conn.Close()
		}
	})
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后ping时间
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

// SendMessage 安全发送消息到客户端；队列满时丢弃
func (client *WebSocketClient) SendMessage(message map[string]interface{}) error {
	if client.IsClosed() {
		return nil
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	client.enqueue(msgBytes)
	return nil
}

func (client *WebSocketClient) enqueue(msg []byte) bool {
	select {
	case <-client.done:
		return false
	default:
	}
	select {
	case client.send <- msg:
		return true
	default:
		utils.GetLogger().Warn("websocket queue full, message dropped", utils.Fields{"session": client.sessionID})
		return false
	}
}

// SendError 发送错误消息到客户端
func (client *WebSocketClient) SendError(errorMsg string) {
	client.SendMessage(map[string]interface{}{
		"type":      "error",
		"error":     errorMsg,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// WebSocketManager 管理所有 WebSocket 连接
type WebSocketManager struct {
	connections map[string]map[*WebSocketClient]struct{} // sessionID -> clients
	broadcast   chan []byte
	register    chan *WebSocketClient
	unregister  chan *WebSocketClient
	quit        chan struct{}
	stopOnce    sync.Once
	mutex       sync.RWMutex
	pingTimeout time.Duration
	logger      *utils.Logger
}

// NewWebSocketManager 创建并启动管理器
func NewWebSocketManager() *WebSocketManager {
	manager := &WebSocketManager{
		connections: make(map[string]map[*WebSocketClient]struct{}),
		broadcast:   make(chan []byte, 64),
		register:    make(chan *WebSocketClient, 64),
		unregister:  make(chan *WebSocketClient, 64),
		quit:        make(chan struct{}),
		pingTimeout: 90 * time.Second,
		logger:      utils.GetLogger(),
	}
	go manager.run()
	return manager
}

// run 运行 WebSocket 管理器主循环
func (manager *WebSocketManager) run() {
	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case client := <-manager.register:
			manager.registerClient(client)

		case client := <-manager.unregister:
			manager.unregisterClient(client)

		case <-cleanupTicker.C:
			manager.cleanupExpiredConnections()

		case message := <-manager.broadcast:
			manager.broadcastMessage(message)

		case <-manager.quit:
			manager.shutdown()
			return
		}
	}
}

// Register 注册客户端
func (manager *WebSocketManager) Register(client *WebSocketClient) bool {
	select {
	case manager.register <- client:
		return true
	case <-time.After(time.Second):
		manager.logger.Warn("websocket register channel full", utils.Fields{"session": client.sessionID})
		return false
	}
}

// Unregister 注销客户端
func (manager *WebSocketManager) Unregister(client *WebSocketClient) {
	select {
	case manager.unregister <- client:
	case <-time.After(5 * time.Second):
		// 管理器已停止时直接关闭
		client.Close()
	}
}

// Broadcast 向所有连接广播
func (manager *WebSocketManager) Broadcast(message map[string]interface{}) {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		manager.logger.Error("encoding broadcast failed", utils.Fields{"error": err})
		return
	}
	select {
	case manager.broadcast <- msgBytes:
	default:
		manager.logger.Warn("websocket broadcast channel full", nil)
	}
}

// Shutdown 关闭所有连接并停止主循环
func (manager *WebSocketManager) Shutdown() {
	manager.stopOnce.Do(func() { close(manager.quit) })
}

func (manager *WebSocketManager) registerClient(client *WebSocketClient) {
	if client == nil {
		return
	}

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.connections[client.sessionID] == nil {
		manager.connections[client.sessionID] = make(map[*WebSocketClient]struct{})
	}
	manager.connections[client.sessionID][client] = struct{}{}
	client.UpdatePing()

	manager.logger.Info("websocket client connected", utils.Fields{"session": client.sessionID})
}

func (manager *WebSocketManager) unregisterClient(client *WebSocketClient) {
	if client == nil {
		return
	}

	manager.mutex.Lock()
	if clients, exists := manager.connections[client.sessionID]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(manager.connections, client.sessionID)
		}
	}
	manager.mutex.Unlock()

	client.Close()
	manager.logger.Info("websocket client disconnected", utils.Fields{"session": client.sessionID})
}

// cleanupExpiredConnections 清理过期和死连接
func (manager *WebSocketManager) cleanupExpiredConnections() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for sessionID, clients := range manager.connections {
		for client := range clients {
			if client.IsClosed() || client.IsExpired(manager.pingTimeout) {
				delete(clients, client)
				client.Close()
			}
		}
		if len(clients) == 0 {
			delete(manager.connections, sessionID)
		}
	}
}

func (manager *WebSocketManager) clientsOf(sessionID string) []*WebSocketClient {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	var out []*WebSocketClient
	for sid, clients := range manager.connections {
		if sessionID != "" && sid != sessionID {
			continue
		}
		for client := range clients {
			if !client.IsClosed() {
				out = append(out, client)
			}
		}
	}
	return out
}

// broadcastMessage 广播消息
func (manager *WebSocketManager) broadcastMessage(message []byte) {
	for _, client := range manager.clientsOf("") {
		client.enqueue(message)
	}
}

// BroadcastToSession 向指定会话的全部连接发送消息
func (manager *WebSocketManager) BroadcastToSession(sessionID string, message map[string]interface{}) {
	clients := manager.clientsOf(sessionID)
	if len(clients) == 0 {
		return
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		manager.logger.Error("encoding session message failed", utils.Fields{"error": err})
		return
	}
	for _, client := range clients {
		client.enqueue(msgBytes)
	}
}

// shutdown 关闭所有连接
func (manager *WebSocketManager) shutdown() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for _, clients := range manager.connections {
		for client := range clients {
			client.Close()
		}
	}
	manager.connections = make(map[string]map[*WebSocketClient]struct{})
	manager.logger.Info("websocket manager stopped", nil)
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	totalConnections := 0
	for _, clients := range manager.connections {
		for client := range clients {
			if !client.IsClosed() {
				totalConnections++
			}
		}
	}

	return map[string]interface{}{
		"total_sessions":    len(manager.connections),
		"total_connections": totalConnections,
	}
}
