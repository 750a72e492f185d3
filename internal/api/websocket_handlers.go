// internal/api/websocket_handlers.go
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Corphon/VogueVault/internal/services"
	"github.com/Corphon/VogueVault/internal/state"
	"github.com/Corphon/VogueVault/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 54 * time.Second
)

// WebSocketHandler 处理会话状态推送
type WebSocketHandler struct {
	screens *services.ScreenService
	manager *WebSocketManager
	logger  *utils.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(screens *services.ScreenService, manager *WebSocketManager) *WebSocketHandler {
	return &WebSocketHandler{
		screens: screens,
		manager: manager,
		logger:  utils.GetLogger(),
	}
}

// stateMessage 共享状态快照加屏幕局部状态
func stateMessage(snap state.Snapshot, sess *services.Session) map[string]interface{} {
	return map[string]interface{}{
		"type":      "state",
		"version":   snap.Version,
		"title":     snap.State.View.Title(),
		"state":     snap.State,
		"screens":   sess.Screens.View(),
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

// screensMessage 屏幕局部状态变化
func screensMessage(sess *services.Session) map[string]interface{} {
	return map[string]interface{}{
		"type":      "screens",
		"screens":   sess.Screens.View(),
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

// SessionWebSocket 推送会话状态：连接时发送完整快照，之后每次变化推送最新快照
func (wh *WebSocketHandler) SessionWebSocket(c *gin.Context) {
	sess := sessionFrom(c)
	if sess == nil {
		NewResponseHelper().NotFound(c, "session")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wh.logger.Warn("websocket upgrade failed", utils.Fields{"error": err})
		return
	}

	client := NewWebSocketClient(conn, sess.ID)
	if !wh.manager.Register(client) {
		client.Close()
		return
	}

	snapshots, cancel := sess.Store.Subscribe()
	defer func() {
		cancel()
		wh.manager.Unregister(client)
	}()

	client.SendMessage(stateMessage(sess.Store.Snapshot(), sess))

	go wh.handleWebSocketWrites(client)
	go wh.forwardSnapshots(client, sess, snapshots)

	wh.handleWebSocketReads(client, sess)
}

// forwardSnapshots 把 Store 的变化转发给客户端
func (wh *WebSocketHandler) forwardSnapshots(client *WebSocketClient, sess *services.Session, snapshots <-chan state.Snapshot) {
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			client.SendMessage(stateMessage(snap, sess))
		case <-client.done:
			return
		}
	}
}

// handleWebSocketReads 处理 WebSocket 读取，直到连接关闭
func (wh *WebSocketHandler) handleWebSocketReads(client *WebSocketClient, sess *services.Session) {
	client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for !client.IsClosed() {
		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wh.logger.Warn("websocket read failed", utils.Fields{"session": client.sessionID, "error": err})
			}
			return
		}
		client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		client.UpdatePing()

		var message map[string]interface{}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			client.SendError("invalid message")
			continue
		}
		wh.handleMessage(client, sess, message)
	}
}

// handleWebSocketWrites 处理 WebSocket 写入和心跳
func (wh *WebSocketHandler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				wh.logger.Debug("websocket write failed", utils.Fields{"session": client.sessionID, "error": err})
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.done:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleMessage 处理收到的 WebSocket 消息
func (wh *WebSocketHandler) handleMessage(client *WebSocketClient, sess *services.Session, message map[string]interface{}) {
	msgType, _ := message["type"].(string)

	switch msgType {
	case "ping":
		client.SendMessage(map[string]interface{}{
			"type":      "pong",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	case "sync":
		client.SendMessage(stateMessage(sess.Store.Snapshot(), sess))
	case "navigate":
		view, _ := message["view"].(string)
		// 成功时 Store 的订阅会推送新快照
		if _, err := wh.screens.Navigate(context.Background(), sess, view); err != nil {
			client.SendError(err.Error())
		}
	default:
		client.SendError("unknown message type: " + msgType)
	}
}
