package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/aiwuxian/abyss-engine/internal/models"
	"github.com/aiwuxian/abyss-engine/internal/services"
)

const (
	clientSendBuffer = 64
	writeTimeout     = 5 * time.Second
)

// serverEnvelope 推送给前端的消息
type serverEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// clientEnvelope 前端发来的消息
type clientEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan serverEnvelope
}

// Hub 把日志和玩家输入请求推送给所有连接的前端
type Hub struct {
	engine *services.Engine
	broker *services.PromptBroker

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func NewHub(engine *services.Engine, broker *services.PromptBroker) *Hub {
	h := &Hub{
		engine:  engine,
		broker:  broker,
		clients: make(map[*streamClient]struct{}),
	}
	engine.OnLog(func(entry models.LogEntry) {
		h.Broadcast(serverEnvelope{Type: "log", Payload: entry})
	})
	if broker != nil {
		broker.Watch(func(p services.Prompt, open bool) {
			typ := "prompt_closed"
			if open {
				typ = "prompt_open"
			}
			h.Broadcast(serverEnvelope{Type: typ, Payload: p})
		})
	}
	return h
}

// Broadcast 非阻塞推送，缓冲区满的客户端会丢消息
func (h *Hub) Broadcast(msg serverEnvelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.trySend(msg)
	}
}

func (h *Hub) addClient(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *Hub) removeClient(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Stream websocket：连接后先推送完整状态和等待中的输入请求，之后推送增量
func (h *Handler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ [推送] websocket 升级失败: %v\n", err)
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan serverEnvelope, clientSendBuffer),
	}
	go client.writeLoop()

	client.trySend(serverEnvelope{Type: "state", Payload: h.engine.Snapshot()})
	for _, p := range h.broker.Pending() {
		client.trySend(serverEnvelope{Type: "prompt_open", Payload: p})
	}
	h.hub.addClient(client)
	defer func() {
		h.hub.removeClient(client)
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope clientEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			continue
		}

		switch envelope.Type {
		case "answer":
			var answer struct {
				PromptID string `json:"prompt_id"`
				Text     string `json:"text"`
			}
			if json.Unmarshal(envelope.Payload, &answer) == nil {
				h.broker.Answer(answer.PromptID, answer.Text)
			}
		case "state":
			h.hub.mu.Lock()
			client.trySend(serverEnvelope{Type: "state", Payload: h.engine.Snapshot()})
			h.hub.mu.Unlock()
		}
	}
}

// trySend 不阻塞，缓冲区满时丢弃
func (c *streamClient) trySend(msg serverEnvelope) {
	select {
	case c.send <- msg:
	default:
		log.Printf("⚠️ [推送] 客户端处理过慢，丢弃 %s 消息\n", msg.Type)
	}
}

func (c *streamClient) writeLoop() {
	// 写失败时关闭连接，读循环随之退出
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
