package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dudaji/dudaji-chat/internal/docstore"
	"github.com/dudaji/dudaji-chat/internal/models"
)

const (
	// Время ожидания записи
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	// Интервал отправки ping
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер сообщения
	maxMessageSize = 64 * 1024
)

type ClientMessageHandler interface {
	HandleMessage(client *Client, msg *Message) error
}

type Client struct {
	ID       uuid.UUID
	Identity models.Identity
	Conn     *websocket.Conn
	Hub      *Hub

	// Hooks выполняются хабом, когда соединение закрывается.
	Hooks *docstore.DisconnectHooks

	send chan []byte

	mu     sync.Mutex
	closed bool
	subs   map[string]docstore.Unsubscribe
}

func NewClient(hub *Hub, conn *websocket.Conn, identity models.Identity, hooks *docstore.DisconnectHooks) *Client {
	return &Client{
		ID:       uuid.New(),
		Identity: identity,
		Conn:     conn,
		Hub:      hub,
		Hooks:    hooks,
		send:     make(chan []byte, 256),
		subs:     make(map[string]docstore.Unsubscribe),
	}
}

// ReadPump читает сообщения от клиента
func (c *Client) ReadPump(handler ClientMessageHandler) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.Conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if msg.Type == TypePong {
			c.Conn.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}

		if handler != nil {
			if err := handler.HandleMessage(c, &msg); err != nil {
				log.Printf("Error handling message: %v", err)
				c.SendError(msg.Type, err.Error())
			}
		}
	}
}

// WritePump отправляет сообщения клиенту
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendMessage(msgType MessageType, data interface{}) error {
	return c.enqueue(Message{Type: msgType}, data)
}

// SendSnapshot отправляет текущее значение пути подписки.
func (c *Client) SendSnapshot(snap docstore.Snapshot) error {
	return c.enqueue(Message{Type: TypeSnapshot, Path: snap.Path()}, snap)
}

func (c *Client) enqueue(msg Message, data interface{}) error {
	msg.Timestamp = time.Now()
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = jsonData
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- msgData:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) SendError(cause MessageType, errorMsg string) {
	c.SendMessage(TypeError, map[string]string{
		"command": string(cause),
		"error":   errorMsg,
	})
}

// AddSubscription запоминает подписку по пути. Прежняя подписка на тот
// же путь отменяется.
func (c *Client) AddSubscription(path string, unsub docstore.Unsubscribe) {
	c.mu.Lock()
	prev := c.subs[path]
	closed := c.closed
	if !closed {
		c.subs[path] = unsub
	}
	c.mu.Unlock()

	if prev != nil {
		prev()
	}
	if closed {
		unsub()
	}
}

func (c *Client) RemoveSubscription(path string) bool {
	c.mu.Lock()
	unsub, ok := c.subs[path]
	delete(c.subs, path)
	c.mu.Unlock()

	if ok {
		unsub()
	}
	return ok
}

func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.subs))
	for p := range c.subs {
		paths = append(paths, p)
	}
	return paths
}

// close отменяет подписки и закрывает очередь отправки.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[string]docstore.Unsubscribe)
	close(c.send)
	c.mu.Unlock()

	for _, unsub := range subs {
		unsub()
	}
}
