package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageType определяет типы сообщений
type MessageType string

const (
	// Системные типы
	TypeConnected MessageType = "connected"
	TypePing      MessageType = "ping"
	TypePong      MessageType = "pong"
	TypeError     MessageType = "error"

	// Подписки
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypeSnapshot    MessageType = "snapshot"

	// Комнаты
	TypeRoomSelect   MessageType = "room_select"
	TypeRoomDeselect MessageType = "room_deselect"
	TypeRoomJoin     MessageType = "room_join"
	TypeMembership   MessageType = "membership"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Path      string          `json:"path,omitempty"`
	RoomID    string          `json:"room_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Hub struct {
	clients map[uuid.UUID]*Client

	// Клиенты по UID (один пользователь может иметь несколько соединений)
	userClients map[string]map[uuid.UUID]*Client

	// Каналы для регистрации/отмены регистрации
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub создает новый Hub
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[string]map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Run запускает hub
func (h *Hub) Run() {
	defer close(h.done)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop останавливает hub и закрывает все соединения. Записи на случай
// обрыва выполняются для каждого клиента.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.unregisterClient(client)
	}
}

// Register регистрирует нового клиента
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.close()
	}
}

// Unregister отменяет регистрацию клиента
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	if _, ok := h.userClients[client.Identity.UID]; !ok {
		h.userClients[client.Identity.UID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.Identity.UID][client.ID] = client
	h.mu.Unlock()

	log.Printf("Client registered: %s (User: %s)", client.ID, client.Identity.UID)

	client.SendMessage(TypeConnected, map[string]string{"connection_id": client.ID.String()})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		if userClients, ok := h.userClients[client.Identity.UID]; ok {
			delete(userClients, client.ID)
			if len(userClients) == 0 {
				delete(h.userClients, client.Identity.UID)
			}
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	client.close()

	// Соединение оборвалось: выполняем отложенные записи присутствия.
	if client.Hooks != nil {
		if err := client.Hooks.Fire(context.Background()); err != nil {
			log.Printf("Failed to fire disconnect writes for %s: %v", client.ID, err)
		}
	}

	log.Printf("Client unregistered: %s (User: %s)", client.ID, client.Identity.UID)
}

// Client возвращает соединение по его ID, если оно принадлежит uid.
func (h *Hub) Client(connectionID, uid string) (*Client, bool) {
	id, err := uuid.Parse(connectionID)
	if err != nil {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[id]
	if !ok || client.Identity.UID != uid {
		return nil, false
	}
	return client, true
}

// UserClients возвращает все открытые соединения пользователя
func (h *Hub) UserClients(uid string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.userClients[uid]))
	for _, client := range h.userClients[uid] {
		clients = append(clients, client)
	}
	return clients
}

// SendToUser отправляет сообщение всем соединениям пользователя
func (h *Hub) SendToUser(uid string, msgType MessageType, data interface{}) {
	for _, client := range h.UserClients(uid) {
		if err := client.SendMessage(msgType, data); err != nil {
			log.Printf("Client %s: %v", client.ID, err)
		}
	}
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		client.SendMessage(TypePing, nil)
	}
}
