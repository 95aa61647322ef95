package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dudaji/dudaji-chat/internal/docstore"
	"github.com/dudaji/dudaji-chat/internal/models"
)

// ObjectStore принимает загруженные файлы и выдает их публичные URL.
type ObjectStore interface {
	Put(ctx context.Context, path, contentType string, r io.Reader) error
	Delete(ctx context.Context, path string) error
	PublicURL(path string) string
}

// Upload: файл, прикрепляемый к сообщению.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// MessageService отправляет и читает сообщения комнаты.
type MessageService struct {
	store   docstore.Store
	access  *RoomAccessController
	objects ObjectStore

	now      func() time.Time
	attempts int
	backoff  time.Duration
}

type MessageOption func(*MessageService)

func WithMessageClock(now func() time.Time) MessageOption {
	return func(s *MessageService) { s.now = now }
}

// WithUploadRetry задает число попыток загрузки и шаг линейной паузы
// между ними.
func WithUploadRetry(attempts int, backoff time.Duration) MessageOption {
	return func(s *MessageService) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.backoff = backoff
	}
}

func NewMessageService(store docstore.Store, access *RoomAccessController, objects ObjectStore, opts ...MessageOption) *MessageService {
	s := &MessageService{
		store:    store,
		access:   access,
		objects:  objects,
		now:      time.Now,
		attempts: 3,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendText добавляет текстовое сообщение. Писать могут только участники.
func (s *MessageService) SendText(ctx context.Context, roomID string, sender models.Identity, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if err := s.access.RequireMember(ctx, roomID, sender.UID); err != nil {
		return models.Message{}, err
	}
	msg := models.Message{
		Text:      text,
		Sender:    sender.ResolvedName(),
		Timestamp: s.now().UnixMilli(),
		Type:      models.MessageText,
	}
	return s.push(ctx, roomID, msg)
}

// SendFile загружает файл в хранилище объектов по пути
// room-{roomId}/{millis}-{name} и добавляет сообщение со ссылкой.
func (s *MessageService) SendFile(ctx context.Context, roomID string, sender models.Identity, file Upload) (models.Message, error) {
	if err := s.access.RequireMember(ctx, roomID, sender.UID); err != nil {
		return models.Message{}, err
	}
	name := path.Base(strings.ReplaceAll(file.Name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}

	body, err := io.ReadAll(file.Body)
	if err != nil {
		return models.Message{}, fmt.Errorf("read upload: %w", err)
	}

	now := s.now().UnixMilli()
	objectPath := fmt.Sprintf("room-%s/%d-%s", roomID, now, name)
	if err := s.upload(ctx, objectPath, file.ContentType, body); err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		Sender:    sender.ResolvedName(),
		Timestamp: now,
		Type:      models.MessageFile,
		FileURL:   s.objects.PublicURL(objectPath),
		FileName:  name,
		FileType:  file.ContentType,
	}
	saved, err := s.push(ctx, roomID, msg)
	if err != nil {
		// Сообщение не записано: файл без ссылки на него не нужен.
		if delErr := s.objects.Delete(ctx, objectPath); delErr != nil {
			log.Printf("Failed to delete orphaned upload %s: %v", objectPath, delErr)
		}
		return models.Message{}, err
	}
	return saved, nil
}

func (s *MessageService) upload(ctx context.Context, objectPath, contentType string, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		lastErr = s.objects.Put(ctx, objectPath, contentType, bytes.NewReader(body))
		if lastErr == nil {
			return nil
		}
		log.Printf("Upload attempt %d/%d for %s failed: %v", attempt, s.attempts, objectPath, lastErr)
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrUploadFailed, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return fmt.Errorf("%w: %v", ErrUploadFailed, lastErr)
}

func (s *MessageService) push(ctx context.Context, roomID string, msg models.Message) (models.Message, error) {
	parent := messagesPath(roomID)
	id, err := s.store.Push(ctx, parent, msg)
	if err != nil {
		log.Printf("Failed to save message in room %s: %v", roomID, err)
		return models.Message{}, writeErr("send message", parent, err)
	}
	msg.ID = id
	return msg, nil
}

// List возвращает сообщения комнаты по возрастанию timestamp.
func (s *MessageService) List(ctx context.Context, roomID string) ([]models.Message, error) {
	snap, err := s.store.Get(ctx, messagesPath(roomID))
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	messages := make([]models.Message, 0, len(snap.Children()))
	for _, child := range snap.Children() {
		var m models.Message
		if err := child.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", child.Key(), err)
		}
		m.ID = child.Key()
		messages = append(messages, m)
	}
	// Children уже отсортированы по ключу, поэтому при равных
	// timestamp порядок совпадает с порядком добавления.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})
	return messages, nil
}

// Search ищет сообщения по подстроке текста, новые первыми.
func (s *MessageService) Search(ctx context.Context, roomID, query string) ([]models.Message, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []models.Message{}, nil
	}
	messages, err := s.List(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0)
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.Contains(strings.ToLower(messages[i].Text), query) {
			out = append(out, messages[i])
		}
	}
	return out, nil
}
