// Package docstore хранит иерархическое дерево документов
// (rooms/{roomId}/members/{uid} и т.д.) с чтением, записью и
// подпиской на изменения по пути.
package docstore

import (
	"context"
	"time"

	"github.com/dudaji/dudaji-chat/internal/idgen"
)

// Store: адресуемое путями дерево документов.
//
// Запись nil удаляет узел. Карты, ставшие пустыми, удаляются вместе с
// ним, поэтому отсутствующий узел и пустая карта неотличимы.
type Store interface {
	// Get читает текущее значение по пути.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set перезаписывает значение по пути.
	Set(ctx context.Context, path string, value any) error

	// Update атомарно применяет несколько записей. Пути не должны
	// быть вложены друг в друга.
	Update(ctx context.Context, updates map[string]any) error

	// UpdateIfExists применяет updates только если узел parent
	// существует. Проверка и запись выполняются атомарно. Все пути
	// должны лежать строго внутри parent, а parent внутри одного
	// документа (не короче двух сегментов).
	UpdateIfExists(ctx context.Context, parent string, updates map[string]any) error

	// Push записывает значение под новым ключом внутри parent и
	// возвращает этот ключ.
	Push(ctx context.Context, parent string, value any) (string, error)

	// Subscribe сразу вызывает fn с текущим снимком, а затем после
	// каждого изменения пути, его предков или потомков.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error)

	Close() error
}

// Unsubscribe отменяет подписку. Повторный вызов ничего не делает.
type Unsubscribe func()

// ServerTimestamp при записи заменяется на время хранилища в
// миллисекундах.
var ServerTimestamp = map[string]any{".sv": "timestamp"}

type storeOptions struct {
	now  func() time.Time
	keys func() string
}

// Option настраивает хранилище.
type Option func(*storeOptions)

// WithClock задает источник времени для ServerTimestamp.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

// WithKeyGenerator задает генератор ключей для Push.
func WithKeyGenerator(keys func() string) Option {
	return func(o *storeOptions) { o.keys = keys }
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{now: time.Now, keys: idgen.NewPushID}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
