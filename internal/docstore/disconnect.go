package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DisconnectHooks копит записи, которые нужно выполнить, когда
// соединение клиента оборвется. Экземпляр создается на каждое соединение.
type DisconnectHooks struct {
	store Store

	mu     sync.Mutex
	writes map[string]any
}

func NewDisconnectHooks(store Store) *DisconnectHooks {
	return &DisconnectHooks{store: store, writes: make(map[string]any)}
}

// OnDisconnect регистрирует запись value по path. Повторная регистрация
// того же пути заменяет значение.
func (h *DisconnectHooks) OnDisconnect(path string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes[strings.Trim(path, "/")] = value
}

// Cancel отменяет все зарегистрированные записи с данным префиксом.
// Пустой префикс отменяет все.
func (h *DisconnectHooks) Cancel(prefix string) {
	prefix = strings.Trim(prefix, "/")
	h.mu.Lock()
	defer h.mu.Unlock()
	for path := range h.writes {
		if prefix == "" || path == prefix || strings.HasPrefix(path, prefix+"/") {
			delete(h.writes, path)
		}
	}
}

// Pending возвращает число зарегистрированных записей.
func (h *DisconnectHooks) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.writes)
}

// Fire выполняет зарегистрированные записи. Записи группируются по
// родительскому узлу, и каждая группа применяется отдельным
// UpdateIfExists: группа лежит внутри одного документа, а узел,
// удаленный к этому моменту (участник вышел из комнаты), не
// воссоздается частично. Ошибка одной группы не мешает остальным.
func (h *DisconnectHooks) Fire(ctx context.Context) error {
	h.mu.Lock()
	writes := h.writes
	h.writes = make(map[string]any)
	h.mu.Unlock()

	groups := make(map[string]map[string]any)
	for path, value := range writes {
		parent := path
		if i := strings.LastIndexByte(path, '/'); i > 0 {
			parent = path[:i]
		}
		if groups[parent] == nil {
			groups[parent] = make(map[string]any)
		}
		groups[parent][path] = value
	}

	parents := make([]string, 0, len(groups))
	for parent := range groups {
		parents = append(parents, parent)
	}
	sort.Strings(parents)

	var errs []error
	for _, parent := range parents {
		if err := h.store.UpdateIfExists(ctx, parent, groups[parent]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", parent, err))
		}
	}
	return errors.Join(errs...)
}
