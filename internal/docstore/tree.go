package docstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// splitPath разбирает путь "rooms/abc/members" на сегменты.
func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if !validKey(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// splitWritePath дополнительно требует глубину не меньше двух:
// запись целой коллекции не поддерживается.
func splitWritePath(path string) ([]string, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrPathTooShallow, path)
	}
	return segs, nil
}

func joinPath(segs []string) string {
	return strings.Join(segs, "/")
}

func validKey(k string) bool {
	return k != "" && !strings.ContainsAny(k, ".$#[]/")
}

// related сообщает, является ли один путь префиксом другого.
func related(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// prepareValue приводит значение к JSON-дереву (map[string]any, []any,
// float64, string, bool), подставляет ServerTimestamp и убирает пустые
// карты.
func prepareValue(v any, nowMillis int64) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	tree = resolveSentinels(tree, nowMillis)
	if err := validateKeys(tree); err != nil {
		return nil, err
	}
	return prune(tree), nil
}

func isServerTimestamp(m map[string]any) bool {
	if len(m) != 1 {
		return false
	}
	sv, ok := m[".sv"].(string)
	return ok && sv == "timestamp"
}

func resolveSentinels(v any, nowMillis int64) any {
	switch t := v.(type) {
	case map[string]any:
		if isServerTimestamp(t) {
			return float64(nowMillis)
		}
		for k, child := range t {
			t[k] = resolveSentinels(child, nowMillis)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = resolveSentinels(child, nowMillis)
		}
		return t
	default:
		return v
	}
}

func validateKeys(v any) error {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if !validKey(k) {
				return fmt.Errorf("%w: %q", ErrInvalidKey, k)
			}
			if err := validateKeys(child); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := validateKeys(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// prune удаляет nil-значения и пустые карты. Пустая карта на верхнем
// уровне превращается в nil.
func prune(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		if p := prune(child); p == nil {
			delete(m, k)
		} else {
			m[k] = p
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// getAt спускается по сегментам. Второй результат false, если узла нет.
func getAt(node any, segs []string) (any, bool) {
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[s]
		if !ok {
			return nil, false
		}
	}
	return node, node != nil
}

// setAt возвращает новое дерево с value по пути segs. Карты вдоль пути
// копируются, остальные поддеревья разделяются со старым деревом, так
// что ранее выданные снимки не меняются.
func setAt(node any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}
	old, isMap := node.(map[string]any)
	if value == nil {
		// Удаление отсутствующего узла ничего не меняет, в том числе
		// под листом.
		if _, ok := old[segs[0]]; !isMap || !ok {
			return node
		}
	}
	next := make(map[string]any, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	child := setAt(old[segs[0]], segs[1:], value)
	if child == nil {
		delete(next, segs[0])
	} else {
		next[segs[0]] = child
	}
	if len(next) == 0 {
		return nil
	}
	return next
}

// preparedWrite: проверенная запись из Update.
type preparedWrite struct {
	path  string
	segs  []string
	value any
}

func prepareUpdates(updates map[string]any, nowMillis int64) ([]preparedWrite, error) {
	writes := make([]preparedWrite, 0, len(updates))
	for path, v := range updates {
		segs, err := splitWritePath(path)
		if err != nil {
			return nil, err
		}
		value, err := prepareValue(v, nowMillis)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		writes = append(writes, preparedWrite{path: joinPath(segs), segs: segs, value: value})
	}
	for i := range writes {
		for j := i + 1; j < len(writes); j++ {
			if related(writes[i].segs, writes[j].segs) {
				return nil, fmt.Errorf("%w: %q and %q", ErrOverlappingPaths, writes[i].path, writes[j].path)
			}
		}
	}
	return writes, nil
}

func changedPaths(writes []preparedWrite) []string {
	paths := make([]string, len(writes))
	for i, w := range writes {
		paths[i] = w.path
	}
	return paths
}

// prepareScopedUpdates проверяет, что все записи лежат строго внутри
// parent, и возвращает сегменты parent.
func prepareScopedUpdates(parent string, updates map[string]any, nowMillis int64) ([]string, []preparedWrite, error) {
	parentSegs, err := splitWritePath(parent)
	if err != nil {
		return nil, nil, err
	}
	writes, err := prepareUpdates(updates, nowMillis)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range writes {
		if len(w.segs) <= len(parentSegs) || !related(parentSegs, w.segs) {
			return nil, nil, fmt.Errorf("%w: %q is not inside %q", ErrOutsideParent, w.path, parent)
		}
	}
	return parentSegs, writes, nil
}
