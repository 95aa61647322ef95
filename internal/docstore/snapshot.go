package docstore

import (
	"encoding/json"
	"sort"
	"strings"
)

// Snapshot: неизменяемое значение узла на момент чтения.
type Snapshot struct {
	path  string
	value any
}

// NewSnapshot создает снимок из уже нормализованного значения.
func NewSnapshot(path string, value any) Snapshot {
	return Snapshot{path: strings.Trim(path, "/"), value: value}
}

func (s Snapshot) Path() string { return s.path }

// Key возвращает последний сегмент пути.
func (s Snapshot) Key() string {
	if i := strings.LastIndexByte(s.path, '/'); i >= 0 {
		return s.path[i+1:]
	}
	return s.path
}

func (s Snapshot) Exists() bool { return s.value != nil }

// Value возвращает дерево значения. Результат нельзя изменять.
func (s Snapshot) Value() any { return s.value }

// Decode раскладывает значение в v через JSON.
func (s Snapshot) Decode(v any) error {
	b, err := json.Marshal(s.value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Child возвращает снимок вложенного узла по относительному пути.
func (s Snapshot) Child(rel string) Snapshot {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return s
	}
	value, _ := getAt(s.value, strings.Split(rel, "/"))
	return Snapshot{path: s.path + "/" + rel, value: value}
}

// Children возвращает дочерние узлы, отсортированные по ключу.
func (s Snapshot) Children() []Snapshot {
	m, ok := s.value.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Snapshot, len(keys))
	for i, k := range keys {
		out[i] = Snapshot{path: s.path + "/" + k, value: m[k]}
	}
	return out
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value)
}
