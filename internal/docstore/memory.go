package docstore

import (
	"context"
	"sync"
)

// MemoryStore держит дерево в памяти процесса. Используется в тестах
// и для локального запуска без Redis и MongoDB.
type MemoryStore struct {
	mu     sync.RWMutex
	root   any
	closed bool

	opts storeOptions
	subs *notifier
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{opts: buildOptions(opts), subs: newNotifier()}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	value, _ := getAt(s.root, segs)
	return NewSnapshot(path, value), nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, map[string]any{path: value})
}

func (s *MemoryStore) Update(ctx context.Context, updates map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	writes, err := prepareUpdates(updates, s.opts.now().UnixMilli())
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	root := s.root
	for _, w := range writes {
		root = setAt(root, w.segs, w.value)
	}
	s.root = root
	s.mu.Unlock()

	s.subs.notify(ctx, changedPaths(writes), s.Get)
	return nil
}

func (s *MemoryStore) UpdateIfExists(ctx context.Context, parent string, updates map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parentSegs, writes, err := prepareScopedUpdates(parent, updates, s.opts.now().UnixMilli())
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := getAt(s.root, parentSegs); !ok {
		s.mu.Unlock()
		return nil
	}
	root := s.root
	for _, w := range writes {
		root = setAt(root, w.segs, w.value)
	}
	s.root = root
	s.mu.Unlock()

	s.subs.notify(ctx, changedPaths(writes), s.Get)
	return nil
}

func (s *MemoryStore) Push(ctx context.Context, parent string, value any) (string, error) {
	segs, err := splitPath(parent)
	if err != nil {
		return "", err
	}
	key := s.opts.keys()
	if err := s.Set(ctx, joinPath(append(segs, key)), value); err != nil {
		return "", err
	}
	return key, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error) {
	return s.subs.subscribe(ctx, path, fn, s.Get)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.subs.clear()
	return nil
}
