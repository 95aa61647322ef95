package docstore

import (
	"context"
	"log"
	"sync"
)

type subscription struct {
	path string
	segs []string
	fn   func(Snapshot)

	// mu упорядочивает чтение и доставку: снимок всегда читается уже
	// после предыдущей доставки, поэтому подписчик не получит старое
	// значение после нового.
	mu     sync.Mutex
	closed bool
}

// notifier хранит подписки одного процесса и рассылает им снимки.
type notifier struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*subscription
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[uint64]*subscription)}
}

type readFunc func(ctx context.Context, path string) (Snapshot, error)

func (n *notifier) subscribe(ctx context.Context, path string, fn func(Snapshot), read readFunc) (Unsubscribe, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	sub := &subscription{path: joinPath(segs), segs: segs, fn: fn}

	n.mu.Lock()
	n.next++
	id := n.next
	n.subs[id] = sub
	n.mu.Unlock()

	unsubscribe := func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()

		sub.mu.Lock()
		sub.closed = true
		sub.mu.Unlock()
	}

	if err := n.deliver(ctx, sub, read); err != nil {
		unsubscribe()
		return nil, err
	}
	return unsubscribe, nil
}

// notify доставляет свежие снимки всем подпискам, связанным с
// изменившимися путями.
func (n *notifier) notify(ctx context.Context, changed []string, read readFunc) {
	changedSegs := make([][]string, 0, len(changed))
	for _, p := range changed {
		if segs, err := splitPath(p); err == nil {
			changedSegs = append(changedSegs, segs)
		}
	}

	n.mu.Lock()
	affected := make([]*subscription, 0)
	for _, sub := range n.subs {
		for _, segs := range changedSegs {
			if related(sub.segs, segs) {
				affected = append(affected, sub)
				break
			}
		}
	}
	n.mu.Unlock()

	for _, sub := range affected {
		if err := n.deliver(ctx, sub, read); err != nil {
			log.Printf("docstore: failed to deliver snapshot for %s: %v", sub.path, err)
		}
	}
}

func (n *notifier) deliver(ctx context.Context, sub *subscription, read readFunc) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return nil
	}
	snap, err := read(ctx, sub.path)
	if err != nil {
		return err
	}
	sub.fn(snap)
	return nil
}

func (n *notifier) clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, sub := range n.subs {
		sub.mu.Lock()
		sub.closed = true
		sub.mu.Unlock()
		delete(n.subs, id)
	}
}
