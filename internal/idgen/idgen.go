package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewPushID возвращает ключ для новой записи в коллекции.
// Ключи монотонно возрастают, поэтому сортировка по ключу совпадает
// с порядком создания внутри одного процесса.
func NewPushID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}
