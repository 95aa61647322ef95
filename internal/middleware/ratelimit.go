package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/dudaji/dudaji-chat/internal/models"
)

// limiterIdleTTL: минимальное время простоя, после которого лимитер
// клиента удаляется.
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet хранит лимитеры по ключу клиента и периодически удаляет
// те, что простаивали дольше ttl. ttl не меньше времени полного
// восстановления корзины, так что удаление не снимает ограничение
// раньше срока.
type limiterSet struct {
	rps   float64
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func newLimiterSet(rps float64, burst int, now func() time.Time) *limiterSet {
	ttl := limiterIdleTTL
	if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > ttl {
		ttl = refill
	}
	return &limiterSet{
		rps:       rps,
		burst:     burst,
		ttl:       ttl,
		now:       now,
		entries:   make(map[string]*limiterEntry),
		lastSweep: now(),
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.ttl {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) >= s.ttl {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.rps), s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RateLimit ограничивает частоту запросов одного пользователя (или
// адреса, если пользователь не определен).
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newLimiterSet(rps, burst, time.Now)

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id, ok := c.Get(IdentityKey); ok {
			if identity, ok := id.(models.Identity); ok {
				key = "uid:" + identity.UID
			}
		}
		if !limiters.allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
