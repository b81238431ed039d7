package chat

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"livechat/pkg/auth"
	"livechat/pkg/metrics"
	"livechat/pkg/response"
)

// SendLimiter is a per-principal token bucket for message sends.
type SendLimiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func NewSendLimiter(rps float64, burst int) *SendLimiter {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 5
	}
	return &SendLimiter{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *SendLimiter) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

func (p *SendLimiter) Allow(key string) bool {
	return p.get(key).Allow()
}

// Middleware must run after auth.RequireRole. A nil limiter lets everything through.
func (p *SendLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p == nil {
			c.Next()
			return
		}
		principal, ok := auth.PrincipalFrom(c)
		if !ok {
			c.Next()
			return
		}
		if !p.Allow(string(principal.Role) + ":" + principal.ID) {
			metrics.SendRateLimited.Inc()
			response.SendError(c, http.StatusTooManyRequests, "too many messages, slow down")
			return
		}
		c.Next()
	}
}
