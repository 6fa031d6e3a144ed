package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig controls the per-client fixed window limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

type rateWindow struct {
	start time.Time
	count int
}

// RateLimit returns a middleware limiting each client IP to cfg.Max requests
// per cfg.Window. Stale windows are evicted by a background goroutine bound
// to ctx.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	var (
		mu      sync.Mutex
		clients = make(map[string]*rateWindow)
	)

	go func() {
		ticker := time.NewTicker(cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				mu.Lock()
				for ip, w := range clients {
					if now.Sub(w.start) > cfg.Window {
						delete(clients, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			now := time.Now()
			mu.Lock()
			win, ok := clients[ip]
			if !ok || now.Sub(win.start) > cfg.Window {
				win = &rateWindow{start: now}
				clients[ip] = win
			}
			win.count++
			over := win.count > cfg.Max
			mu.Unlock()

			if over {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
