package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// hotSwap serves through a handler chain around next that a reload loop
// rebuilds in place. Until the first successful build it serves next directly.
type hotSwap struct {
	next     http.Handler
	interval time.Duration
	current  atomic.Pointer[http.Handler]
}

// attach returns a middleware that captures next and runs an initial reload.
func (h *hotSwap) attach(reload func(context.Context)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h.next = next
		reload(context.Background())
		return h
	}
}

// poll reruns reload every interval until ctx is cancelled. A non-positive
// interval disables polling.
func (h *hotSwap) poll(ctx context.Context, reload func(context.Context)) {
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reload(ctx)
		}
	}
}

func (h *hotSwap) install(handler http.Handler) {
	h.current.Store(&handler)
}

// ServeHTTP implements http.Handler.
func (h *hotSwap) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if cur := h.current.Load(); cur != nil {
		(*cur).ServeHTTP(w, r)
		return
	}
	if h.next != nil {
		h.next.ServeHTTP(w, r)
	}
}
