package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sseHeartbeat = 15 * time.Second

// ServeSSE streams updates for key until the request ends. initial, when
// non-nil, is written first so a late subscriber starts from current state.
// It returns after the subscriber is removed.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, key SubscriptionKey, initial *ProgressPayload) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	outbound := make(chan ProgressPayload, 1)
	sub := h.Subscribe(key, func(p ProgressPayload) {
		select {
		case outbound <- p:
		case <-ctx.Done():
		}
	})
	if sub == nil {
		return
	}
	defer h.Unsubscribe(sub)

	write := func(p ProgressPayload) bool {
		raw, err := json.Marshal(SSEMessage{Channel: key.String(), Event: SSEEventSessionProgress, Data: p})
		if err != nil {
			h.log.Warn("Failed to marshal SSE message", "error", err)
			return true
		}
		if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", raw); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if initial != nil && !write(*initial) {
		return
	}
	if initial == nil {
		_, _ = fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("SSE client context done", "subscription_id", sub.ID, "err", ctx.Err())
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case p := <-outbound:
			if !write(p) {
				return
			}
		}
	}
}
