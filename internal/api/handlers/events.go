package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/httputil"
	"github.com/Fantasim/paysync/internal/poller"
)

// eventInvoiceState is sent once per tracked invoice when a client connects,
// so it can render the current state before the next change.
const eventInvoiceState = "invoice_state"

// EventsHandler returns a handler for GET /api/track/events (SSE).
func EventsHandler(hub *poller.Hub, tracker *poller.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			slog.Error("SSE not supported: response writer does not implement http.Flusher")
			httputil.Error(w, http.StatusInternalServerError, config.ErrorInternal, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		ch := hub.Subscribe()
		defer hub.Unsubscribe(ch)

		slog.Info("SSE client connected",
			"remoteAddr", r.RemoteAddr,
			"totalClients", hub.ClientCount(),
		)

		for _, u := range tracker.List() {
			writeEvent(w, eventInvoiceState, u)
		}
		flusher.Flush()

		keepAlive := time.NewTicker(config.SSEKeepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				slog.Info("SSE client disconnected", "remoteAddr", r.RemoteAddr)
				return
			case ev, open := <-ch:
				if !open {
					return
				}
				writeEvent(w, ev.Type, ev.Data)
				flusher.Flush()
			case <-keepAlive.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, eventType string, data poller.Update) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to marshal SSE event", "type", eventType, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
}
