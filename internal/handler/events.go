package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// handleEvents streams the cart as Server-Sent Events: one "cart" event per
// local change, starting with the current cart, plus periodic heartbeats.
// GET /cart/events
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: errorBody{Code: "STREAMING_UNSUPPORTED", Message: "streaming unsupported"},
		})
		return
	}

	eng, _, err := h.cartSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	carts, stop := eng.Subscribe()
	defer stop()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case cart, ok := <-carts:
			if !ok {
				return
			}
			data, err := json.Marshal(toCartView(cart))
			if err != nil {
				h.logger.Error("encoding cart event", slog.String("error", err.Error()))
				continue
			}
			if err := writeEvent(w, "cart", data); err != nil {
				return
			}
			flusher.Flush()
		case t := <-ticker.C:
			if err := writeEvent(w, "heartbeat", fmt.Appendf(nil, `{"timestamp":%d}`, t.Unix())); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
