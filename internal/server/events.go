package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okamoto/hr-dashboard/pkg/protocol"
	"go.uber.org/zap"
)

// closedMessage is sent when the server ends a stream
const closedMessage = "stream closed by server"

// statusEvent is the first event on every stream
type statusEvent struct {
	Revision uint64 `json:"revision"`
	Status   string `json:"status"`
	Loading  bool   `json:"loading"`
	Error    string `json:"error,omitempty"`
}

// handleEvents streams store changes until the client goes away or the
// subscriber is evicted.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	sub, err := h.subs.Register(r.RemoteAddr)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	defer h.subs.Unregister(sub.ID)
	defer func() {
		if info, ok := h.subs.Info(sub.ID); ok {
			h.logger.Debug("event stream ended",
				zap.String("subscriber", sub.ID),
				zap.Duration("connected_for", time.Since(info.ConnectedAt)),
				zap.Int64("events_sent", info.EventsSent),
				zap.Int64("events_dropped", info.EventsDropped))
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	state := h.loader.State()
	revision := h.store.Revision()
	if err := protocol.WriteEvent(w, strconv.FormatUint(revision, 10), protocol.EventStatus, statusEvent{
		Revision: revision,
		Status:   string(state.Status),
		Loading:  state.Loading,
		Error:    state.Error,
	}); err != nil {
		h.logger.Debug("failed to write status event", zap.String("subscriber", sub.ID), zap.Error(err))
		return
	}
	flusher.Flush()
	h.subs.MarkSent(sub.ID, true)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			if err := protocol.WriteEvent(w, "", protocol.EventError, map[string]string{"error": closedMessage}); err == nil {
				flusher.Flush()
			}
			return
		case change := <-sub.Events():
			if err := protocol.WriteEvent(w, strconv.FormatUint(change.Revision, 10), protocol.EventChange, change); err != nil {
				h.logger.Debug("failed to write change event", zap.String("subscriber", sub.ID), zap.Error(err))
				return
			}
			flusher.Flush()
			h.subs.MarkSent(sub.ID, true)
		case <-heartbeat.C:
			if err := protocol.WriteComment(w, "ping"); err != nil {
				return
			}
			flusher.Flush()
			h.subs.MarkSent(sub.ID, false)
		}
	}
}
