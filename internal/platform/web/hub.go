package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dontdude/vedit/internal/domain"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Hub streams job events to WebSocket clients. A client connects with
// ?job_id=..., receives the retained history followed by live events, and is
// disconnected after the terminal event.
type Hub struct {
	channel  domain.Channel
	logger   *slog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub that relays events from channel.
func NewHub(channel domain.Channel, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		channel: channel,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// The API is consumed cross-origin by the editor frontend.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// ServeHTTP upgrades the connection and streams the job's events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "jobID", jobID, "error", err)
		return
	}

	h.wg.Add(1)
	defer h.wg.Done()
	defer conn.Close()

	logger := h.logger.With("jobID", jobID, "remoteAddr", conn.RemoteAddr().String())
	logger.Info("Client connected")

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	// The client never sends anything meaningful; a read error means it left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	reason := h.stream(ctx, conn, jobID, logger)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	logger.Info("Client disconnected", "reason", reason)
}

// stream forwards events until the terminal one and returns why it stopped.
func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, jobID string, logger *slog.Logger) string {
	// Subscribe before reading history so nothing falls between the two.
	live, err := h.channel.Subscribe(ctx, jobID)
	if err != nil {
		logger.Error("Subscribe failed", "error", err)
		return "subscribe failed"
	}

	history, err := h.channel.History(ctx, jobID)
	if err != nil {
		logger.Warn("History unavailable", "error", err)
	}

	var lastSeq int64
	send := func(e domain.Event) (done bool, err error) {
		if e.Seq <= lastSeq {
			return false, nil
		}
		lastSeq = e.Seq
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			return false, err
		}
		return e.Terminal(), nil
	}

	for _, e := range history {
		done, err := send(e)
		if err != nil {
			logger.Error("Failed to write to websocket", "error", err)
			return "write failed"
		}
		if done {
			return "job finished"
		}
	}

	for {
		select {
		case <-ctx.Done():
			return "closed"
		case e, ok := <-live:
			if !ok {
				return "closed"
			}
			done, err := send(e)
			if err != nil {
				logger.Error("Failed to write to websocket", "error", err)
				return "write failed"
			}
			if done {
				return "job finished"
			}
		}
	}
}

// ServeHistory answers GET /api/jobs/{id}/events with the retained events.
func (h *Hub) ServeHistory(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	events, err := h.channel.History(r.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to read job history", "jobID", jobID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id": jobID,
		"events": events,
	})
}

// Close disconnects every client and waits for their handlers to return.
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}
