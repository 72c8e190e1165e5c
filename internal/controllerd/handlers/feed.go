package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridforge/jobcore/internal/controllerd"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	pollPeriod = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// FeedHandler streams job accounting snapshots over a WebSocket so an
// operator console can watch heartbeats arrive live.
type FeedHandler struct {
	store *controllerd.Store
}

// NewFeedHandler constructs a FeedHandler backed by store.
func NewFeedHandler(store *controllerd.Store) *FeedHandler {
	return &FeedHandler{store: store}
}

// Handle upgrades to a WebSocket and pushes a store snapshot every
// pollPeriod until the client disconnects.
func (h *FeedHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	pollTicker := time.NewTicker(pollPeriod)
	defer pollTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-pollTicker.C:
			snapshot := h.store.Snapshot()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snapshot); err != nil {
				return
			}
		}
	}
}
