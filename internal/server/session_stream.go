package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/alphabeta/internal/modules/dashboard"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const streamWriteTimeout = 5 * time.Second

// HandleStream handles GET /api/sessions/{id}/ws. It pushes a snapshot on
// connect and after every state change until the client disconnects or the
// session is deleted.
func (h *SessionHandlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Str("session", s.ID()).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	// Incoming messages are ignored; the returned context ends on disconnect.
	ctx := conn.CloseRead(r.Context())

	updates, cancel := s.Subscribe()
	defer cancel()

	h.log.Debug().Str("session", s.ID()).Msg("Stream client connected")

	if err := writeSnapshot(ctx, conn, s.Snapshot()); err != nil {
		h.logStreamEnd(s, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.logStreamEnd(s, ctx.Err())
			return
		case snap, open := <-updates:
			if !open {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				h.logStreamEnd(s, err)
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snap dashboard.Snapshot) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, snap)
}

func (h *SessionHandlers) logStreamEnd(s *dashboard.Session, err error) {
	status := websocket.CloseStatus(err)
	if errors.Is(err, context.Canceled) || status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		h.log.Debug().Str("session", s.ID()).Msg("Stream client disconnected")
		return
	}
	h.log.Warn().Err(err).Str("session", s.ID()).Msg("Stream ended")
}
