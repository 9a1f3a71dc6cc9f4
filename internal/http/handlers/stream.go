package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"bogofit/internal/domain"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

// StreamRun pushes run snapshots over a WebSocket until the run settles or
// the client goes away.
func (a *App) StreamRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	updates, release, err := a.Runs.Subscribe(r.Context(), id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	defer release()

	run, err := a.Pipeline.Get(r.Context(), id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	conn, err := a.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn().Err(err).Str("run_id", id).Msg("stream: upgrade failed")
		return
	}
	defer conn.Close()
	log := a.Logger.With().Str("run_id", id).Logger()

	// The server read timeout survives the hijack; pongs keep pushing it out.
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("stream: client read failed")
				}
				return
			}
		}
	}()

	var last time.Time
	send := func(run domain.Run) bool {
		if run.UpdatedAt.Before(last) {
			return true
		}
		last = run.UpdatedAt
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(run); err != nil {
			log.Debug().Err(err).Msg("stream: write failed")
			return false
		}
		if run.Stage.Terminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(run.Stage))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
			return false
		}
		return true
	}

	if !send(run) {
		return
	}
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case snap, ok := <-updates:
			if !ok || !send(snap) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
