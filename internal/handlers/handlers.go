// Package handlers exposes the HTTP surface of the quiz server: the
// websocket acceptor students connect to and a small health endpoint.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"classquiz-backend/internal/config"
	"classquiz-backend/internal/quiz"
	"classquiz-backend/internal/session"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
)

// Quiz returns the acceptor handler: each upgraded connection gets its own
// Session, which registers itself with the lobby through the handshake.
// Accept errors are logged and the server keeps serving.
func Quiz(cfg config.SessionConfig, lobby *quiz.Lobby, log *slog.Logger, acceptOpts websocket.AcceptOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &acceptOpts)
		if err != nil {
			// Accept already writes a status code and error message.
			log.Warn("websocket accept failed",
				slog.String("remote", r.RemoteAddr),
				slog.Any("error", err))
			return
		}
		conn.SetReadLimit(cfg.ReadLimit)

		log.Info("student connected", slog.String("remote", r.RemoteAddr))

		sess := session.New(conn, lobby, cfg, log.With(slog.String("remote", r.RemoteAddr)), clock.New())
		sess.Run(r.Context())

		log.Info("student connection closed", slog.String("remote", r.RemoteAddr))
	}
}

type healthResponse struct {
	Quiz    string `json:"quiz"`
	Phase   string `json:"phase"`
	Players int    `json:"players"`
	Locked  bool   `json:"locked"`
}

// Health reports the lobby phase and player count.
func Health(lobby *quiz.Lobby, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := lobby.Snapshot()
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		res := healthResponse{
			Quiz:    lobby.QuizName(),
			Phase:   snap.Phase.String(),
			Players: snap.PlayerCount,
			Locked:  snap.Locked,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			log.Error("health response encode", slog.Any("error", err))
		}
	}
}
