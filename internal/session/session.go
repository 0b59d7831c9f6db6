// Package session implements the per-connection protocol: the bound-id
// handshake, cheat detection, the outbound write queue and liveness
// probing for one student websocket.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"classquiz-backend/api"
	"classquiz-backend/internal/config"
	"classquiz-backend/internal/quiz"
	"classquiz-backend/internal/rate"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const writeTimeout = 5 * time.Second

// Session owns one student websocket. The read loop is the only reader of
// the socket, the write loop the only writer; the engine reaches the
// socket exclusively through the bounded outbox.
type Session struct {
	conn    *websocket.Conn
	lobby   *quiz.Lobby
	cfg     config.SessionConfig
	log     *slog.Logger
	clk     clock.Clock
	limiter *rate.Limiter

	outbox chan any
	cancel context.CancelFunc

	closeOnce sync.Once
	termOnce  sync.Once

	lastRead atomic.Int64

	mu      sync.Mutex
	bound   bool
	boundID uuid.UUID
}

func New(conn *websocket.Conn, lobby *quiz.Lobby, cfg config.SessionConfig, log *slog.Logger, clk clock.Clock) *Session {
	if clk == nil {
		clk = clock.New()
	}
	return &Session{
		conn:    conn,
		lobby:   lobby,
		cfg:     cfg,
		log:     log,
		clk:     clk,
		limiter: rate.NewLimiterWithClock(cfg.FrameRateWindow, cfg.FrameRateLimit, clk),
		outbox:  make(chan any, cfg.OutboxSize),
	}
}

// Run drives the session until the socket closes, the peer cheats, or
// liveness fails. It always leaves the lobby in a consistent state.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.touch()

	go s.writeLoop(ctx)
	go s.liveness(ctx)

	s.readLoop(ctx)
	s.terminate()
}

// Send queues an engine message for delivery. A full outbox means the
// peer is too slow to live: the session tears itself down and the engine
// moves on. Never blocks.
func (s *Session) Send(v any) bool {
	select {
	case s.outbox <- v:
		return true
	default:
		s.log.Warn("session outbox overflow, dropping peer")
		s.terminate()
		return false
	}
}

// Stop closes the session with a normal close frame. Safe to call from the
// engine goroutine: the close handshake happens off-thread.
func (s *Session) Stop(reason string) {
	go s.gracefulStop(reason)
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				s.log.Info("peer closed connection", slog.Int("status", int(status)))
			}
			return
		}
		s.touch()

		// Binary and any other non-text frames are ignored.
		if typ != websocket.MessageText {
			continue
		}
		if !s.limiter.Allow() {
			s.log.Warn("frame rate limit exceeded")
			s.gracefulStop(api.ReasonGoodbye)
			return
		}
		if !s.handleFrame(data) {
			return
		}
	}
}

// handleFrame dispatches one inbound envelope. It returns false once the
// session decided to terminate.
func (s *Session) handleFrame(data []byte) bool {
	var req api.Request[json.RawMessage]
	if err := json.Unmarshal(data, &req); err != nil {
		s.log.Warn("unparseable frame", slog.Any("error", err))
		s.gracefulStop(api.ReasonBadFrame)
		return false
	}

	switch req.Type {
	case api.RequestTypeTryJoin:
		return s.handleTryJoin(req.Data)
	case api.RequestTypeJoin:
		return s.handleJoin(req.Data)
	case api.RequestTypeAnswerSelected:
		return s.handleAnswerSelected(req.Data)
	case api.RequestTypeDisconnect:
		s.gracefulStop(api.ReasonGoodbye)
		return false
	default:
		s.log.Warn("unknown request type", slog.String("type", string(req.Type)))
		s.gracefulStop(api.ReasonBadFrame)
		return false
	}
}

func (s *Session) handleTryJoin(raw json.RawMessage) bool {
	data, err := api.DecodeJSON[api.TryJoinRequestData](raw)
	if err != nil || data.UUID == uuid.Nil {
		s.gracefulStop(api.ReasonBadFrame)
		return false
	}

	s.mu.Lock()
	if s.bound {
		s.mu.Unlock()
		// Rebinding an id mid-session is cheating.
		s.log.Warn("second tryJoin on bound session", slog.String("uuid", data.UUID.String()))
		s.gracefulStop(api.ReasonGoodbye)
		return false
	}
	s.bound = true
	s.boundID = data.UUID
	s.mu.Unlock()

	res, err := s.lobby.TryJoin(data.UUID)
	if err != nil {
		s.gracefulStop(api.ReasonGoodbye)
		return false
	}

	s.Send(&api.Response[api.TryJoinResponseData]{
		Type: api.ResponseTypeTryJoin,
		Data: api.TryJoinResponseData{
			UUID:     data.UUID,
			CanJoin:  res.CanJoin,
			Reason:   res.Reason,
			QuizName: res.QuizName,
		},
	})
	return true
}

func (s *Session) handleJoin(raw json.RawMessage) bool {
	data, err := api.DecodeJSON[api.JoinRequestData](raw)
	if err != nil {
		s.gracefulStop(api.ReasonBadFrame)
		return false
	}
	if !s.isBoundTo(data.Player.UUID) {
		s.log.Warn("join with foreign id", slog.String("uuid", data.Player.UUID.String()))
		s.gracefulStop(api.ReasonGoodbye)
		return false
	}

	res, err := s.lobby.Join(data.Player, s)
	if err != nil {
		s.gracefulStop(api.ReasonGoodbye)
		return false
	}

	s.Send(&api.Response[api.JoinResponseData]{
		Type: api.ResponseTypeJoin,
		Data: api.JoinResponseData{
			UUID:     data.Player.UUID,
			CanJoin:  res.CanJoin,
			Reason:   res.Reason,
			QuizName: res.QuizName,
			Players:  res.Players,
		},
	})
	return true
}

func (s *Session) handleAnswerSelected(raw json.RawMessage) bool {
	data, err := api.DecodeJSON[api.AnswerSelectedRequestData](raw)
	if err != nil {
		s.gracefulStop(api.ReasonBadFrame)
		return false
	}
	if !s.isBoundTo(data.PlayerUUID) {
		s.log.Warn("answer with foreign id", slog.String("uuid", data.PlayerUUID.String()))
		s.gracefulStop(api.ReasonGoodbye)
		return false
	}

	switch err := s.lobby.Answer(data.PlayerUUID, data.QuestionIndex, data.Answers); {
	case err == nil:
		// Accepted, or silently dropped on a question-end race. Results
		// arrive via questionUpdate/questionEnded fan-out.
	case errors.Is(err, quiz.ErrStopped):
		s.gracefulStop(api.ReasonGoodbye)
		return false
	default:
		// Rule violation: typed refusal, the connection stays open.
		s.Send(&api.Response[api.ErrorResponseData]{
			Type: api.ResponseTypeError,
			Data: api.ErrorResponseData{
				Request: api.RequestTypeAnswerSelected,
				Message: err.Error(),
			},
		})
	}
	return true
}

func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-s.outbox:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, s.conn, v)
			cancel()
			if err != nil {
				s.terminate()
				return
			}
		}
	}
}

// liveness pings the peer after PingPeriod of read-idle and drops the
// connection without a close frame if no pong arrives within PongDeadline.
func (s *Session) liveness(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clk.After(s.cfg.PingPeriod):
			idle := time.Duration(s.clk.Now().UnixNano() - s.lastRead.Load())
			if idle < s.cfg.PingPeriod {
				continue
			}
			pingCtx, cancel := context.WithTimeout(ctx, s.cfg.PongDeadline)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.Info("liveness probe failed, dropping connection",
					slog.Any("error", err))
				s.terminate()
				return
			}
			s.touch()
		}
	}
}

func (s *Session) gracefulStop(reason string) {
	s.closeOnce.Do(func() {
		_ = s.conn.Close(websocket.StatusNormalClosure, reason)
	})
	s.terminate()
}

// terminate releases the socket and tells the lobby the player is gone.
// Idempotent and non-blocking.
func (s *Session) terminate() {
	s.termOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		_ = s.conn.CloseNow()

		s.mu.Lock()
		bound, id := s.bound, s.boundID
		s.mu.Unlock()
		if bound {
			// Off-thread so terminate stays safe to call from the
			// engine's own goroutine.
			go s.lobby.Disconnect(id)
		}
	})
}

func (s *Session) isBoundTo(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound && s.boundID == id
}

func (s *Session) touch() {
	s.lastRead.Store(s.clk.Now().UnixNano())
}
