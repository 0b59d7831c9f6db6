// Package config loads server configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Addr is the listen address of the HTTP/WebSocket server.
	Addr string `env:"CLASSQUIZ_ADDR" envDefault:":8080"`

	// QuizFile points to the YAML quiz definition loaded at boot.
	QuizFile string `env:"CLASSQUIZ_QUIZ_FILE" envDefault:"quiz.yaml"`

	Lobby   LobbyConfig
	Session SessionConfig
}

type LobbyConfig struct {
	// InboxSize bounds the engine event inbox.
	InboxSize int `env:"CLASSQUIZ_LOBBY_INBOX_SIZE" envDefault:"256"`
}

type SessionConfig struct {
	// ReadLimit caps the size of a single inbound websocket frame.
	ReadLimit int64 `env:"CLASSQUIZ_WS_READ_LIMIT" envDefault:"4096"`

	// OutboxSize bounds the per-session outbound queue. A session whose
	// queue overflows is treated as a dead peer and closed.
	OutboxSize int `env:"CLASSQUIZ_WS_OUTBOX_SIZE" envDefault:"64"`

	// FrameRateLimit and FrameRateWindow throttle inbound text frames.
	FrameRateLimit  int           `env:"CLASSQUIZ_WS_FRAME_LIMIT" envDefault:"30"`
	FrameRateWindow time.Duration `env:"CLASSQUIZ_WS_FRAME_WINDOW" envDefault:"5s"`

	// PingPeriod is the read-idle duration after which a liveness ping
	// is emitted; PongDeadline is how long the peer has to answer it.
	PingPeriod   time.Duration `env:"CLASSQUIZ_WS_PING_PERIOD" envDefault:"5s"`
	PongDeadline time.Duration `env:"CLASSQUIZ_WS_PONG_DEADLINE" envDefault:"2s"`
}

// Load reads the optional .env file at path and parses the environment.
// A missing .env file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return env.ParseAs[Config]()
}
