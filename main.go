package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classquiz-backend/internal/config"
	"classquiz-backend/internal/handlers"
	"classquiz-backend/internal/middleware"
	"classquiz-backend/internal/quiz"
	"classquiz-backend/internal/quizfile"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	var (
		addr     string
		quizPath string
		envFile  string
	)

	cmd := &cobra.Command{
		Use:           "classquiz-server",
		Short:         "Real-time quiz game server hosting one lobby over WebSocket.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if quizPath != "" {
				cfg.QuizFile = quizPath
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides CLASSQUIZ_ADDR)")
	cmd.Flags().StringVar(&quizPath, "quiz", "", "quiz YAML file (overrides CLASSQUIZ_QUIZ_FILE)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "path to an optional .env file")

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	set, err := quizfile.Load(cfg.QuizFile)
	if err != nil {
		return err
	}
	log.Info("quiz loaded",
		slog.String("name", set.Name),
		slog.Int("questions", len(set.Questions)))

	lobby := quiz.NewLobby(quiz.Options{
		Quiz:      set,
		Logger:    log,
		InboxSize: cfg.Lobby.InboxSize,
	})
	go lobby.Run()

	// The presenter TUI drives the teacher handle; the server itself only
	// registers it (unlocking the lobby) and mirrors events to the log.
	teacher, err := lobby.RegisterTeacher()
	if err != nil {
		return err
	}
	go func() {
		for ev := range teacher.Events() {
			log.Debug("teacher event", slog.Any("event", ev))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("GET /ws", middleware.ChainDefaults(handlers.Quiz(cfg.Session, lobby, log, websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})))
	mux.Handle("GET /healthz", middleware.ChainDefaults(handlers.Health(lobby, log)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
			teacher.Stop()
		case <-lobby.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
