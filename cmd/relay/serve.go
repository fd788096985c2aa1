package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-chat-relay/internal/config"
	httpapi "github.com/tbourn/go-chat-relay/internal/http"
	"github.com/tbourn/go-chat-relay/internal/llm"
	"github.com/tbourn/go-chat-relay/internal/observability"
	"github.com/tbourn/go-chat-relay/internal/repo"
	"github.com/tbourn/go-chat-relay/internal/services"
	"github.com/tbourn/go-chat-relay/internal/sysutil"
	"github.com/tbourn/go-chat-relay/internal/telegram"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// serve wires the relay from cfg and blocks until ctx is cancelled, then
// drains in-flight requests.
func serve(ctx context.Context, cfg config.Config) error {
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	if err := telegram.UseLogger(log.Logger); err != nil {
		return err
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	rl, cleanup, err := buildRelay(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Telegram.WebhookURL != "" {
		if err := rl.transport.RegisterWebhook(cfg.Telegram.WebhookURL); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
		log.Info().Str("url", cfg.Telegram.WebhookURL).Msg("webhook registered")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, rl.service, rl.registry, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("webhook_path", cfg.Telegram.WebhookPath).
			Str("provider", cfg.Completion.Provider).
			Str("bot", rl.transport.Username()).
			Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// relay bundles the service with its transport and metrics registry.
type relay struct {
	service   *services.RelayService
	transport *telegram.Transport
	registry  *prometheus.Registry
}

// buildRelay constructs the provider, the transport, the optional journal
// and the relay service. cleanup closes the journal.
func buildRelay(cfg config.Config) (*relay, func(), error) {
	noop := func() {}

	gen, err := llm.New(cfg.Completion)
	if err != nil {
		return nil, noop, fmt.Errorf("completion provider: %w", err)
	}
	tr, err := newTransport(cfg.Telegram)
	if err != nil {
		return nil, noop, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := services.NewRelayService(gen, tr)
	svc.Replies = services.RepliesFor(cfg.Completion.ReplyLocale)
	svc.CompletionTimeout = cfg.Completion.Timeout
	svc.Metrics = observability.NewRelayMetrics(reg)
	if cfg.Completion.PersonaPath != "" {
		persona, err := services.LoadPersona(cfg.Completion.PersonaPath)
		if err != nil {
			return nil, noop, err
		}
		svc.Persona = persona
	}

	cleanup := noop
	if cfg.JournalDBPath != "" {
		db, err := openJournal(cfg.JournalDBPath)
		if err != nil {
			return nil, noop, err
		}
		svc.Recorder = repo.Journal{DB: db}
		cleanup = func() {
			if err := repo.Close(db); err != nil {
				log.Warn().Err(err).Msg("journal close")
			}
		}
		log.Info().Str("path", cfg.JournalDBPath).Msg("delivery journal enabled")
	}

	return &relay{service: svc, transport: tr, registry: reg}, cleanup, nil
}

// newTransport connects to the Bot API; the token is checked with getMe.
func newTransport(cfg config.TelegramConfig) (*telegram.Transport, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN: %w", config.ErrMissingSecret)
	}
	tr, err := telegram.New(telegram.Options{
		Token:     cfg.BotToken,
		Endpoint:  cfg.APIEndpoint,
		Timeout:   cfg.Timeout,
		ParseMode: cfg.ParseMode,
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}
