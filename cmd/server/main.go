package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mindweave/internal/chat"
	"mindweave/internal/completion"
	"mindweave/internal/config"
	"mindweave/internal/contact"
	"mindweave/internal/crypto"
	"mindweave/internal/httpapi"
	"mindweave/internal/metrics"
	"mindweave/internal/notify"
	"mindweave/internal/prompt"
	"mindweave/internal/providers/registry"
	"mindweave/internal/queue"
	"mindweave/internal/storage"
	"mindweave/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("provider", cfg.Provider.Kind).
		Str("model", cfg.Provider.Model).
		Bool("contact", cfg.Contact.Enabled).
		Bool("debug_traces", cfg.Chat.DebugTraces).
		Msg("starting mindweave")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	systemPrompt, err := prompt.Load(cfg.Chat.SystemPromptFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load system prompt")
	}

	provider, err := registry.Build(registry.BuildOptions{
		Kind:       cfg.Provider.Kind,
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		Headers:    cfg.Provider.Headers,
		Config:     map[string]any{"body_template": cfg.Provider.BodyTemplate},
		HTTPClient: &http.Client{Timeout: cfg.Provider.Timeout},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider")
	}

	m := metrics.Global()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
	}

	chatCfg := chat.Config{
		Completer: completion.New(completion.Config{
			Provider: provider,
			Model:    cfg.Provider.Model,
			Logger:   log.Logger.With().Str("component", "completion").Logger(),
			Metrics:  m,
		}),
		SystemPrompt: systemPrompt,
		DebugTraces:  cfg.Chat.DebugTraces,
		Logger:       log.Logger.With().Str("component", "chat").Logger(),
		Metrics:      m,
	}
	if rdb != nil && cfg.Rate.PerHour > 0 {
		chatCfg.Limiter = queue.NewRateLimiter(rdb, cfg.Rate.PerHour, time.Hour)
	}

	errCh := make(chan error, 2)
	apiCfg := httpapi.Config{
		Chat:            chat.NewService(chatCfg),
		HealthPath:      cfg.HTTP.HealthPath,
		MetricsPath:     cfg.HTTP.MetricsPath,
		StaticDir:       cfg.HTTP.StaticDir,
		AllowedOrigins:  cfg.CORS.AllowedOrigins(),
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
		Logger:          log.Logger,
	}

	if cfg.Contact.Enabled {
		store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize storage")
		}
		defer store.Close()

		sealer, err := crypto.NewSealer(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize sealer")
		}
		inbox := contact.NewInbox(store, sealer)

		workerLog := log.Logger.With().Str("component", "worker").Logger()
		workerCfg := worker.Config{
			Inbox:         inbox,
			Notifier:      buildNotifier(cfg, workerLog),
			MaxJobRetries: cfg.Worker.MaxRetries,
			MaxAttempts:   cfg.Worker.MaxAttempts,
			SweepInterval: cfg.Worker.SweepInterval,
			Logger:        workerLog,
			Metrics:       m,
		}
		contactCfg := contact.Config{
			Inbox:   inbox,
			Logger:  log.Logger.With().Str("component", "contact").Logger(),
			Metrics: m,
		}
		if rdb != nil {
			jobQueue := queue.NewStreamQueue(rdb, cfg.Redis.NotifyStream, cfg.Redis.NotifyGroup, cfg.Worker.ConsumerName, cfg.Redis.QueueBlock)
			workerCfg.Queue = jobQueue
			contactCfg.Queue = jobQueue
			contactCfg.Dedupe = queue.NewSubmissionDeduplicator(rdb, cfg.Redis.DedupeTTL)
		}
		w := worker.New(workerCfg)
		contactCfg.Deliverer = w
		apiCfg.Contact = contact.NewService(contactCfg)

		go func() {
			if err := w.Start(ctx, cfg.Worker.Concurrency); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("worker failed: %w", err)
			}
		}()
		log.Info().Int("concurrency", cfg.Worker.Concurrency).Bool("queue", rdb != nil).Msg("notification worker started")
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           httpapi.NewHandler(apiCfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

// buildNotifier always includes the log notifier so a contact message is
// visible somewhere even with no delivery channel configured.
func buildNotifier(cfg *config.Config, logger zerolog.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.Log{Logger: logger}}

	if cfg.Telegram.BotToken != "" {
		bot, err := gotgbot.NewBot(cfg.Telegram.BotToken, nil)
		if err != nil {
			logger.Error().Msg(sanitizeTelegramErr(err, cfg.Telegram.BotToken))
		} else {
			logger.Info().Str("bot_username", bot.User.Username).Msg("telegram notifications enabled")
			notifiers = append(notifiers, notify.NewTelegram(bot, cfg.Telegram.AdminChatID))
		}
	}

	if cfg.SendGrid.APIKey != "" && cfg.SendGrid.FromEmail != "" {
		notifiers = append(notifiers, notify.NewEmail(notify.EmailConfig{
			APIKey:     cfg.SendGrid.APIKey,
			Host:       cfg.SendGrid.Host,
			FromEmail:  cfg.SendGrid.FromEmail,
			FromName:   cfg.SendGrid.FromName,
			AdminEmail: cfg.SendGrid.AdminEmail,
			OwnerName:  cfg.Contact.OwnerName,
		}))
		logger.Info().Bool("admin_copy", cfg.SendGrid.AdminEmail != "").Msg("email notifications enabled")
	}
	return notifiers
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func sanitizeTelegramErr(err error, token string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.TrimSpace(token) == "" {
		return msg
	}

	msg = strings.ReplaceAll(msg, token, "<redacted-token>")
	if idx := strings.Index(token, ":"); idx > 0 {
		botID := token[:idx]
		msg = strings.ReplaceAll(msg, "/bot"+botID+":", "/bot<redacted>:")
		msg = strings.ReplaceAll(msg, "bot"+botID+"/", "bot<redacted>/")
	}
	return msg
}
