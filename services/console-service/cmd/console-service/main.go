package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tapiocalabs/clinagenda/libs/config"
	"github.com/tapiocalabs/clinagenda/libs/httpx"
	"github.com/tapiocalabs/clinagenda/libs/kafkax"
	otelx "github.com/tapiocalabs/clinagenda/libs/otel"
	"github.com/tapiocalabs/clinagenda/libs/runtime"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/consumer"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/handlers"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/refresh"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/remote"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/syncer"
)

func main() {
	service := config.String("SERVICE_NAME", "console-service")
	port, err := config.Port("PORT", "8091")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	agendaURL, err := config.RequiredString("AGENDA_BASE_URL")
	if err != nil {
		panic(err)
	}
	zoneName := config.String("DISPLAY_ZONE", "UTC")
	zone, err := time.LoadLocation(zoneName)
	if err != nil {
		logger.Error("unknown display zone; falling back to UTC", "zone", zoneName, "err", err)
		zone = time.UTC
	}

	store := remote.NewClient(agendaURL, zone)
	coordinator := syncer.NewCoordinator(store, logger)

	bootCtx, cancelBoot := context.WithTimeout(ctx, 15*time.Second)
	if err := coordinator.Refresh(bootCtx); err != nil {
		// The coordinator starts empty and converges via cron and events.
		logger.Warn("initial refresh failed", "err", err)
	}
	cancelBoot()

	scheduler := refresh.NewScheduler(coordinator, logger, 15*time.Second)
	if err := scheduler.Start(config.String("REFRESH_CRON", "*/5 * * * *")); err != nil {
		logger.Error("refresh scheduler failed to start", "err", err)
		panic(err)
	}
	defer scheduler.Stop()

	brokers := config.String("KAFKA_BROKERS", "")
	startConsumer := func(topic string) {
		if strings.TrimSpace(topic) == "" || strings.TrimSpace(brokers) == "" {
			return
		}
		eventConsumer := consumer.New(logger, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "console-service"),
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			return coordinator.Refresh(ctx)
		})
		go eventConsumer.Run(ctx)
	}
	startConsumer(config.String("KAFKA_CREATED_TOPIC", "agenda.appointment.created.v1"))
	startConsumer(config.String("KAFKA_UPDATED_TOPIC", "agenda.appointment.updated.v1"))
	startConsumer(config.String("KAFKA_CANCELLED_TOPIC", "agenda.appointment.cancelled.v1"))

	indicatorCap := config.Int("CALENDAR_INDICATOR_CAP", 3)
	consoleHandler := handlers.NewConsoleHandler(coordinator, store, logger, indicatorCap)

	readyChecks := []runtime.ReadyCheck{
		{Name: "agenda", Check: store.ReadyCheck()},
	}
	if strings.TrimSpace(brokers) != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/calendar", consoleHandler.Calendar)
	mux.HandleFunc("/api/v1/day", consoleHandler.Day)
	mux.HandleFunc("/api/v1/refresh", consoleHandler.Refresh)
	mux.HandleFunc("/api/v1/session", consoleHandler.SessionView)
	mux.HandleFunc("/api/v1/session/open", consoleHandler.SessionOpen)
	mux.HandleFunc("/api/v1/session/start", consoleHandler.SessionStart)
	mux.HandleFunc("/api/v1/session/end", consoleHandler.SessionEnd)
	mux.HandleFunc("/api/v1/session/specialty", consoleHandler.SessionSpecialty)
	mux.HandleFunc("/api/v1/session/procedure", consoleHandler.SessionProcedure)
	mux.HandleFunc("/api/v1/session/professional", consoleHandler.SessionProfessional)
	mux.HandleFunc("/api/v1/session/description", consoleHandler.SessionDescription)
	mux.HandleFunc("/api/v1/session/transport", consoleHandler.SessionTransport)
	mux.HandleFunc("/api/v1/session/save", consoleHandler.SessionSave)
	mux.HandleFunc("/api/v1/session/discard", consoleHandler.SessionDiscard)
	mux.HandleFunc("/api/v1/session/cancel/request", consoleHandler.CancelRequest)
	mux.HandleFunc("/api/v1/session/cancel/confirm", consoleHandler.CancelConfirm)
	mux.HandleFunc("/api/v1/session/cancel/decline", consoleHandler.CancelDecline)

	rateLimiter := httpx.NewRateLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 240), time.Minute)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Staff-Id", "X-Request-Id"},
		}),
		rateLimiter.Middleware(),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "console")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
