package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-telegram/bot"

	"sos-service/internal/alert"
	"sos-service/internal/api"
	"sos-service/internal/auth"
	"sos-service/internal/config"
	"sos-service/internal/db"
	"sos-service/internal/geo"
	"sos-service/internal/kafka"
	"sos-service/internal/logging"
	"sos-service/internal/notify"
	"sos-service/internal/providers"
	"sos-service/internal/realtime"
	"sos-service/internal/recipient"
	"sos-service/internal/session"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	database, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close()

	if cfg.DB.Migrate {
		if err := database.Migrate(ctx); err != nil {
			logger.Errorf("Migration failed: %v", err)
			log.Fatalf("Migration failed: %v", err)
		}
		logger.Infof("Schema up to date")
	}

	var wg sync.WaitGroup
	broker := realtime.NewBroker(cfg.Realtime.BufferSize, logger)

	// Notification dispatch
	var geocoder geo.Geocoder
	if cfg.Maps.APIKey != "" {
		g, err := geo.NewGoogleGeocoder(cfg.Maps.APIKey)
		if err != nil {
			logger.Warnf("Reverse geocoding disabled: %v", err)
		} else {
			geocoder = g
		}
	}

	var mail notify.Dispatcher
	mailer, err := newMailer(cfg)
	if err != nil {
		logger.Warnf("Email delivery not configured: %v", err)
	} else {
		mail = notify.NewMailDispatcher(mailer, cfg.Dispatch.SecurityEmail, geocoder, logger)
	}

	var dispatcher notify.Dispatcher
	switch cfg.Dispatch.Mode {
	case "remote":
		dispatcher = notify.NewRemoteDispatcher(cfg.Dispatch.FunctionURL, cfg.Dispatch.FunctionToken, nil)
	default:
		if mail == nil {
			log.Fatalf("Direct dispatch needs a working email provider")
		}
		dispatcher = mail
	}
	logger.Infof("Dispatch mode: %s", cfg.Dispatch.Mode)

	// Real-time source
	var publisher alert.Publisher
	var consumer *kafka.Consumer
	var producer *kafka.Producer
	switch cfg.Realtime.Source {
	case "kafka":
		kcfg := kafka.Config{Brokers: []string{cfg.Kafka.Broker}, Topic: cfg.Kafka.Topic, GroupID: cfg.Kafka.GroupID}
		producer = kafka.NewProducer(kcfg)
		publisher = producer
		consumer = kafka.NewConsumer(kcfg, broker, database, logger)
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka real-time source initialized with topic: %s", cfg.Kafka.Topic)
	default:
		listener := realtime.NewPGListener(database.Pool, db.AlertChannel, broker, database, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = listener.Run(ctx)
		}()
	}

	// Security chat relay
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		b, err := bot.New(cfg.Telegram.BotToken)
		if err != nil {
			logger.Warnf("Telegram relay disabled: %v", err)
		} else {
			relay := providers.NewTelegramRelay(b, cfg.Telegram.ChatID, cfg.Telegram.RateLimit, logger)
			relay.Start(ctx, &wg)
			sub := broker.Subscribe()
			defer sub.Close()
			go relay.Forward(ctx, sub.Events())
			logger.Infof("Telegram relay started for chat %d", cfg.Telegram.ChatID)
		}
	}

	policy := recipient.NewDomainAllowList(cfg.Dispatch.Domains...)
	svc := alert.New(alert.Deps{
		Store:       database,
		Profiles:    database,
		DispatchLog: database,
		Publisher:   publisher,
		Dispatcher:  dispatcher,
		Policy:      policy,
		Fallback:    cfg.Dispatch.SecurityEmail,
		Mode:        cfg.Dispatch.Mode,
		Logger:      logger,
	})
	sessions := session.NewStore(database, cfg.Auth.SessionTTL, logger)

	// Start API server
	handler := api.NewHandler(svc, sessions, broker, mail, policy, logger, cfg.Realtime.DashboardSize)
	router, err := api.NewRouter(handler, auth.NewVerifier(cfg.Auth.JWTSecret), logger, api.RouterConfig{
		BasePath:   cfg.API.BasePath,
		SubmitRate: cfg.API.SubmitRate,
	})
	if err != nil {
		log.Fatalf("Router setup failed: %v", err)
	}
	srv := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("API started on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API run failed: %v", err)
			cancel()
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case <-c:
	case <-ctx.Done():
	}
	logger.Infof("Shutting down...")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	cancel()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Kafka consumer close failed: %v", err)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Errorf("Kafka producer close failed: %v", err)
		}
	}
	wg.Wait()
	logger.Infof("Service stopped")
}

func newMailer(cfg config.Config) (notify.Mailer, error) {
	switch cfg.Email.Provider {
	case "sendgrid":
		return providers.NewSendGridMailer(cfg.Email.SendGrid, cfg.Email.FromName, cfg.Email.FromEmail)
	default:
		return providers.NewSMTPMailer(providers.SMTPConfig{
			Server:   cfg.Email.SMTPServer,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			FromName: cfg.Email.FromName,
			From:     cfg.Email.FromEmail,
		})
	}
}
