package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openharvest/outreach-platform/cmd/mainconfig"
	"github.com/openharvest/outreach-platform/internal/aireview"
	"github.com/openharvest/outreach-platform/internal/api/router"
	appconfig "github.com/openharvest/outreach-platform/internal/config"
	"github.com/openharvest/outreach-platform/internal/identity"
	"github.com/openharvest/outreach-platform/internal/invites"
	"github.com/openharvest/outreach-platform/internal/notify"
	"github.com/openharvest/outreach-platform/internal/observability/metrics"
	"github.com/openharvest/outreach-platform/internal/prospects"
	"github.com/openharvest/outreach-platform/internal/session"
	"github.com/openharvest/outreach-platform/internal/store"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting outreach-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	for _, warning := range cfg.Warnings() {
		logger.Warn("degraded configuration", "condition", warning)
	}

	ctx := context.Background()

	outreachMetrics := metrics.NewOutreachMetrics(prometheus.DefaultRegisterer)

	// Persistence backend is chosen once at startup and never switches
	// mid-session.
	rawBackend, backendMode := buildBackend(ctx, cfg, logger)
	defer rawBackend.Close()
	backend := store.Instrument(rawBackend, outreachMetrics)

	// Session tokens and revocation.
	tokens := identity.NewTokenIssuer(cfg.SessionJWTSecret, cfg.SessionTTL)
	var revoker session.Revoker = session.NopRevoker{}
	if cfg.RedisAddr != "" {
		revoker = session.NewRedisRevoker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisTLS)
	}

	// Credential verification: remote identity collaborator when
	// configured, otherwise local bcrypt against the store.
	var verifier identity.Verifier
	if cfg.IdentityBaseURL != "" {
		verifier = identity.NewRemoteVerifier(cfg.IdentityBaseURL, cfg.IdentityAPIKey)
	} else {
		verifier = identity.NewLocalVerifier(backend, logger)
	}
	identitySvc := identity.NewService(backend, verifier, tokens, revoker, logger)

	// AI prospect assessment.
	var analyzer aireview.Analyzer
	if cfg.GeminiAPIKey != "" {
		gemini, err := aireview.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to initialize gemini analyzer", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		analyzer = gemini
	}
	reviews := aireview.NewService(analyzer, logger)
	logger.Info("spiritual review analysis", "enabled", reviews.Enabled())
	prospectSvc := prospects.NewService(backend, reviews, logger)

	// Invitation email dispatch.
	sender := buildEmailSender(ctx, cfg, logger)
	inviteSvc := invites.NewService(backend, sender, cfg.PublicBaseURL, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		Tokens:             tokens,
		Revoker:            revoker,
		IdentityHandler:    identity.NewHandler(identitySvc, logger),
		ProspectHandler:    prospects.NewHandler(prospectSvc, outreachMetrics, logger),
		ProspectStream:     prospects.NewStreamHandler(prospectSvc, logger),
		UserStream:         identity.NewStreamHandler(identitySvc, logger),
		InviteHandler:      invites.NewHandler(inviteSvc, logger),
		Metrics:            outreachMetrics,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BackendMode:        backendMode,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr, "backend", backendMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildBackend selects the persistence backend. Remote credentials
// present means DynamoDB; otherwise the local file store.
func buildBackend(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (store.Backend, string) {
	if cfg.RemoteEnabled() {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		tables := map[string]string{
			store.CollectionUsers:       cfg.UsersTable,
			store.CollectionProspects:   cfg.ProspectsTable,
			store.CollectionInvitations: cfg.InvitationsTable,
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return store.NewDynamoBackend(client, tables, cfg.WatchInterval, logger), "remote"
	}

	backend, err := store.NewFileBackend(cfg.DataDir, logger)
	if err != nil {
		logger.Error("failed to open local data dir", "error", err, "dir", cfg.DataDir)
		os.Exit(1)
	}
	return backend, "local"
}

// buildEmailSender picks the configured email provider. SendGrid wins
// unless EMAIL_PROVIDER pins SES; with nothing configured the stub
// sender logs instead of sending.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	useSES := cfg.EmailProvider == "ses" || (cfg.EmailProvider == "auto" && cfg.SendGridAPIKey == "" && cfg.SESFromEmail != "")

	if useSES && cfg.SESFromEmail != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config for SES", "error", err)
			return notify.NewStubEmailSender(logger)
		}
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}

	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sender != nil {
		return sender
	}

	return notify.NewStubEmailSender(logger)
}
