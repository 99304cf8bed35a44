package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/careportal/portal/internal/config"
	"github.com/careportal/portal/internal/domain/auditevent"
	"github.com/careportal/portal/internal/domain/billing"
	"github.com/careportal/portal/internal/domain/patient"
	"github.com/careportal/portal/internal/domain/payment"
	"github.com/careportal/portal/internal/domain/quote"
	"github.com/careportal/portal/internal/domain/referral"
	"github.com/careportal/portal/internal/domain/statement"
	"github.com/careportal/portal/internal/platform/auth"
	"github.com/careportal/portal/internal/platform/blobstore"
	"github.com/careportal/portal/internal/platform/db"
	"github.com/careportal/portal/internal/platform/middleware"
	"github.com/careportal/portal/internal/platform/notification"
	"github.com/careportal/portal/internal/platform/registry"
	"github.com/careportal/portal/internal/platform/webhook"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal-server",
		Short: "Patient billing & referral portal API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a schema backup instead.")
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("26M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// API groups. apiV1 carries staff authentication; the portal group is
	// public and protected per-route (DOB verification, view tokens,
	// webhook signatures).
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		})
	}
	apiV1 := e.Group("/api/v1", authMW)
	public := e.Group("/portal")

	// Audit trail
	auditSvc := auditevent.NewService(auditevent.NewAuditEventRepoPG(pool))
	auditHandler := auditevent.NewHandler(auditSvc)
	auditHandler.RegisterRoutes(apiV1)

	// Outbound partner webhooks. Portal audit events of externally
	// visible kinds fan out to registered endpoints.
	webhookMgr := webhook.NewManager(webhook.NewInMemoryStore())
	webhookHandler := webhook.NewHandler(webhookMgr)
	webhookHandler.RegisterRoutes(apiV1)
	recorder := newPublishingRecorder(auditSvc, webhookMgr)

	// Notifications
	notifMgr := notification.NewManager(
		notification.LogEmailSender{},
		notification.LogSMSSender{},
		notification.NewTemplateEngine(),
	)
	notifHandler := notification.NewHandler(notifMgr)
	notifHandler.RegisterRoutes(apiV1)

	// Patients
	patientRepo := patient.NewPatientRepoPG(pool)
	patientSvc := patient.NewService(patientRepo)
	patientHandler := patient.NewHandler(patientSvc)
	patientHandler.RegisterRoutes(apiV1)

	// Statements and the DOB verification flow
	viewSecret, randomSecret, err := resolveViewTokenSecret(cfg.ViewTokenSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("view token secret error")
	}
	if randomSecret {
		logger.Warn().Msg("VIEW_TOKEN_SECRET not set; using random key (view tokens will not survive restart)")
	}
	tokens := auth.NewViewTokenIssuer(viewSecret, cfg.ViewTokenTTL)

	stmtSvc := statement.NewService(statement.NewStatementRepoPG(pool), patientRepo)
	stmtSvc.SetAuditRecorder(recorder)
	stmtSvc.SetNotifier(notifMgr, cfg.PortalBaseURL)
	stmtHandler := statement.NewHandler(stmtSvc, tokens)
	stmtHandler.RegisterRoutes(apiV1, public)

	// Balance resolution against the external person registry
	regClient := registry.NewHTTPClient(cfg.RegistryBaseURL, cfg.RegistryAPIKey,
		registry.WithTimeout(cfg.RegistryTimeout))
	resolver := billing.NewResolver(patientRepo, regClient)
	resolver.SetAuditRecorder(recorder)
	billingHandler := billing.NewHandler(resolver)
	billingHandler.RegisterRoutes(apiV1)

	// Referrals
	referralSvc := referral.NewService(referral.NewReferralRepoPG(pool))
	referralSvc.SetAuditRecorder(recorder)
	referralHandler := referral.NewHandler(referralSvc)
	referralHandler.RegisterRoutes(apiV1)

	// Quotes
	quoteSvc := quote.NewService(quote.NewQuoteRepoPG(pool))
	quoteSvc.SetAuditRecorder(recorder)
	quoteHandler := quote.NewHandler(quoteSvc)
	quoteHandler.RegisterRoutes(apiV1)

	// Payments and the processor webhook
	paymentSvc := payment.NewService(payment.NewPaymentRepoPG(pool), stmtSvc)
	paymentSvc.SetAuditRecorder(recorder)
	paymentHandler := payment.NewHandler(paymentSvc, cfg.PaymentWebhookSecret)
	paymentHandler.RegisterRoutes(apiV1, public)

	// Attachments (statement PDFs, referral documents)
	blobStore, err := blobstore.NewFileBlobStore(cfg.BlobstoreDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize blob store")
	}
	blobHandler := blobstore.NewBlobHandler(blobStore)
	blobHandler.RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// publishingRecorder records audit events and fans the externally visible
// kinds out to partner webhook endpoints. Webhook delivery is best-effort
// and never affects the recorded event.
type publishingRecorder struct {
	audit   auditevent.Recorder
	manager *webhook.Manager
}

// publishedKinds are the audit kinds partners may subscribe to.
// Verification attempts and statement views stay internal.
var publishedKinds = map[string]bool{
	auditevent.KindStatementSent:     true,
	auditevent.KindStatementRejected: true,
	auditevent.KindPaymentReceived:   true,
	auditevent.KindReferralReceived:  true,
	auditevent.KindQuoteIssued:       true,
}

func newPublishingRecorder(audit auditevent.Recorder, manager *webhook.Manager) *publishingRecorder {
	return &publishingRecorder{audit: audit, manager: manager}
}

func (r *publishingRecorder) Record(ctx context.Context, e *auditevent.AuditEvent) error {
	err := r.audit.Record(ctx, e)

	if r.manager != nil && publishedKinds[e.Kind] {
		payload, merr := json.Marshal(e)
		if merr == nil {
			evt := webhook.Event{
				ID:          uuid.New().String(),
				Type:        e.Kind,
				SubjectType: e.SubjectType,
				Payload:     payload,
				Timestamp:   time.Now().UTC(),
			}
			if e.SubjectID != nil {
				evt.SubjectID = e.SubjectID.String()
			}
			go r.manager.Deliver(context.Background(), evt)
		}
	}
	return err
}

// resolveViewTokenSecret returns the configured view token secret, or a
// random 32-byte key when none is set. The second return value is true
// when a random key was generated.
func resolveViewTokenSecret(configured string) ([]byte, bool, error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random view token secret: %w", err)
	}
	return key, true, nil
}
