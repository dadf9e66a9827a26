package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/darkauth/darkauth/internal/authz"
	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/bunx"
	"github.com/darkauth/darkauth/internal/install"
	"github.com/darkauth/darkauth/internal/jwks"
	"github.com/darkauth/darkauth/internal/oidc"
	"github.com/darkauth/darkauth/internal/pake"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/server"
	"github.com/darkauth/darkauth/internal/services/accounts"
	"github.com/darkauth/darkauth/internal/services/audit"
	"github.com/darkauth/darkauth/internal/services/email"
	"github.com/darkauth/darkauth/internal/services/iam"
	"github.com/darkauth/darkauth/internal/services/otp"
	"github.com/darkauth/darkauth/internal/services/sessions"
	"github.com/darkauth/darkauth/internal/services/settings"
	"github.com/darkauth/darkauth/internal/sweeper"
	"github.com/darkauth/darkauth/internal/telemetry"
)

const userSessionLifetime = 12 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DarkAuth server",
	Long:  `Starts the user realm (OIDC and PAKE endpoints) and the admin realm on their configured addresses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)
		log.Printf("Connected to database")

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Observability)
		if err != nil {
			return fmt.Errorf("initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				log.Printf("Warning: telemetry shutdown failed: %v", err)
			}
		}()

		kek, err := crypto.NewKEK(cfg.KEKPassphrase, cfg.Issuer)
		if err != nil {
			return fmt.Errorf("derive key encryption key: %w", err)
		}

		// Repositories.
		userRepo := repository.NewBunUserRepository(db)
		adminRepo := repository.NewBunAdminRepository(db)
		clientRepo := repository.NewBunClientRepository(db)
		pendingRepo := repository.NewBunPendingAuthRepository(db)
		codeRepo := repository.NewBunAuthCodeRepository(db)
		jwksRepo := repository.NewBunJWKSRepository(db)
		sessionRepo := repository.NewBunSessionRepository(db)
		rbacRepo := repository.NewBunRBACRepository(db)
		otpRepo := repository.NewBunOTPRepository(db)
		settingsRepo := repository.NewBunSettingsRepository(db)
		auditRepo := repository.NewBunAuditRepository(db)

		// Services.
		settingsSvc, err := settings.NewService(settingsRepo)
		if err != nil {
			return fmt.Errorf("create settings service: %w", err)
		}

		pakeSvc, err := pake.NewService(ctx, settingsRepo, kek, cfg.Issuer)
		if err != nil {
			return fmt.Errorf("create pake service: %w", err)
		}

		keyManager, err := jwks.NewManager(jwksRepo, kek, cfg.JWKSAlg)
		if err != nil {
			return fmt.Errorf("create jwks manager: %w", err)
		}
		if err := keyManager.EnsureKey(ctx); err != nil {
			return fmt.Errorf("ensure signing key: %w", err)
		}

		auditSvc := audit.NewService(auditRepo)
		defer auditSvc.Close()

		iamSvc := iam.NewService(
			iam.Deps{RBAC: rbacRepo},
			iam.Config{OTPRequireForUsers: cfg.OTPRequireForUsers},
		)

		secureCookies := strings.HasPrefix(cfg.Issuer, "https://")
		sessionSvc := sessions.NewService(
			sessionRepo,
			userSessionLifetime,
			time.Duration(cfg.RefreshTokenLifetimeSeconds)*time.Second,
			secureCookies,
		)

		otpSvc := otp.NewService(otpRepo, kek, cfg.Issuer)
		emailSvc := email.NewService(otpRepo, cfg.Email, cfg.UIOrigin)

		accountSvc := accounts.NewService(accounts.Deps{
			Pake:     pakeSvc,
			Users:    userRepo,
			Admins:   adminRepo,
			RBAC:     rbacRepo,
			Sessions: sessionSvc,
			IAM:      iamSvc,
			Audit:    auditSvc,
		})

		oidcSvc := oidc.NewService(
			oidc.Deps{
				Clients:  clientRepo,
				Pending:  pendingRepo,
				Codes:    codeRepo,
				Users:    userRepo,
				Sessions: sessionSvc,
				IAM:      iamSvc,
				Keys:     keyManager,
				KEK:      kek,
				Audit:    auditSvc,
			},
			oidc.Config{
				Issuer:          cfg.Issuer,
				UIOrigin:        cfg.UIOrigin,
				IDTokenLifetime: time.Duration(cfg.IDTokenLifetimeSeconds) * time.Second,
				RefreshLifetime: time.Duration(cfg.RefreshTokenLifetimeSeconds) * time.Second,
			},
		)

		installSvc := install.NewService(install.Deps{
			Accounts: accountSvc,
			Admins:   adminRepo,
			RBAC:     rbacRepo,
			Keys:     keyManager,
			Settings: settingsSvc,
			Audit:    auditSvc,
		}, cfg.InstallToken)
		if cfg.InstallToken != "" {
			if installed, err := installSvc.Installed(ctx); err == nil && !installed {
				log.Printf("Install token armed; complete bootstrap within 10 minutes")
			}
		}

		enforcer, err := authz.InitEnforcer(db)
		if err != nil {
			return fmt.Errorf("configure casbin enforcer: %w", err)
		}

		srv := server.New(server.Deps{
			Config:   cfg,
			Accounts: accountSvc,
			Sessions: sessionSvc,
			OIDC:     oidcSvc,
			OTP:      otpSvc,
			IAM:      iamSvc,
			Email:    emailSvc,
			Settings: settingsSvc,
			Audit:    auditSvc,
			Install:  installSvc,
			Keys:     keyManager,
			KEK:      kek,
			Enforcer: enforcer,
			Users:    userRepo,
			Admins:   adminRepo,
			Clients:  clientRepo,
			RBAC:     rbacRepo,
			SessRepo: sessionRepo,
			AuditLog: auditRepo,
		})

		sweepCtx, cancelSweep := context.WithCancel(ctx)
		defer cancelSweep()
		go sweeper.New(codeRepo, pendingRepo, sessionRepo, pakeSvc).Run(sweepCtx)

		userSrv := &http.Server{
			Addr:         cfg.UserAddr,
			Handler:      server.NewH2CHandler(srv.NewUserRouter()),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		adminSrv := &http.Server{
			Addr:         cfg.AdminAddr,
			Handler:      server.NewH2CHandler(srv.NewAdminRouter()),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 2)
		go func() {
			log.Printf("Starting user realm on %s (issuer %s)", cfg.UserAddr, cfg.Issuer)
			serverErrors <- userSrv.ListenAndServe()
		}()
		go func() {
			log.Printf("Starting admin realm on %s", cfg.AdminAddr)
			serverErrors <- adminSrv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("Received signal %v, shutting down gracefully", sig)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := userSrv.Shutdown(shutdownCtx); err != nil {
				userSrv.Close()
				return fmt.Errorf("user realm shutdown failed: %w", err)
			}
			if err := adminSrv.Shutdown(shutdownCtx); err != nil {
				adminSrv.Close()
				return fmt.Errorf("admin realm shutdown failed: %w", err)
			}

			log.Printf("Server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
