// Package main provides the govern server entry point. It hosts the
// skill gateway, the MCP surface, and the ledger read API in a single
// process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang/glog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/agentplane/govern/pkg/agents"
	"github.com/agentplane/govern/pkg/config"
	"github.com/agentplane/govern/pkg/gateway"
	"github.com/agentplane/govern/pkg/ledger"
	"github.com/agentplane/govern/pkg/orgs"
	"github.com/agentplane/govern/pkg/policy"
	"github.com/agentplane/govern/pkg/registry"
	"github.com/agentplane/govern/pkg/tasks"
)

// version is overridden at build time via -ldflags.
var version = "0.1.0"

func main() {
	var (
		listenAddr string
		configPath string
	)

	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides config)")
	flag.StringVar(&configPath, "config", "", "Path to server config file")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	// Set up structured logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader, err := config.Load(configPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}
	cfg := loader.Config()
	if listenAddr == "" {
		listenAddr = cfg.Listen
	}

	logger.Info("starting govern server",
		"listen", listenAddr,
		"config", configPath,
		"dbType", cfg.Database.Type,
		"policyMode", cfg.Policy.Mode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := setupDatabase(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	resources := registry.NewStore(db)
	versions := registry.NewVersionStore(db)
	agentStore := agents.NewStore(db)
	links := policy.NewLinkStore(db)

	var sink ledger.Sink
	if cfg.Sink.Path != "" {
		sink = ledger.NewFileSink(cfg.Sink.Path)
		logger.Info("using file audit sink", "path", cfg.Sink.Path)
	}
	ledgerStore := ledger.NewStore(db, sink, logger)

	for name, migrate := range map[string]func() error{
		"registry": resources.AutoMigrate,
		"agents":   agentStore.AutoMigrate,
		"grants":   links.AutoMigrate,
		"ledger":   ledgerStore.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			glog.Fatalf("Failed to migrate %s tables: %v", name, err)
		}
	}

	gate, err := buildGate(cfg.Policy, links)
	if err != nil {
		glog.Fatalf("Failed to configure policy gate: %v", err)
	}
	switcher := policy.NewSwitcher(gate)
	logger.Info("policy gate ready",
		"mode", cfg.Policy.Mode,
		"requireApprovedAgents", cfg.Policy.RequireApprovedAgents,
	)

	// Swap the policy strategy in place when the config file changes.
	loader.Watch(logger, func(next *config.Config) {
		nextGate, err := buildGate(next.Policy, links)
		if err != nil {
			logger.Error("ignoring policy change", "mode", next.Policy.Mode, "error", err)
			return
		}
		switcher.Use(nextGate)
		logger.Info("policy gate swapped",
			"mode", next.Policy.Mode,
			"requireApprovedAgents", next.Policy.RequireApprovedAgents,
		)
	})

	auth, err := setupAuth(cfg.Auth, logger)
	if err != nil {
		glog.Fatalf("Failed to configure auth: %v", err)
	}

	orgMode, err := parseOrgMode(cfg.Orgs.Mode)
	if err != nil {
		glog.Fatalf("Failed to configure orgs: %v", err)
	}

	svc := gateway.NewService(gateway.Service{
		Resources: resources,
		Versions:  versions,
		Agents:    agentStore,
		Gate:      switcher,
		Links:     links,
		Ledger:    ledgerStore,
		Cache: tasks.NewTTLCache(cfg.Cache.MaxSize,
			time.Duration(cfg.Cache.TTLSeconds)*time.Second),
		Poller: gateway.NewPoller(
			time.Duration(cfg.Poll.DefaultTimeoutMs)*time.Millisecond,
			time.Duration(cfg.Poll.MaxTimeoutMs)*time.Millisecond,
			logger,
		),
		Version: version,
		Logger:  logger,
	})

	router := svc.MountRoutes(auth, orgMode)

	logger.Info("govern server ready",
		"listen", listenAddr,
		"skills", len(svc.Skills().List()),
	)

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("govern server stopped")
}

func setupDatabase(dbType, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required (set database.dsn or GOVERN_DATABASE_DSN)")
	}

	var dialector gorm.Dialector
	switch dbType {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database type %q (expected postgres, mysql, or sqlite)", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dbType, err)
	}
	return db, nil
}

func buildGate(cfg config.PolicyConfig, links *policy.LinkStore) (policy.Gate, error) {
	switch policy.Mode(cfg.Mode) {
	case policy.ModeLinks:
		gate := policy.NewLinkGate(links)
		gate.RequireApproved = cfg.RequireApprovedAgents
		return gate, nil
	case policy.ModeDomains:
		gate := policy.NewDomainGate()
		gate.RequireApproved = cfg.RequireApprovedAgents
		return gate, nil
	default:
		return nil, fmt.Errorf("unknown policy mode %q (expected links or domains)", cfg.Mode)
	}
}

func setupAuth(cfg config.AuthConfig, logger *slog.Logger) (*gateway.Authenticator, error) {
	switch cfg.Mode {
	case "jwt":
		if cfg.PublicKeyPath == "" {
			return nil, fmt.Errorf("auth.publicKeyPath is required when auth.mode is jwt")
		}
	case "passthrough", "":
		// Principal comes from verified-upstream headers or JWT claims
		// without signature verification.
	default:
		return nil, fmt.Errorf("unknown auth mode %q (expected jwt or passthrough)", cfg.Mode)
	}
	return gateway.NewAuthenticator(gateway.AuthenticatorConfig{
		PublicKeyPath: cfg.PublicKeyPath,
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Logger:        logger,
	})
}

func parseOrgMode(mode string) (orgs.Mode, error) {
	switch mode {
	case "single":
		return orgs.ModeSingle, nil
	case "header", "":
		return orgs.ModeHeader, nil
	default:
		return "", fmt.Errorf("unknown orgs mode %q (expected single or header)", mode)
	}
}
