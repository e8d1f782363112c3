package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jetlinks-ai/aistaff/internal/agent"
	"github.com/jetlinks-ai/aistaff/internal/artifacts"
	"github.com/jetlinks-ai/aistaff/internal/auth"
	"github.com/jetlinks-ai/aistaff/internal/browser"
	"github.com/jetlinks-ai/aistaff/internal/config"
	"github.com/jetlinks-ai/aistaff/internal/docgen"
	"github.com/jetlinks-ai/aistaff/internal/gateway"
	"github.com/jetlinks-ai/aistaff/internal/httpapi"
	"github.com/jetlinks-ai/aistaff/internal/providers"
	"github.com/jetlinks-ai/aistaff/internal/sessions"
	"github.com/jetlinks-ai/aistaff/internal/store"
	"github.com/jetlinks-ai/aistaff/internal/tools"
	"github.com/jetlinks-ai/aistaff/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the AIStaff server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}
	if cfg.Server.AuthSecret == "" {
		slog.Error("AISTAFF_AUTH_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry.Enabled, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		slog.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	db, err := store.Open(cfg.Database.DSN)
	if err != nil {
		slog.Error("open store failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.MigrateUp(); err != nil {
		slog.Error("migrate failed", "error", err)
		os.Exit(1)
	}

	secret := []byte(cfg.Server.AuthSecret)
	artifactStore, err := artifacts.New(cfg.Outputs.Dir, db, artifacts.NewTokenSigner(secret))
	if err != nil {
		slog.Error("artifact store failed", "error", err)
		os.Exit(1)
	}
	go artifacts.NewGC(artifactStore, cfg.Outputs.TTL.Std(), cfg.Outputs.GCCron).Run(ctx)

	sessionStore := sessions.NewStore(sessions.Config{
		TTL:                cfg.Sessions.TTL.Std(),
		MaxSessions:        cfg.Sessions.MaxSessions,
		MaxSessionMessages: cfg.Sessions.MaxSessionMessages,
	}, db)
	defer sessionStore.Close()

	providerSet, err := buildProviders(cfg)
	if err != nil {
		slog.Error("provider setup failed", "error", err)
		os.Exit(1)
	}

	browserMgr := browser.NewManager(true)
	defer browserMgr.CloseAll()

	assembler := agent.NewAssembler(cfg.Server.RolesDir)
	defer assembler.Close()

	loop := &agent.Loop{
		Providers:       providerSet,
		Registry:        tools.NewCatalog(),
		MaxSteps:        cfg.Limits.MaxSteps,
		ProviderTimeout: providerTimeout(cfg),
	}

	handlers := &httpapi.Handlers{
		Cfg:       cfg,
		Store:     db,
		Snapshots: store.NewSnapshots(cfg.Sessions.SnapshotDir),
		Sessions:  sessionStore,
		Loop:      loop,
		Assembler: assembler,
		Artifacts: artifactStore,
		Browser:   browserMgr,
		Renderer:  docgen.NewOOXML(),
	}

	server := gateway.NewServer(cfg.Server.ListenAddr, handlers, auth.NewJWTResolver(secret), cfg.Server.RateLimitRPS)
	if err := server.Start(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func buildProviders(cfg *config.Config) (*providers.Set, error) {
	native := providers.NewNative(cfg.Providers.Native.APIBase, cfg.Providers.Native.APIKey, modelOr(cfg.Providers.Native.Model, cfg.Providers.Model))

	var others []providers.Provider
	if cfg.Providers.OpenCode.BaseURL != "" {
		others = append(others, providers.NewOpenCode(cfg.Providers.OpenCode.BaseURL, cfg.Providers.OpenCode.Model))
	}
	if cfg.Providers.Codex.Binary != "" {
		others = append(others, providers.NewCodex(cfg.Providers.Codex.Binary, cfg.Providers.Codex.Args, cfg.Providers.Codex.Model))
	}
	if cfg.Providers.Pi.Binary != "" {
		others = append(others, providers.NewPi(cfg.Providers.Pi.Binary, cfg.Providers.Pi.Args, cfg.Providers.Pi.Model))
	}
	if cfg.Providers.Nanobot.Binary != "" {
		others = append(others, providers.NewNanobot(cfg.Providers.Nanobot.Binary, cfg.Providers.Nanobot.Args, cfg.Providers.Nanobot.Model))
	}

	set := providers.NewSet(cfg.Providers.Default, native, others...)
	if _, err := set.Get(cfg.Providers.Default); err != nil {
		return nil, fmt.Errorf("default provider: %w", err)
	}
	return set, nil
}

func modelOr(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

func providerTimeout(cfg *config.Config) time.Duration {
	if cfg.Providers.TimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(cfg.Providers.TimeoutSeconds) * time.Second
}
