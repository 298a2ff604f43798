// Command appgen is the process entrypoint: it wires the Inference Client,
// Sandbox Client, Phase Executor, Generation Pipeline, Deploy Target,
// Agent Registry, and Client Stream Protocol into one running HTTP/
// WebSocket server, following the teacher's cmd/maestro/main.go shape
// (flag-parsed config path, NewOrchestrator-style construction function,
// signal-driven graceful shutdown) narrowed to this module's single
// long-lived server process rather than a multi-agent dispatcher loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"appgen/pkg/config"
	"appgen/pkg/conversation"
	"appgen/pkg/deploy"
	"appgen/pkg/generate"
	"appgen/pkg/inference"
	"appgen/pkg/logx"
	"appgen/pkg/metrics"
	"appgen/pkg/persistence"
	"appgen/pkg/phase"
	"appgen/pkg/ratelimit"
	"appgen/pkg/registry"
	"appgen/pkg/sandbox"
	"appgen/pkg/session"
	"appgen/pkg/wsserver"
)

// sweepSchedule is the cron expression the Agent Registry validates at
// startup; the sweep cadence itself is derived from idleTimeout, which is
// how long an agent may go unaccessed before a sweep evicts it. Both mirror
// defaults the teacher's own
// lease/eviction sweeps use for background housekeeping cadence.
const (
	sweepSchedule = "*/5 * * * *"
	idleTimeout   = 30 * time.Minute
)

func main() {
	var configPath string
	var addr string
	var previewAddr string
	var publicURL string
	flag.StringVar(&configPath, "config", "", "Path to YAML config file (optional; defaults are used if absent)")
	flag.StringVar(&addr, "addr", "", "Override the control-plane listen address (host:port)")
	flag.StringVar(&previewAddr, "preview-addr", "127.0.0.1:0", "Listen address for the local preview/deploy target")
	flag.StringVar(&publicURL, "public-url", "", "Externally reachable base URL for this process (default: derived from -addr)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if publicURL == "" {
		publicURL = "http://" + hostPart(cfg.Server.Addr)
	}

	if err := checkDependencies(cfg); err != nil {
		log.Fatalf("missing required configuration: %v", err)
	}

	logger := logx.NewLogger("appgen")

	app, err := newApplication(cfg, previewAddr, publicURL, logger)
	if err != nil {
		log.Fatalf("build application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.registry.StartSweep(ctx)

	go func() {
		logger.Info("listening on %s", cfg.Server.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	app.shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

// hostPart strips a leading ":" from an addr like ":8080" so a derived
// public URL reads as "http://localhost:8080" rather than "http://:8080".
func hostPart(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

// checkDependencies verifies the inference provider credential the
// configured default model needs is available, prompting on the
// controlling terminal (without echoing input) if it's missing from the
// environment — mirroring the teacher's term.ReadPassword prompt for
// secrets the user hasn't supplied non-interactively.
func checkDependencies(cfg *config.Config) error {
	model, err := config.ModelConfigFor(cfg, cfg.DefaultModel)
	if err != nil {
		return err
	}

	envVar := providerEnvVar(model.Provider)
	if envVar == "" {
		return fmt.Errorf("unknown inference provider %q for model %q", model.Provider, model.Name)
	}
	if os.Getenv(envVar) != "" {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("%s is not set and no terminal is attached to prompt for it", envVar)
	}

	fmt.Printf("%s is not set. Enter it now (input hidden): ", envVar)
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read %s: %w", envVar, err)
	}
	if len(key) == 0 {
		return fmt.Errorf("%s must not be empty", envVar)
	}
	return os.Setenv(envVar, string(key))
}

func providerEnvVar(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

// application bundles the long-lived resources main needs to start and
// stop cleanly.
type application struct {
	httpServer *http.Server
	registry   *registry.Registry
	preview    *deploy.LocalPreview
	logger     *logx.Logger
}

// newApplication constructs every collaborator and wires the registry
// Factory closure, following the teacher's NewOrchestrator shape: one
// function that either returns a fully constructed application or an error
// explaining which startup step failed. It starts nothing; main starts the
// registry sweep and the HTTP listener afterwards.
func newApplication(cfg *config.Config, previewAddr, publicURL string, logger *logx.Logger) (*application, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	dbPath := filepath.Join(cfg.DataDir, "appgen.db")
	if err := persistence.Initialize(dbPath); err != nil {
		return nil, fmt.Errorf("initialize persistence: %w", err)
	}
	store := persistence.NewStore(persistence.GetDB())
	logger.Info("persistence ready at %s", dbPath)

	inferenceClient, err := newInferenceClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("construct inference client: %w", err)
	}

	sandboxRoot := filepath.Join(cfg.DataDir, "sandboxes")
	sandboxClient, err := sandbox.NewLocalClient(sandboxRoot)
	if err != nil {
		return nil, fmt.Errorf("construct sandbox client: %w", err)
	}

	registerer := prometheus.NewRegistry()
	recorder := metrics.New(registerer)

	preview, err := deploy.NewLocalPreview(previewAddr, publicURL, sandboxClient)
	if err != nil {
		return nil, fmt.Errorf("construct preview deploy target: %w", err)
	}

	phaseExecutor := phase.New(inferenceClient, sandboxClient)
	gate := ratelimit.New(cfg.RateLimit)

	factory := func(agentID string) *session.Agent {
		return session.NewAgent(agentID, session.Deps{
			Store:        store,
			Bootstrap:    generate.NewBootstrap(sandboxClient, agentID, ""),
			Blueprint:    generate.NewBlueprint(inferenceClient),
			Phases:       phaseExecutor,
			Deploy:       preview,
			Conversation: conversation.NewSessionAdapter(conversation.New(inferenceClient), inferenceClient.ModelName()),
			Metrics:      recorder,
		})
	}

	reg, err := registry.New(factory, idleTimeout, sweepSchedule)
	if err != nil {
		return nil, fmt.Errorf("construct agent registry: %w", err)
	}

	server := wsserver.New(reg, gate, preview, publicURL)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &application{httpServer: httpServer, registry: reg, preview: preview, logger: logger}, nil
}

// newInferenceClient selects the concrete inference.Client implementation
// for the configured default model's provider.
func newInferenceClient(cfg *config.Config) (inference.Client, error) {
	model, err := config.ModelConfigFor(cfg, cfg.DefaultModel)
	if err != nil {
		return nil, err
	}

	switch model.Provider {
	case "anthropic":
		return inference.NewAnthropicClient(os.Getenv("ANTHROPIC_API_KEY"), model.Name), nil
	case "openai":
		return inference.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), model.Name), nil
	default:
		return nil, fmt.Errorf("unsupported inference provider %q", model.Provider)
	}
}

func (a *application) shutdown(ctx context.Context) {
	a.registry.StopSweep()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown: %v", err)
	}
	if err := persistence.Close(); err != nil {
		a.logger.Error("close persistence: %v", err)
	}
}
