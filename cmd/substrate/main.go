// Command substrate runs the program-visualization substrate daemon: it
// loads configuration, opens the vat registry and module manager, starts
// the broadcast hub and process scanner, and serves the map over HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geometryos/substrate/internal/agent"
	"github.com/geometryos/substrate/internal/broadcast"
	"github.com/geometryos/substrate/internal/config"
	"github.com/geometryos/substrate/internal/module"
	"github.com/geometryos/substrate/internal/scanner"
	"github.com/geometryos/substrate/internal/tensorfold"
	"github.com/geometryos/substrate/internal/vat"
)

func main() {
	var (
		logLevel = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	vatRegistry := vat.NewRegistry(cfg.VatDir)
	vatRegistry.SetLogger(logger)

	moduleManager := module.NewManager(vatRegistry, nil, true)
	moduleManager.SetLogger(logger)

	hub := broadcast.NewHub()
	hub.SetLogger(logger)
	hub.StartCleanup()

	tensorfold.SetLogger(logger)
	if err := tensorfold.RegisterAccelerator(tensorfold.NewWGPUAccelerator()); err != nil {
		logger.Warn("GPU accelerator unavailable, folding on CPU", "err", err)
	}
	defer tensorfold.CloseAccelerator()

	procScanner := scanner.NewManager()
	agentManager := agent.NewManager(64)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runTickLoop(ctx, logger, moduleManager, procScanner, agentManager, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		clientID := r.RemoteAddr
		if err := hub.ServeWS(w, r, clientID); err != nil {
			logger.Debug("websocket client disconnected", "client", clientID, "err", err)
		}
	})

	srv := &http.Server{Addr: cfg.BroadcastBindAddr, Handler: mux}
	go func() {
		logger.Info("substrate listening", "addr", cfg.BroadcastBindAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	moduleManager.UnloadAll()
	hub.Shutdown()
}

func runTickLoop(ctx context.Context, logger *slog.Logger, mm *module.Manager, ps *scanner.Manager, am *agent.Manager, hub *broadcast.Hub) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	var seq int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mm.UpdateAll()
			mm.CheckForChanges()

			if _, err := ps.Refresh(); err != nil {
				logger.Warn("process scan failed", "err", err)
			}

			seq++
			am.Update(0.5, pseudoRandom(seq))

			hub.BroadcastHeartbeat(time.Now().UnixMilli())
		}
	}
}

// pseudoRandom returns a deterministic generator seeded by tick count, used
// for agents' wander-goal synthesis so runs are reproducible.
func pseudoRandom(seed int) func(uint32) uint32 {
	state := uint32(seed)*2654435761 + 1
	return func(n uint32) uint32 {
		if n == 0 {
			return 0
		}
		state = state*2654435761 + 1
		return state % n
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
