package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/notelink/internal/aiclient"
	"github.com/kalambet/notelink/internal/api"
	"github.com/kalambet/notelink/internal/concepts"
	"github.com/kalambet/notelink/internal/config"
	"github.com/kalambet/notelink/internal/editor"
	"github.com/kalambet/notelink/internal/portal"
	"github.com/kalambet/notelink/internal/ranking"
	"github.com/kalambet/notelink/internal/reorg"
	"github.com/kalambet/notelink/internal/simindex"
	"github.com/kalambet/notelink/internal/store"
	"github.com/kalambet/notelink/internal/syncsched"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the notelink server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running notelink server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show notelink system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "notelink.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "notelink version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	tokens := cfg.TokenMap()
	if len(tokens) == 0 {
		printWarning("no bearer tokens configured (NOTELINK_AUTH_TOKENS); all HTTP requests will be rejected")
	}

	// Refuse to double-start: probe the health endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("notelink is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("notelink is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// AI client and the extraction layer on top of it.
	ai := aiclient.New(aiclient.Options{
		BaseURL:      cfg.AI.BaseURL,
		APIKey:       cfg.AI.APIKey,
		EmbedModel:   cfg.AI.EmbedModel,
		ExtractModel: cfg.AI.ExtractModel,
		Timeout:      cfg.AITimeout(),
	})
	extractor := concepts.NewExtractor(ai)

	// Editor boundary, index, portals, scheduler. The dispatcher fans
	// editor notifications out to the portal manager and the scheduler.
	dispatcher := editor.NewDispatcher()
	mem := editor.NewMemory(dispatcher)
	idx := simindex.NewSQLiteIndex(st.DB())
	portals := portal.NewManager(portal.NewStore(st.DB()), mem)
	sched := syncsched.New(idx, ai, mem, syncsched.Options{Debounce: cfg.SyncDebounce()})
	dispatcher.Register(portals)
	dispatcher.Register(sched)
	defer sched.Close()

	recency := ranking.NewRecencyStore(st.DB())
	links := ranking.NewSearcher(mem, recency)
	orchestrator := reorg.New(extractor, ai, idx, portals, sched)

	// Catch up on documents whose index rows went missing while down.
	owners := map[string]bool{cfg.Auth.MCPOwner: true}
	for _, owner := range tokens {
		owners[owner] = true
	}
	for owner := range owners {
		if err := sched.CheckUnindexed(ctx, owner); err != nil {
			slog.Warn("unindexed check failed", "owner", owner, "error", err)
		}
	}

	handler := api.NewHandler(api.Deps{
		Embedder:   ai,
		Extractor:  extractor,
		Index:      idx,
		Reorg:      orchestrator,
		Portals:    portals,
		Links:      links,
		Recency:    recency,
		Scheduler:  sched,
		Editor:     mem,
		Budget:     st,
		RateLimit:  cfg.AI.RateLimit,
		RateWindow: cfg.AIRateWindow(),
		Tokens:     tokens,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP over stdio for agent clients.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		OwnerID:    cfg.Auth.MCPOwner,
		Embedder:   ai,
		Extractor:  extractor,
		Index:      idx,
		Budget:     st,
		RateLimit:  cfg.AI.RateLimit,
		RateWindow: cfg.AIRateWindow(),
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)", "owner", cfg.Auth.MCPOwner)

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "notelink listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("notelink is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop notelink (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to notelink (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Embed model", "%s", cfg.AI.EmbedModel)
	printStatus("Extract model", "%s", cfg.AI.ExtractModel)
	printStatus("Sync debounce", "%s", cfg.Sync.Debounce)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)

	// Per-document sync state if the server is up and a CLI token is set.
	if resp != nil && resp.StatusCode == 200 {
		if apiCli, err := newAPIClient(); err == nil {
			syncResp, err := apiCli.get(context.Background(), "/sync/status")
			if err == nil {
				var body struct {
					Documents []struct {
						DocumentID string `json:"document_id"`
						Failed     bool   `json:"failed"`
					} `json:"documents"`
				}
				if decodeJSON(syncResp, &body) == nil {
					failed := 0
					for _, d := range body.Documents {
						if d.Failed {
							failed++
						}
					}
					printStatus("Tracked docs", "%d (%d failed)", len(body.Documents), failed)
				}
			}
		}
	}

	return nil
}
