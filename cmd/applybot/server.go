package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/applybot/internal/api"
	"github.com/kalambet/applybot/internal/config"
	"github.com/kalambet/applybot/internal/llm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger, answers and costs over HTTP and MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		noMCP, _ := cmd.Flags().GetBool("no-mcp")
		return runServer(noMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applybot status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("no-mcp", false, "do not serve MCP on stdin/stdout")
}

func runServer(noMCP bool) error {
	fmt.Fprintf(os.Stderr, "applybot version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)

	token, err := config.APIToken(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	logger.Info("API bearer token available")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	handler := api.NewHandler(api.Deps{
		Store:              store,
		Token:              token,
		ApplyOnceAtCompany: cfg.Apply.OnceAtCompany,
		Logger:             logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("applybot listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if !noMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:              store,
			ApplyOnceAtCompany: cfg.Apply.OnceAtCompany,
			Logger:             logger,
		}, version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
		}()
		logger.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func showStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	printStatus("Model", "%s (%s)", cfg.LLM.Model, cfg.LLM.Vendor)
	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Data.Dir)
	if _, err := config.ValidateDataFolder(cfg.Data.Dir); err != nil {
		printStatus("Data folder", "incomplete: %v", err)
	} else {
		printStatus("Data folder", "ready")
	}

	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	return serverStatus(ctx, client, cfg.Server.Port)
}

// serverStatus reports the health of a running serve and, when it is up, the
// totals it serves.
func serverStatus(ctx context.Context, client *apiClient, port int) error {
	code, err := client.health(ctx)
	switch {
	case err != nil:
		printStatus("Server", "stopped")
		return nil
	case code != http.StatusOK:
		printStatus("Server", "error (HTTP %d)", code)
		return nil
	}
	printStatus("Server", "running on port %d", port)

	resp, err := client.get(ctx, "/costs")
	if err != nil {
		return err
	}
	var sum llm.CostSummary
	if err := decodeJSON(resp, &sum); err != nil {
		return err
	}
	printStatus("Model calls", "%d", sum.Calls)
	printStatus("Cost", "$%.4f", sum.Cost)

	resp, err = client.get(ctx, "/ledger")
	if err != nil {
		return err
	}
	var views []api.LedgerView
	if err := decodeJSON(resp, &views); err != nil {
		return err
	}
	jobs := 0
	for _, v := range views {
		for _, js := range v.Companies {
			jobs += len(js)
		}
	}
	printStatus("Ledger", "%d identities, %d jobs", len(views), jobs)
	return nil
}
