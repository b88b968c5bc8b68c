package cli

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/memory-server/internal/httpapi"
	"github.com/rcliao/memory-server/internal/logging"
	"github.com/rcliao/memory-server/internal/mcptools"
)

// ShutdownTimeout bounds the graceful HTTP shutdown.
const ShutdownTimeout = 10 * time.Second

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API with the MCP SSE transport",
		Long:  "Serve the JSON HTTP API, Prometheus metrics and the MCP SSE transport (/sse, /message) on HTTP_SERVER_HOST:HTTP_SERVER_PORT.",
		Run:   runServe,
	}

	stdioCmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP over stdin and stdout",
		Long:  "Serve MCP over stdin and stdout. Logs go to stderr. With HTTP_SERVER_ENABLED=true the HTTP API is served alongside.",
		Run:   runStdio,
	}

	RootCmd.AddCommand(serveCmd, stdioCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	a := mustOpenApp(cmd)
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mcpServer := newMCPServer(a)
	sse := mcptools.NewSSE(mcpServer, "http://"+net.JoinHostPort(publicHost(cfg.HTTPServerHost), strconv.Itoa(cfg.HTTPServerPort)))
	srv := newHTTPServer(a, sse)

	logger.Info("storage", "dir", a.where.Dir, "source", a.where.Source, "provider", cfg.StorageProvider)
	if err := serveHTTP(ctx, srv, listenAddr()); err != nil {
		exitErr("serve", err)
	}
}

func runStdio(cmd *cobra.Command, args []string) {
	a := mustOpenApp(cmd)
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mcpServer := newMCPServer(a)
	logger.Info("storage", "dir", a.where.Dir, "source", a.where.Source, "provider", cfg.StorageProvider)

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	g.Go(func() error {
		defer cancel()
		err := mcptools.ServeStdio(ctx, mcpServer, logging.Component(logger, "stdio"))
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return nil
		}
		return err
	})
	if cfg.HTTPServerEnabled {
		srv := newHTTPServer(a, nil)
		g.Go(func() error {
			return serveHTTP(ctx, srv, listenAddr())
		})
	}

	if err := g.Wait(); err != nil {
		exitErr("stdio", err)
	}
}

func newMCPServer(a *app) *server.MCPServer {
	return mcptools.NewServer(cfg.MCPServerName, &mcptools.Deps{
		Service:       a.svc,
		DefaultUserID: cfg.DefaultUserID,
		SearchLimit:   cfg.MaxSearchResults,
		Metrics:       a.metrics,
		Logger:        logging.Component(logger, "mcp"),
	})
}

func newHTTPServer(a *app, sse *server.SSEServer) *httpapi.Server {
	return httpapi.New(httpapi.Options{
		Service:         a.svc,
		DefaultUserID:   cfg.DefaultUserID,
		APIToken:        cfg.APIToken,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		CORSOrigins:     cfg.CORSOrigins,
		Production:      cfg.Production(),
		Transport:       cfg.Transport,
		SSE:             sse,
		Metrics:         a.metrics,
		Logger:          logging.Component(logger, "http"),
	})
}

func listenAddr() string {
	return net.JoinHostPort(cfg.HTTPServerHost, strconv.Itoa(cfg.HTTPServerPort))
}

// publicHost maps wildcard bind addresses to a host clients can dial.
func publicHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::":
		return "localhost"
	}
	return host
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *httpapi.Server, addr string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "listen on %s", addr)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
