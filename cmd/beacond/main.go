// Command beacond runs the object coordinator behind its HTTP edge: the
// pub/sub and shared-object service described in spec.md.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/cvldata/beacon"
	"github.com/cvldata/beacon/httpapi"
	"github.com/cvldata/beacon/timeseries"
)

// CLI is the beacon command's flag surface, per spec.md §6.
type CLI struct {
	ReadOnly   bool     `help:"Reject every mutating endpoint with 404." name:"read-only"`
	Persist    string   `help:"Directory to persist objects to; transient if empty." name:"persist" type:"path"`
	Port       int      `help:"Port to listen on." default:"3193"`
	Any        bool     `help:"Bind all interfaces instead of loopback only."`
	Timeseries []string `help:"Path to a timeseries source (repeatable)." name:"timeseries"`
	SSL        bool     `help:"Serve over TLS." default:"true" negatable:""`
	Cert       string   `help:"PEM certificate file (required with --ssl)." type:"path"`
	Key        string   `help:"PEM private key file (required with --ssl)." type:"path"`
}

func main() {
	var cli CLI
	kong.Parse(&cli, kong.Description("Beacon pub/sub and shared-object service."))

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(cli, logger); err != nil {
		logger.Error("beacon exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cli CLI, logger *slog.Logger) error {
	if cli.SSL {
		if err := checkTLSCredentials(cli.Cert, cli.Key); err != nil {
			return err
		}
	}

	store := beacon.NewStore(logger)
	if cli.Persist != "" {
		if err := store.EnablePersistence(cli.Persist); err != nil {
			logger.Warn("failed to enable persistence, continuing in transient mode",
				slog.String("dir", cli.Persist), slog.Any("error", err))
		}
	}

	var tsManager *timeseries.Manager
	if len(cli.Timeseries) > 0 {
		m, err := timeseries.NewManager(cli.Timeseries)
		if err != nil {
			return fmt.Errorf("open timeseries sources: %w", err)
		}
		defer m.Close()
		tsManager = m
	}

	coordinator := beacon.NewCoordinator(store, logger)

	handler := httpapi.NewHandler(httpapi.Config{
		Store:       store,
		Coordinator: coordinator,
		Timeseries:  tsManager,
		ReadOnly:    cli.ReadOnly,
		Logger:      logger,
	})

	host := "127.0.0.1"
	if cli.Any {
		host = "0.0.0.0"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(cli.Port))

	server := &http.Server{Addr: addr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coordinator.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("beacon listening", slog.String("addr", addr), slog.Bool("ssl", cli.SSL), slog.Bool("read_only", cli.ReadOnly))
		var err error
		if cli.SSL {
			err = server.ListenAndServeTLS(cli.Cert, cli.Key)
		} else {
			err = server.ListenAndServe()
		}
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// shutdownGrace bounds how long the HTTP server waits for in-flight
// requests (including open /events streams) to drain on shutdown.
const shutdownGrace = 5 * time.Second

// checkTLSCredentials refuses to start when TLS was requested but the
// cert/key files are missing, printing the openssl invocation an operator
// needs to mint a self-signed pair. Message reproduced from the original
// server's startup check (spec.md §6).
func checkTLSCredentials(cert, key string) error {
	if cert == "" || key == "" || !fileExists(cert) || !fileExists(key) {
		return fmt.Errorf("SSL is enabled by default, but no certificate or key has been configured. Use --no-ssl to disable SSL.\n" +
			"To generate a self-signed certificate for localhost, execute the following command:\n\n" +
			"  openssl req -x509 -nodes -days 730 -newkey rsa:2048 -keyout key.pem -out cert.pem -config localhost-ssl.conf\n")
	}
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
