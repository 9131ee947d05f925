package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/dashboard"
)

const defaultUIPort = 4173

// uiCommand starts the dashboard server, bound only to loopback since
// the dashboard assumes a trusted single-user host and has no
// authentication of its own.
func uiCommand(e *env) *command {
	return &command{
		name:    "ui",
		summary: "Start the loopback dashboard server",
		usage:   "tracker ui [port]",
		run: func(ctx context.Context, args []string) error {
			port := defaultUIPort
			if len(args) == 1 {
				parsed, err := planID(args[0])
				if err != nil {
					return clierr.InputError("invalid port %q", args[0])
				}
				port = int(parsed)
			} else if len(args) > 1 {
				return clierr.InputError("ui takes at most one <port> argument")
			}

			addr := fmt.Sprintf("127.0.0.1:%d", port)
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return clierr.IOError("binding %s: %w", addr, err)
			}

			srv := dashboard.New(e.Store, e.Driver, e.Worktrees, e.LogsDir, e.ConfigPath, e.Logger)
			server := &http.Server{
				Handler:     srv.Handler(),
				ReadTimeout: 30 * time.Second,
				// No write timeout: /api/plans/:id/logs and
				// /api/plans/:id/chat are long-lived SSE streams.
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Serve(listener)
			}()

			fmt.Printf("dashboard listening on http://%s\n", addr)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return clierr.IOError("dashboard server: %w", err)
				}
				return nil
			}
		},
	}
}
