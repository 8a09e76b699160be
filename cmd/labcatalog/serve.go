package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"labcatalog/internal/config"
)

// Error is the error class for command failures.
var Error = errs.Class("labcatalog")

func newServeCmd(g *globals) *cobra.Command {
	var trace bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (REST API, UI and metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts appOptions
			if trace {
				opts.trace = os.Stderr
			}
			a, err := openApp(cmd.Context(), g.cfg, g.log, opts)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.close(); err != nil {
					g.log.Warn("close store", zap.Error(err))
				}
			}()
			handler, err := a.handler(g.cfg, g.log)
			if err != nil {
				return err
			}
			listener, err := net.Listen("tcp", g.cfg.HTTP.Addr)
			if err != nil {
				return Error.Wrap(err)
			}
			return newServer(g.cfg.HTTP, handler, listener, g.log).Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&trace, "trace", false, "write one JSON trace line per service operation to stderr")
	return cmd
}

// server owns the listener and shuts down when its context ends.
type server struct {
	log      *zap.Logger
	listener net.Listener
	server   http.Server
	shutdown time.Duration
}

func newServer(cfg config.HTTPConfig, handler http.Handler, listener net.Listener, log *zap.Logger) *server {
	return &server{
		log:      log,
		listener: listener,
		shutdown: cfg.ShutdownTimeout,
		server: http.Server{
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			ErrorLog:          zap.NewStdLog(log.Named("http")),
		},
	}
}

// Run serves until ctx is canceled or serving fails.
func (s *server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), s.shutdown)
		defer done()
		return Error.Wrap(s.server.Shutdown(shutdownCtx))
	})
	group.Go(func() error {
		defer cancel()
		s.log.Info("listening", zap.Stringer("addr", s.listener.Addr()))
		err := s.server.Serve(s.listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}
