package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sadopc/sealtrack/internal/logger"
	"github.com/sadopc/sealtrack/internal/replica"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the command that runs a sync server. The server
// only ever sees encrypted documents.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr, dir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a sync server for encrypted replicas",
		Long: `Serve the replication endpoints that clients sync with. Databases are
kept in --dir, or in memory when no directory is given. Prometheus metrics
are exposed at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			if !cmd.Flags().Changed("addr") {
				addr = cfg.ReplicaAddr
			}
			if !cmd.Flags().Changed("dir") {
				dir = cfg.ReplicaDir
			}

			log, err := logger.New(cfg.AppName+"-replica", logger.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Out:    cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return serve(ctx, ln, dir, log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (env SEALTRACK_REPLICA_ADDR)")
	cmd.Flags().StringVar(&dir, "dir", "", "database directory, empty for in-memory (env SEALTRACK_REPLICA_DIR)")

	return cmd
}

func newReplicaHandler(srv *replica.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", srv)
	return mux
}

// serve runs until ctx is cancelled, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, dir string, log zerolog.Logger) error {
	srv := replica.NewServer(dir, log)
	defer srv.Close()

	server := &http.Server{
		Handler:           newReplicaHandler(srv),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("dir", dir).Msg("replica server starting")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down replica server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("replica server exited")
	return nil
}
