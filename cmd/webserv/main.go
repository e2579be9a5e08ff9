// Command webserv runs the HTTP/1.1 origin server described in
// SPEC_FULL.md, grounded on cmd/caddy/main.go and caddy/caddymain's
// cobra root command shape.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/phspeters/webserv-sub000/internal/config"
	"github.com/phspeters/webserv-sub000/internal/httpserver"
	"github.com/phspeters/webserv-sub000/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		confPath string
		validate bool
		logJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "webserv",
		Short: "A single-threaded, epoll-driven HTTP/1.1 origin server",
		RunE: func(_ *cobra.Command, _ []string) error {
			level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
			if err := logging.Init(logJSON, level); err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer logging.Sync()
			log := logging.Log("main")

			// Match GOMAXPROCS/GOMEMLIMIT to the container quota, if any,
			// the same way the teacher's cmd/main.go does unconditionally
			// at process start.
			undoMaxprocs, err := maxprocs.Set(maxprocs.Logger(log.Infof))
			defer undoMaxprocs()
			if err != nil {
				log.Warnw("failed to set GOMAXPROCS", "error", err)
			}
			_, _ = memlimit.SetGoMemLimitWithOpts(
				memlimit.WithLogger(slog.New(zapslog.NewHandler(logging.Log("memlimit").Desugar().Core()))),
				memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
			)

			cfg, err := config.ParseFile(confPath)
			if err != nil {
				return fmt.Errorf("loading %s: %w", confPath, err)
			}
			log.Infow("configuration loaded", "virtual_hosts", len(cfg.VirtualHosts))

			if validate {
				log.Infow("configuration is valid", "file", confPath)
				return nil
			}

			srv, err := httpserver.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("starting server: %w", err)
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			signal.Ignore(syscall.SIGPIPE)
			go func() {
				<-sig
				log.Infow("shutdown signal received")
				srv.Stop()
			}()

			// Reap every exited CGI child, without blocking, whenever
			// SIGCHLD arrives.
			chld := make(chan os.Signal, 1)
			signal.Notify(chld, syscall.SIGCHLD)
			go func() {
				for range chld {
					for {
						var ws syscall.WaitStatus
						if pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil); err != nil || pid <= 0 {
							break
						}
					}
				}
			}()

			err = srv.Run()
			snap := srv.Metrics()
			log.Infow("server stopped",
				"accepted_connections", snap.AcceptedConnections,
				"active_connections", snap.ActiveConnections,
				"requests_served", snap.RequestsServed,
				"cgi_invocations", snap.CGIInvocations,
				"timeouts_closed", snap.TimeoutsClosed,
			)
			return err
		},
	}

	cmd.Flags().StringVarP(&confPath, "conf", "c", "webserv.conf", "path to the server configuration file")
	cmd.Flags().BoolVarP(&validate, "test", "t", false, "validate the configuration file and exit")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "emit structured JSON logs instead of console-formatted logs")

	return cmd
}
