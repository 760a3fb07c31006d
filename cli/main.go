package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/wirecap/wirecap/core"
	"github.com/wirecap/wirecap/core/capture"
	"github.com/wirecap/wirecap/core/certs"
	"github.com/wirecap/wirecap/core/config"
	"github.com/wirecap/wirecap/pkg/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	logLevel  string
	logFormat string
	config    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "wirecap",
		Short:         "Intercepting HTTP(S) proxy that captures traffic",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.InitLogger(flags.logLevel, flags.logFormat, zapcore.AddSync(cmd.ErrOrStderr()))
		},
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "console", "Log format (console, json)")
	root.PersistentFlags().StringVar(&flags.config, "config", "", "Path to the options YAML file")

	root.AddCommand(newServeCmd(flags), newCACmd(flags))
	return root
}

func loadOptions(path string) (*config.Options, error) {
	if path == "" {
		return &config.Options{}, nil
	}
	return config.LoadOptionsFile(path)
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		host        string
		port        int
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions(flags.config)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, host, port, metricsAddr, opts)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Address to listen on")
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on, 0 picks a free one")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func serve(ctx context.Context, host string, port int, metricsAddr string, opts *config.Options) error {
	logger := logging.GetLogger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server, err := core.NewServer(host, port, opts, logger, core.WithRegisterer(reg))
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer metricsSrv.Close()
		logger.Info("Serving metrics", "address", metricsAddr)
	}

	go func() {
		<-ctx.Done()
		logger.Info("Received shutdown signal, stopping proxy...")
		if err := server.Shutdown(); err != nil {
			logger.Error("Error stopping proxy", "error", err)
		}
	}()

	logger.Info("Clients must trust the CA certificate", "path", server.CACertPath())
	return server.Run()
}

func newCACmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ca",
		Short: "Write the interception CA and print the certificate path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions(flags.config)
			if err != nil {
				return err
			}
			path, err := extractCA(opts)
			if err != nil {
				return err
			}
			return printPath(cmd.OutOrStdout(), path)
		},
	}
}

// extractCA places the CA where a server built from opts would.
func extractCA(opts *config.Options) (string, error) {
	base := opts.RequestStorageBaseDir
	if base == "" {
		base = os.TempDir()
	}
	home := filepath.Join(base, capture.HomeDirName)

	var src *certs.Source
	if opts.CACert != "" {
		var err error
		if src, err = certs.FromFiles(opts.CACert, opts.CAKey); err != nil {
			return "", err
		}
	}
	if err := certs.Extract(home, src); err != nil {
		return "", err
	}
	return filepath.Join(home, certs.CertFile), nil
}

func printPath(w io.Writer, path string) error {
	_, err := fmt.Fprintln(w, path)
	return err
}
