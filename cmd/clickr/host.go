package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/clickr/internal/host"
	"github.com/jmylchreest/clickr/internal/metrics"
	"github.com/jmylchreest/clickr/internal/session"
)

var hostOpts struct {
	addr    string
	port    int
	metrics bool
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Accept a client and push pings to it",
	Long: `Run the host side of the relay.

The host listens for a single WebSocket client on the configured route
(default /heart). A newer client always replaces the current one. Pings
arrive through the local trigger socket written to by 'clickr ping', and a
heartbeat is pushed every few seconds so the client can detect a dead link.`,
	Args: cobra.NoArgs,
	RunE: runHost,
}

func init() {
	rootCmd.AddCommand(hostCmd)

	hostCmd.Flags().StringVar(&hostOpts.addr, "addr", "",
		"Address to bind (default from config: 0.0.0.0)")
	hostCmd.Flags().IntVarP(&hostOpts.port, "port", "p", 0,
		"Port to bind (default from config: 63063)")
	hostCmd.Flags().BoolVar(&hostOpts.metrics, "metrics", false,
		"Serve Prometheus metrics at /metrics")
}

func runHost(cmd *cobra.Command, args []string) error {
	hc := cfg.Host
	if cmd.Flags().Changed("addr") {
		hc.Addr = hostOpts.addr
	}
	if cmd.Flags().Changed("port") {
		hc.Port = hostOpts.port
	}
	if cmd.Flags().Changed("metrics") {
		hc.Metrics = hostOpts.metrics
	}

	var collector metrics.Collector = metrics.NewNop()
	var opts []host.Option
	opts = append(opts, host.WithLogger(logger))

	if hc.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		prom := metrics.NewPrometheus(reg, "")
		collector = prom
		opts = append(opts, host.WithMetrics(prom, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	registry := session.NewRegistry(
		session.WithLogger(logger),
		session.WithMetrics(collector),
		session.WithWriteTimeout(hc.WriteTimeout.Duration()),
	)

	srv := host.New(host.Config{
		Addr:              hc.Addr,
		Port:              hc.Port,
		Path:              hc.Path,
		SocketPath:        cfg.IPC.Socket,
		HeartbeatInterval: hc.HeartbeatInterval.Duration(),
		IPCReadTimeout:    cfg.IPC.ReadTimeout.Duration(),
	}, registry, opts...)

	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
