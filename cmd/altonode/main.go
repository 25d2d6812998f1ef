package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DrC0ns0le/net-alto/internal/collector"
	"github.com/DrC0ns0le/net-alto/internal/config"
	"github.com/DrC0ns0le/net-alto/internal/metrics"
	"github.com/DrC0ns0le/net-alto/internal/server"
	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

func main() {
	cmd := &cobra.Command{
		Use:           "altonode",
		Short:         "Collect route tables, interface counters and addresses and upload them to the ALTO server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          run,
	}
	config.CommonFlags(cmd.Flags())
	config.NodeFlags(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		logging.Errorf("altonode: %v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.New(), cmd.Flags(), ".env")
	if err != nil {
		return err
	}
	if err := cfg.ValidateNode(); err != nil {
		return err
	}

	logging.SetDebug(cfg.Debug)
	logger := logging.NewDefaultLogger()
	logger.Infof("starting altonode for %s, uploading to %s", cfg.Collector.Device, cfg.Collector.Server)

	host, err := collector.NewLocalHost(cfg.Collector.Proc)
	if err != nil {
		return err
	}
	c := collector.New(collector.Config{
		Device:   cfg.Collector.Device,
		Interval: cfg.Collector.Interval,
		Vtysh:    cfg.Collector.Vtysh,
	}, host, collector.NewHTTPUploader(cfg.Collector.Server, cfg.Collector.Interval), logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.NewServerManager(logger,
		c,
		server.NewHTTPServer("metrics", cfg.MetricsListen, metrics.Handler(cfg.MetricsPath), logger),
	).Run(ctx)
}
