package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DrC0ns0le/net-alto/internal/alto"
	"github.com/DrC0ns0le/net-alto/internal/config"
	"github.com/DrC0ns0le/net-alto/internal/exporter"
	"github.com/DrC0ns0le/net-alto/internal/metrics"
	"github.com/DrC0ns0le/net-alto/internal/route/cost"
	"github.com/DrC0ns0le/net-alto/internal/server"
	"github.com/DrC0ns0le/net-alto/internal/system"
	"github.com/DrC0ns0le/net-alto/internal/topology"
	"github.com/DrC0ns0le/net-alto/internal/watchdog"
	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

func main() {
	cmd := &cobra.Command{
		Use:           "altoserver",
		Short:         "ALTO server answering endpoint cost, endpoint property and network map queries",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          run,
	}
	config.CommonFlags(cmd.Flags())
	config.ServerFlags(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		logging.Errorf("altoserver: %v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.New(), cmd.Flags(), ".env")
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	logging.SetDebug(cfg.Debug)
	logger := logging.NewDefaultLogger()
	logger.Infof("starting altoserver")

	holder := topology.NewHolder(nil)
	store := system.NewStore(cfg.LoadMaxAge)
	svc := alto.NewService(holder, store, cost.DefaultRegistry(), logger)

	grpcServer := server.NewGRPCServer(cfg.GRPCListen, logger)

	wd := watchdog.NewTopologyWatchdog(cfg.TopologyFile, cfg.TopologyInterval, holder, logger)
	wd.OnReload(func(current *topology.Topology, err error) {
		grpcServer.SetServing(current != nil)
	})

	api := server.NewAPI(svc, holder, store, wd, logger)

	servers := []server.Server{
		wd,
		server.NewHTTPServer("api", cfg.HTTPListen, api.Handler(), logger),
		grpcServer,
		server.NewHTTPServer("metrics", cfg.MetricsListen, metrics.Handler(cfg.MetricsPath), logger),
	}

	if cfg.Exporter.Enabled() {
		indexer, err := exporter.NewElasticIndexer(exporter.ElasticConfig{
			Addresses: cfg.Exporter.Addresses,
			Username:  cfg.Exporter.User,
			Password:  cfg.Exporter.Pass,
			Index:     cfg.Exporter.Index,
			Insecure:  cfg.Exporter.Insecure,
		}, logger)
		if err != nil {
			return err
		}
		servers = append(servers, exporter.New(holder, store, indexer, cfg.Exporter.Interval, logger))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.NewServerManager(logger, servers...).Run(ctx)
}
