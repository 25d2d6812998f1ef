// Package config loads settings from flags, an optional config file, the
// environment and a .env file, in that order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables: http.listen is read from
// ALTO_HTTP_LISTEN.
const EnvPrefix = "ALTO"

const (
	KeyConfig           = "config"
	KeyDebug            = "logging.debug"
	KeyHTTPListen       = "http.listen"
	KeyGRPCListen       = "grpc.listen"
	KeyMetricsListen    = "metrics.listen"
	KeyMetricsPath      = "metrics.path"
	KeyTopologyFile     = "topology.file"
	KeyTopologyInterval = "topology.interval"
	KeyLoadMaxAge       = "cost.load-max-age"

	KeyCollectorServer   = "collector.server"
	KeyCollectorDevice   = "collector.device"
	KeyCollectorInterval = "collector.interval"
	KeyCollectorVtysh    = "collector.vtysh"
	KeyCollectorProc     = "collector.proc"

	KeyElasticAddresses = "exporter.elastic.addresses"
	KeyElasticUser      = "exporter.elastic.user"
	KeyElasticPass      = "exporter.elastic.pass"
	KeyElasticInsecure  = "exporter.elastic.insecure"
	KeyExporterIndex    = "exporter.index"
	KeyExporterInterval = "exporter.interval"
)

type Config struct {
	Debug bool

	HTTPListen    string
	GRPCListen    string
	MetricsListen string
	MetricsPath   string

	TopologyFile     string
	TopologyInterval time.Duration
	LoadMaxAge       time.Duration

	Collector Collector
	Exporter  Exporter
}

type Collector struct {
	Server   string
	Device   string
	Interval time.Duration
	Vtysh    bool
	Proc     string
}

type Exporter struct {
	Addresses []string
	User      string
	Pass      string
	Insecure  bool
	Index     string
	Interval  time.Duration
}

// Enabled reports whether an Elasticsearch cluster is configured.
func (e Exporter) Enabled() bool { return len(e.Addresses) > 0 }

// CommonFlags registers the flags every binary understands.
func CommonFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, "", "config file (yaml, toml or json)")
	fs.Bool(KeyDebug, false, "enable debug logging")
}

func ServerFlags(fs *pflag.FlagSet) {
	fs.String(KeyHTTPListen, ":5000", "listen address of the ALTO REST API")
	fs.String(KeyGRPCListen, ":5001", "listen address of the gRPC health service")
	fs.String(KeyMetricsListen, ":5120", "listen address of the metrics server")
	fs.String(KeyMetricsPath, "/metrics", "path of the metrics endpoint")
	fs.String(KeyTopologyFile, "topology.json", "topology description file")
	fs.Duration(KeyTopologyInterval, 5*time.Second, "interval between topology file checks")
	fs.Duration(KeyLoadMaxAge, time.Minute, "ignore interface load samples older than this")
	fs.StringSlice(KeyElasticAddresses, nil, "elasticsearch addresses, route history export is off when empty")
	fs.String(KeyElasticUser, "elastic", "elasticsearch user")
	fs.String(KeyElasticPass, "", "elasticsearch password")
	fs.Bool(KeyElasticInsecure, false, "skip elasticsearch TLS verification")
	fs.String(KeyExporterIndex, "alto-route-history", "route history index")
	fs.Duration(KeyExporterInterval, time.Minute, "interval between route history exports")
}

func NodeFlags(fs *pflag.FlagSet) {
	fs.String(KeyCollectorServer, "http://localhost:5000", "ALTO server base URL")
	fs.String(KeyCollectorDevice, "", "hostname of this node in the topology (default: os hostname)")
	fs.Duration(KeyCollectorInterval, 10*time.Second, "interval between uploads")
	fs.Bool(KeyCollectorVtysh, false, "upload the routing daemon table from vtysh")
	fs.String(KeyCollectorProc, "/proc", "proc filesystem mount point")
	fs.String(KeyMetricsListen, ":5121", "listen address of the metrics server")
	fs.String(KeyMetricsPath, "/metrics", "path of the metrics endpoint")
}

// Load reads envFile into the environment when it exists and resolves
// every setting through v, which must have fs bound.
func Load(v *viper.Viper, fs *pflag.FlagSet, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(err, "error reading %s", envFile)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "error binding flags")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file := v.GetString(KeyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config %s", file)
		}
	}

	cfg := &Config{
		Debug:            v.GetBool(KeyDebug),
		HTTPListen:       v.GetString(KeyHTTPListen),
		GRPCListen:       v.GetString(KeyGRPCListen),
		MetricsListen:    v.GetString(KeyMetricsListen),
		MetricsPath:      v.GetString(KeyMetricsPath),
		TopologyFile:     v.GetString(KeyTopologyFile),
		TopologyInterval: v.GetDuration(KeyTopologyInterval),
		LoadMaxAge:       v.GetDuration(KeyLoadMaxAge),
		Collector: Collector{
			Server:   v.GetString(KeyCollectorServer),
			Device:   v.GetString(KeyCollectorDevice),
			Interval: v.GetDuration(KeyCollectorInterval),
			Vtysh:    v.GetBool(KeyCollectorVtysh),
			Proc:     v.GetString(KeyCollectorProc),
		},
		Exporter: Exporter{
			Addresses: v.GetStringSlice(KeyElasticAddresses),
			User:      v.GetString(KeyElasticUser),
			Pass:      v.GetString(KeyElasticPass),
			Insecure:  v.GetBool(KeyElasticInsecure),
			Index:     v.GetString(KeyExporterIndex),
			Interval:  v.GetDuration(KeyExporterInterval),
		},
	}

	if cfg.Collector.Device == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Collector.Device = host
		}
	}

	return cfg, nil
}

// ValidateServer checks the settings altoserver needs.
func (c *Config) ValidateServer() error {
	switch {
	case c.TopologyFile == "":
		return errors.Errorf("%s is required", KeyTopologyFile)
	case c.TopologyInterval <= 0:
		return errors.Errorf("%s must be positive", KeyTopologyInterval)
	case c.Exporter.Enabled() && c.Exporter.Interval <= 0:
		return errors.Errorf("%s must be positive", KeyExporterInterval)
	}
	return nil
}

// ValidateNode checks the settings altonode needs.
func (c *Config) ValidateNode() error {
	switch {
	case c.Collector.Server == "":
		return errors.Errorf("%s is required", KeyCollectorServer)
	case c.Collector.Device == "":
		return errors.Errorf("%s is required", KeyCollectorDevice)
	case c.Collector.Interval <= 0:
		return errors.Errorf("%s must be positive", KeyCollectorInterval)
	}
	return nil
}
