package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fluxorio/replyloop/pkg/config"
)

type flags struct {
	configPath      string
	workers         int
	callers         int
	inboundCapacity int
	payloadUnit     time.Duration
	maxPayload      uint64
	maxStartDelay   time.Duration
	metricsAddr     string
	traceExporter   string
	traceEndpoint   string
	logLevel        string
	seed            uint64
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "replyloop",
		Short:         "Dispatch work from simulated callers through a worker pool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindFlags(root.PersistentFlags(), f)

	root.AddCommand(newRunCmd(f), newConfigCmd(f))
	return root
}

func bindFlags(fs *pflag.FlagSet, f *flags) {
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML or JSON config file")
	fs.IntVar(&f.workers, "workers", 0, "worker pool size")
	fs.IntVar(&f.callers, "callers", 0, "number of simulated callers")
	fs.IntVar(&f.inboundCapacity, "inbound-capacity", 0, "inbound queue capacity (defaults to callers)")
	fs.DurationVar(&f.payloadUnit, "payload-unit", 0, "duration of one payload unit")
	fs.Uint64Var(&f.maxPayload, "max-payload", 0, "payloads are drawn from [1, max-payload)")
	fs.DurationVar(&f.maxStartDelay, "max-start-delay", 0, "callers wait a random delay below this before sending")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&f.traceExporter, "trace-exporter", "", "span exporter: none, stdout or zipkin")
	fs.StringVar(&f.traceEndpoint, "trace-endpoint", "", "span collector endpoint")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.Uint64Var(&f.seed, "seed", 0, "random seed for the callers (0 picks one)")
}

// loadConfig layers defaults, the config file, REPLYLOOP_* variables and
// explicitly set flags.
func loadConfig(fs *pflag.FlagSet, f *flags) (config.Dispatcher, error) {
	return config.LoadDispatcher(f.configPath, func(c *config.Dispatcher) {
		if fs.Changed("workers") {
			c.Workers = f.workers
		}
		if fs.Changed("callers") {
			c.Callers = f.callers
		}
		if fs.Changed("inbound-capacity") {
			c.InboundCapacity = f.inboundCapacity
		}
		if fs.Changed("payload-unit") {
			c.PayloadUnit = f.payloadUnit
		}
		if fs.Changed("max-payload") {
			c.MaxPayload = f.maxPayload
		}
		if fs.Changed("max-start-delay") {
			c.MaxStartDelay = f.maxStartDelay
		}
		if fs.Changed("metrics-addr") {
			c.Metrics.Addr = f.metricsAddr
		}
		if fs.Changed("trace-exporter") {
			c.Tracing.Exporter = f.traceExporter
		}
		if fs.Changed("trace-endpoint") {
			c.Tracing.Endpoint = f.traceEndpoint
		}
		if fs.Changed("log-level") {
			c.Log.Level = f.logLevel
		}
	})
}

func newConfigCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			return config.WriteYAML(cmd.OutOrStdout(), &cfg)
		},
	}
}
