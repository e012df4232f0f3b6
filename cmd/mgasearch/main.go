package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChristopherRabotin/mga"
	"github.com/ChristopherRabotin/mga/search"
)

const appName = "mgasearch"

var (
	scenario    string
	metricsAddr string
	debug       bool
	logger      log.Logger
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Multiple gravity assist trajectory search",
	Long: `Search for fuel efficient trajectories from a departure body to a destination body,
with optional flybys and deep space maneuvers, using a parallel differential evolution.

The scenario file (TOML, YAML or JSON) may define the [mission] and the [search] tables.
Every search parameter can be overwritten by an environment variable, e.g. MGA_SEARCH_MAX_GENERATIONS.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(debug)
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&scenario, "scenario", "", "scenario file")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug everything (really verbose)")
	rootCmd.PersistentFlags().Int("workers", 0, "number of workers (0 for one per CPU)")
	viper.BindPFlag("search.workers", rootCmd.PersistentFlags().Lookup("workers"))
	rootCmd.AddCommand(searchCmd, screenCmd)
}

func newLogger(debug bool) log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	l = log.With(l, "ts", log.DefaultTimestampUTC)
	if debug {
		return level.NewFilter(l, level.AllowDebug())
	}
	return level.NewFilter(l, level.AllowInfo())
}

func initConfig() error {
	viper.SetEnvPrefix("MGA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	mga.RegisterDefaults(viper.GetViper(), "search")
	if scenario == "" {
		return nil
	}
	viper.SetConfigFile(scenario)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("%s: %w", scenario, err)
	}
	level.Info(logger).Log("subsys", "cli", "msg", "using scenario", "file", viper.ConfigFileUsed())
	return nil
}

// newCoordinator returns an initialized coordinator, and serves its metrics if requested.
func newCoordinator(opts ...search.Option) (*search.Coordinator, error) {
	config, err := mga.ConfigFromViper(viper.GetViper(), "search")
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	metrics := search.NewMetrics(reg)
	if metricsAddr != "" {
		go serveMetrics(reg)
	}
	opts = append(opts, search.WithLogger(logger), search.WithMetrics(metrics))
	coord, err := search.NewCoordinator(config, mga.SolarSystem(), opts...)
	if err != nil {
		return nil, err
	}
	if err := coord.Initialize(); err != nil {
		coord.Close()
		return nil, err
	}
	return coord, nil
}

func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	level.Info(logger).Log("subsys", "cli", "msg", "serving metrics", "addr", metricsAddr)
	if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		level.Error(logger).Log("subsys", "cli", "msg", "metrics server stopped", "err", err)
	}
}

// readDate reads a Julian date or a formatted date from the configuration key.
func readDate(key string) (float64, error) {
	date, err := mga.ParseDate(viper.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return date, nil
}

// readBody reads a body name from the configuration key.
func readBody(catalog mga.Catalog, key string) (mga.CelestialBody, error) {
	body, err := catalog.ByName(viper.GetString(key))
	if err != nil {
		return mga.CelestialBody{}, fmt.Errorf("%s: %w", key, err)
	}
	return body, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
