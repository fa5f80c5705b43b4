package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zabbix-problems/zabbix-problems/internal/config"
	"github.com/zabbix-problems/zabbix-problems/internal/logger"
	"github.com/zabbix-problems/zabbix-problems/internal/mock"
	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/zabbix"
)

var version = "dev"

var (
	configPath string
	envFiles   []string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "zabbix-problems",
	Short: "Tag-based severity sensors over Zabbix problems",
	Long: `zabbix-problems polls a Zabbix server for open problems, indexes them
by tag and exposes one severity sensor per configured tag set.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file (default: built-in defaults)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Env files with overrides (default: .env if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd, pollCmd, tuiCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("zabbix-problems version %s\n", rootCmd.Version))
}

// loadRuntime reads the configuration and builds the logger every
// subcommand except tui needs.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, envFiles...)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

type sourceFlags struct {
	mock        bool
	seed        int64
	failureRate float64
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.mock, "mock", false, "Use generated problems instead of a Zabbix server")
	cmd.Flags().Int64Var(&f.seed, "mock-seed", 1, "Seed for the mock generator")
	cmd.Flags().Float64Var(&f.failureRate, "mock-failure-rate", 0, "Fraction of mock fetches that fail")
}

func (f *sourceFlags) build(cfg *config.Config, log *zap.Logger) monitor.Source {
	if f.mock {
		log.Info("using mock source", zap.Int64("seed", f.seed))
		return mock.New(mock.Options{Seed: f.seed, FailureRate: f.failureRate})
	}
	return zabbix.New(zabbix.Config{
		Host:               cfg.Zabbix.Host,
		Username:           cfg.Zabbix.Username,
		Password:           cfg.Zabbix.Password,
		UseTLS:             cfg.Zabbix.UseTLS,
		InsecureSkipVerify: cfg.Zabbix.InsecureSkipVerify,
		Timeout:            cfg.Zabbix.Timeout,
		Logger:             log,
	})
}
