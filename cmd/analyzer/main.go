package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"intelligent-resource-analyzer/pkg/analyzer"
	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/logger"
)

var (
	// Global flags
	configPath    string
	logLevel      string
	snapshotsPath string
	rulesPath     string

	// Analyze flags
	service      string
	outputFormat string
	analysisTime string
	exportPath   string

	// Serve flags
	metricsAddress string
)

func main() {
	klog.InitFlags(nil)

	rootCmd := &cobra.Command{
		Use:   "analyzer",
		Short: "Resource usage analyzer",
		Long: `Analyze service resource snapshots for anomalies, right-sizing,
workload patterns and predictive scaling.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file (default $ANALYZER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&snapshotsPath, "snapshots", "s", "metrics_data.json", "Snapshot JSON file")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "YAML alert rule file, replaces the rules of the config file")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the snapshot file once and print the reports",
		Args:  cobra.NoArgs,
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVar(&service, "service", "", "Analyze one service (default: every service in the file)")
	analyzeCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json, text")
	analyzeCmd.Flags().StringVar(&analysisTime, "at", "", "Analysis time in RFC3339 (default: newest snapshot)")
	analyzeCmd.Flags().StringVar(&exportPath, "export", "", "Write the snapshots kept within the history window to this file as a service map")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Analyze on the configured cron schedule and expose /metrics",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&metricsAddress, "metrics-address", "", "Metrics listen address (default from config)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)

	// SIGINT/SIGTERM cancel the command context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config or ANALYZER_CONFIG and
// applies flag overrides. Without a file the defaults are used.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("ANALYZER_CONFIG")
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
		klog.V(2).Infof("Loaded config from %s", path)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if metricsAddress != "" {
		cfg.Metrics.Address = metricsAddress
	}
	return cfg, nil
}

// retention is how far back from the newest snapshot the history window reaches
func retention(cfg config.Config) time.Duration {
	return time.Duration(cfg.Schedule.HistoryDays) * 24 * time.Hour
}

// serviceOptions are the analyzer options shared by every command
func serviceOptions(log *logger.Logger) []analyzer.Option {
	opts := []analyzer.Option{analyzer.WithLogger(log)}
	if rulesPath != "" {
		opts = append(opts, analyzer.WithRuleFile(rulesPath))
	}
	return opts
}

// setupLogger builds the process logger and installs it globally
func setupLogger(cfg config.Config) (*logger.Logger, error) {
	log, err := logger.FromConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(log)
	return log, nil
}
