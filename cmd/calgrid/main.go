package main

import (
	"os"

	"github.com/spf13/cobra"

	"calgrid/internal/config"
	"calgrid/internal/engine"
	"calgrid/internal/ics"
	appLog "calgrid/internal/log"
)

const version = "0.1.0-dev"

var (
	configPath string
	logLevel   string
	logJSON    bool
)

var rootCmd = &cobra.Command{
	Use:           "calgrid",
	Short:         "Calendar grid layout engine fed by ICS subscriptions",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./calgrid.yaml", "path to config file (created with defaults if missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides log_level of the config)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON lines")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		appLog.Error("calgrid failed", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies the logging flags.
func loadConfig() (*config.Config, error) {
	if logJSON {
		appLog.SetOutput(os.Stderr)
	}
	conf, err := config.Load(configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", configPath)
		return nil, err
	}
	applyLogLevel(conf)

	appLog.Info("effective config",
		"timezone", conf.Timezone,
		"locale", conf.Locale,
		"default_view", conf.DefaultView,
		"refresh", conf.RefreshCron,
		"feed_count", len(conf.Feeds),
		"schedule_count", len(conf.Schedules),
	)
	return conf, nil
}

func applyLogLevel(conf *config.Config) {
	level := conf.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(level))
}

// sources maps the configured feeds to fetcher sources.
func sources(conf *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(conf.Feeds))
	for _, f := range conf.Feeds {
		out = append(out, ics.Source{
			ID:       f.ID,
			URL:      f.URL,
			Schedule: f.Schedule,
			Class:    f.Class,
			Location: conf.Location(),
		})
	}
	return out
}

// newEngine builds an engine and a fetcher for conf.
func newEngine(conf *config.Config) (*engine.Engine, *ics.Fetcher) {
	return engine.New(conf), ics.NewFetcher(conf.CacheDir)
}
