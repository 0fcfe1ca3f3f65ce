package commands

import (
	"context"
	"time"

	"github.com/alvmarrod/ticker-weaver/internal/config"
	"github.com/alvmarrod/ticker-weaver/internal/crawler"
	"github.com/alvmarrod/ticker-weaver/internal/metrics"
	"github.com/alvmarrod/ticker-weaver/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Termination reasons written to the metrics file
const (
	reasonCompleted = "completed"
	reasonSignal    = "signal"
	reasonError     = "error"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "weaver",
	Short:         "weaver discovers stock tickers and collects their snapshot fields.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "Path to a JSON or YAML config file.")
}

// ExecuteContext runs the CLI and exits non-zero on any error
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Fatalf("%v", err)
	}
}

// loadConfig reads the config file and applies its log level
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	return cfg, nil
}

// run holds everything a command shares: the SQLite mirror, the metrics
// tracker, the HTTP client and the periodic progress logger.
type run struct {
	cfg          *config.Config
	store        *storage.Storage
	tracker      *metrics.Tracker
	client       *crawler.Client
	stopProgress chan struct{}
	progressDone chan struct{}
}

func startRun(command string, cfg *config.Config) (*run, error) {
	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Database initialized: %s", cfg.DBPath)

	tracker := metrics.NewTracker(command)
	r := &run{
		cfg:          cfg,
		store:        store,
		tracker:      tracker,
		client:       crawler.NewClient(cfg, tracker.RecordFetch),
		stopProgress: make(chan struct{}),
		progressDone: make(chan struct{}),
	}

	go r.logProgress(10 * time.Second)
	return r, nil
}

func (r *run) logProgress(every time.Duration) {
	defer close(r.progressDone)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logrus.Info(r.tracker.LogProgress())
		case <-r.stopProgress:
			return
		}
	}
}

// finish stops the progress logger, writes the metrics file and closes the
// database.
func (r *run) finish(reason string) {
	close(r.stopProgress)
	<-r.progressDone

	logrus.Info("Final stats: " + r.tracker.LogProgress())
	if err := r.tracker.WriteToFile(r.cfg.MetricsPath, reason); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", r.cfg.MetricsPath)
	}

	if err := r.store.Close(); err != nil {
		logrus.Errorf("Failed to close database: %v", err)
	}
}
