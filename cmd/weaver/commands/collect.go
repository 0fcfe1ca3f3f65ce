package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alvmarrod/ticker-weaver/internal/collector"
	"github.com/alvmarrod/ticker-weaver/internal/config"
	"github.com/alvmarrod/ticker-weaver/internal/memory"
	"github.com/alvmarrod/ticker-weaver/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(collectCmd)
}

var collectCmd = &cobra.Command{
	Use:   "collect [--config <path>]",
	Short: "Collects the snapshot fields of every known ticker into the results file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		table, keys, err := loadWorklist(cfg)
		if err != nil {
			return err
		}

		r, err := startRun("collect", cfg)
		if err != nil {
			return err
		}

		cp := &collector.FileCheckpointer{
			Path:   cfg.ResultsPath,
			Layout: cfg.ResultsLayout,
			Store:  r.store,
			OnSave: r.tracker.IncrementCheckpoints,
		}
		c := collector.NewCollector(cfg, r.client, cp, r.tracker.AddSnapshotsCollected)

		if _, err := collector.CheckResume(r.store, table, keys); err != nil {
			r.finish(reasonError)
			return err
		}

		err = c.Collect(cmd.Context(), keys, table)
		switch {
		case errors.Is(err, context.Canceled):
			logrus.Warnf("Interrupted, saving %d complete snapshots", table.CompleteCount())
			if err := c.Flush(table); err != nil {
				logrus.Errorf("Emergency results flush failed: %v", err)
			}
			r.finish(reasonSignal)
			return fmt.Errorf("collection interrupted: %w", err)
		case err != nil:
			r.finish(reasonError)
			return err
		}

		r.finish(reasonCompleted)
		return nil
	},
}

// loadWorklist reads the ticker list and the results table. The worklist is
// the table order restricted to the listed tickers. A missing ticker list is
// an error, returned before any fetch happens.
func loadWorklist(cfg *config.Config) (*memory.Table, []string, error) {
	tickers, err := storage.ReadTickers(cfg.TickersPath)
	if err != nil {
		return nil, nil, err
	}
	logrus.Infof("Configuration loaded: %d tickers from %s, results=%s (%s layout)",
		len(tickers), cfg.TickersPath, cfg.ResultsPath, cfg.ResultsLayout)

	table, err := memory.LoadTable(cfg.ResultsPath, storage.DefaultSchema, tickers)
	if err != nil {
		return nil, nil, err
	}

	keys := table.Worklist(memory.NewTickerSet(tickers...))
	if stale := len(table.Keys()) - len(keys); stale > 0 {
		logrus.Infof("Keeping %d rows for tickers no longer listed", stale)
	}
	return table, keys, nil
}
