package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alvmarrod/ticker-weaver/internal/discovery"
	"github.com/alvmarrod/ticker-weaver/internal/memory"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover [--config <path>]",
	Short: "Pages through the listing and writes every ticker found to the ticker file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logrus.Infof("Configuration loaded: listing=%s, mode=%s, tickers=%s",
			cfg.ListingURL, cfg.DiscoveryMode, cfg.TickersPath)

		set, err := memory.LoadTickerSet(cfg.TickersPath)
		if err != nil {
			return err
		}

		r, err := startRun("discover", cfg)
		if err != nil {
			return err
		}

		start, err := discovery.StartPage(cfg.DiscoveryMode, set, r.store, cfg.PageSize)
		if err != nil {
			r.finish(reasonError)
			return err
		}

		cp := &discovery.FileCheckpointer{
			Path:   cfg.TickersPath,
			Store:  r.store,
			OnSave: r.tracker.IncrementCheckpoints,
		}
		d := discovery.NewDiscoverer(cfg, r.client, cp, func(pagesFetched, tickersAdded int) {
			r.tracker.AddTickersDiscovered(tickersAdded)
		})

		res, err := d.Run(cmd.Context(), set, start)
		switch {
		case errors.Is(err, context.Canceled):
			logrus.Warnf("Interrupted at listing page %d, saving %d tickers", res.Page, set.Len())
			if err := cp.Checkpoint(set, res.Page); err != nil {
				logrus.Errorf("Emergency ticker flush failed: %v", err)
			}
			r.finish(reasonSignal)
			return fmt.Errorf("discovery interrupted: %w", err)
		case err != nil:
			r.finish(reasonError)
			return err
		}

		logrus.Infof("Discovery finished at page %d: %d pages, %d new tickers, %d total",
			res.Page, res.PagesFetched, res.Added, set.Len())
		r.finish(reasonCompleted)
		return nil
	},
}
