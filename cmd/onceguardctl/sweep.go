package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/onceguard/internal/config"
	"github.com/loykin/onceguard/internal/store"

	_ "github.com/loykin/onceguard/internal/store/postgres"
	_ "github.com/loykin/onceguard/internal/store/sqlite"
)

// createSweepCommand runs a single reclaim pass directly against the
// configured store, for operators who want an ad-hoc sweep rather than
// waiting on the daemon's scheduled one.
func createSweepCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim expired completed records once and exit",
		Long: `sweep opens the store described by config directly (no running
daemon required) and deletes completed records past their TTL, the
same maintenance pass the daemon's scheduled sweeper performs.`,
		RunE: func(*cobra.Command, []string) error {
			return runSweep(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to TOML config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runSweep(configPath string) error {
	fc, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.New(fc.StoreBuilderConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	sweepable, ok := st.(store.Sweepable)
	if !ok {
		return fmt.Errorf("sweep: store type %q has no native sweep support", fc.Store.Type)
	}

	n, err := sweepable.Sweep(context.Background(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Printf("swept %d record(s)\n", n)
	return nil
}
