package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"FinScout/internal/di"
	"FinScout/internal/domain/models"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one decision cycle for a market observation",
	Long: `Run one decision cycle against the configured agent runtime and print the
result as JSON. Learned metrics are restored from and saved to the
configured store, so repeated runs keep learning.

Examples:
  finscout cycle --price 64250 --change 6.2 --volume-ratio 2.4
  finscout cycle --price 64250 --change -0.3 --config config/config.yaml`,
	RunE: runCycle,
}

var (
	cyclePrice       float64
	cycleChange      float64
	cycleVolumeRatio float64
	cycleSymbol      string
)

func init() {
	rootCmd.AddCommand(cycleCmd)

	cycleCmd.Flags().Float64Var(&cyclePrice, "price", 0, "Last price (required)")
	cycleCmd.Flags().Float64Var(&cycleChange, "change", 0, "24h change in percent (required)")
	cycleCmd.Flags().Float64Var(&cycleVolumeRatio, "volume-ratio", 1, "Volume relative to its baseline")
	cycleCmd.Flags().StringVar(&cycleSymbol, "symbol", "", "Symbol (defaults to engine.symbol)")
	_ = cycleCmd.MarkFlagRequired("price")
	_ = cycleCmd.MarkFlagRequired("change")
}

func runCycle(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, cleanup, err := di.InitializeEngine(cfg)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Engine.CycleTimeout+cfg.Engine.SinkTimeout+5*time.Second)
	defer cancel()
	if err := engine.Restore(ctx); err != nil {
		return err
	}

	tick := buildTick(cmd, cfg.Engine.Symbol)
	res, err := engine.ExecuteCycle(ctx, tick)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// buildTick leaves the volume ratio unset unless the flag was given.
func buildTick(cmd *cobra.Command, defaultSymbol string) models.RawTick {
	symbol := cycleSymbol
	if symbol == "" {
		symbol = defaultSymbol
	}
	price, change := cyclePrice, cycleChange
	tick := models.RawTick{
		Symbol:           symbol,
		Price:            &price,
		Change24hPercent: &change,
		Timestamp:        time.Now().UTC(),
	}
	if cmd.Flags().Changed("volume-ratio") {
		vr := cycleVolumeRatio
		tick.VolumeRatio = &vr
	}
	return tick
}
