package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"FinScout/internal/di"
	"FinScout/internal/domain/models"
	"FinScout/internal/services/routing"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Pick a model for a task without calling it",
	Long: `Select the best-fitting model from the catalog and print it as JSON. With
--explain, print every model's score and the reasons others were rejected.

Examples:
  finscout route --task COMPLEX_REASONING --min-capability EXPERT
  finscout route --task REAL_TIME_ANALYSIS --max-latency 800 --region eu --explain`,
	RunE: runRoute,
}

var (
	routeTask         string
	routeCapability   string
	routeRegion       string
	routeProvider     string
	routeMaxCost      float64
	routeMaxLatencyMs int
	routeInputTokens  int
	routeOutputTokens int
	routeExplain      bool
)

func init() {
	rootCmd.AddCommand(routeCmd)

	routeCmd.Flags().StringVar(&routeTask, "task", string(models.TaskGeneral), "Task type")
	routeCmd.Flags().StringVar(&routeCapability, "min-capability", "", "Minimum capability (BASIC|INTERMEDIATE|ADVANCED|EXPERT)")
	routeCmd.Flags().StringVar(&routeRegion, "region", "us", "Deployment region")
	routeCmd.Flags().StringVar(&routeProvider, "provider", "", "Preferred provider")
	routeCmd.Flags().Float64Var(&routeMaxCost, "max-cost", 0, "Maximum estimated cost per request")
	routeCmd.Flags().IntVar(&routeMaxLatencyMs, "max-latency", 0, "Maximum latency in milliseconds")
	routeCmd.Flags().IntVar(&routeInputTokens, "input-tokens", 1000, "Estimated input tokens")
	routeCmd.Flags().IntVar(&routeOutputTokens, "output-tokens", 500, "Estimated output tokens")
	routeCmd.Flags().BoolVar(&routeExplain, "explain", false, "Print scores and rejections")
}

func runRoute(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := di.ProvideRegistry(cfg)
	if err != nil {
		return err
	}
	criteria, err := routeCriteria()
	if err != nil {
		return err
	}
	router := routing.NewRouter(reg)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if routeExplain {
		scores, rejections, err := router.Explain(criteria)
		if err != nil {
			return err
		}
		return enc.Encode(map[string]interface{}{"scores": scores, "rejections": rejections})
	}
	m, err := router.Select(criteria)
	if err != nil {
		return err
	}
	return enc.Encode(m)
}

func routeCriteria() (models.RoutingCriteria, error) {
	c := models.RoutingCriteria{
		TaskType:          models.TaskType(routeTask),
		InputTokens:       routeInputTokens,
		OutputTokens:      routeOutputTokens,
		MaxCost:           routeMaxCost,
		MaxLatencyMs:      routeMaxLatencyMs,
		PreferredProvider: routeProvider,
		Region:            routeRegion,
	}
	if routeCapability != "" {
		if err := c.MinCapability.UnmarshalText([]byte(routeCapability)); err != nil {
			return c, fmt.Errorf("--min-capability: %w", err)
		}
	}
	return c, nil
}
