package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zkH2O/tftcoach/internal/coach"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live coaching pipeline",
	Long: `Starts the full pipeline: screen capture, detection, identity
resolution, state aggregation, reasoning, and advice delivery. Runs until
interrupted or the capture source is exhausted.`,
	RunE: runCoach,
}

func runCoach(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	fmt.Println(titleStyle.Render("tftcoach"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("set %s | capture every %s | scout every %s",
		cfg.Identify.SetTag, cfg.Capture.Period, cfg.Scout.Period)))

	c, err := coach.New(ctx, cfg)
	if err != nil {
		return err
	}

	logger.Info("pipeline starting",
		zap.String("set", cfg.Identify.SetTag),
		zap.String("detector", cfg.Detector.Endpoint),
		zap.String("provider", cfg.Reasoning.Provider),
	)

	if err := c.Run(ctx); err != nil {
		return fmt.Errorf("pipeline stopped: %w", err)
	}
	fmt.Println(okStyle.Render("pipeline stopped cleanly"))
	return nil
}
